package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type JSONConfig struct {
	Output string
}

// Validate accepts a missing directory, which the JSON handler creates.
func (c JSONConfig) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("missing output directory")
	}
	info, err := os.Stat(c.Output)
	if err == nil && !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", c.Output)
	}
	return nil
}

func LoadJSONConfigFromCLI() JSONConfig {
	return JSONConfig{
		Output: viper.GetString("json-out"),
	}
}
