package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

type ClientConfig struct {
	Node       string
	Timeout    time.Duration
	MaxRetries uint
}

func (c ClientConfig) Validate() error {
	if c.Node == "" {
		return fmt.Errorf("missing node URL")
	}
	u, err := url.Parse(c.Node)
	if err != nil {
		return fmt.Errorf("failed to parse node URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("node URL must be http(s)://host[:port], got %q", c.Node)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func LoadClientConfigFromCLI() ClientConfig {
	return ClientConfig{
		Node:       viper.GetString("node"),
		Timeout:    viper.GetDuration("timeout"),
		MaxRetries: viper.GetUint("max-retries"),
	}
}
