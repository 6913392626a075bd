package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type ExportConfig struct {
	MaxConcurrency   uint
	MaxRetries       uint
	BlockStart       uint64
	BlockStop        uint64
	ReIndex          bool
	EnablePrometheus bool
	PrometheusAddr   string
}

func (c ExportConfig) Validate() error {
	if c.BlockStop != 0 && c.BlockStart > c.BlockStop {
		return fmt.Errorf("start block %d is after stop block %d", c.BlockStart, c.BlockStop)
	}
	if c.ReIndex && c.BlockStart != 0 {
		return fmt.Errorf("cannot set --reindex and --start flags together")
	}
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("max concurrency must be at least 1")
	}
	if c.EnablePrometheus && c.PrometheusAddr == "" {
		return fmt.Errorf("missing Prometheus address")
	}
	return nil
}

func LoadExportConfigFromCLI() ExportConfig {
	return ExportConfig{
		MaxConcurrency:   viper.GetUint("max-concurrency"),
		MaxRetries:       viper.GetUint("max-retries"),
		BlockStart:       viper.GetUint64("start"),
		BlockStop:        viper.GetUint64("stop"),
		ReIndex:          viper.GetBool("reindex"),
		EnablePrometheus: viper.GetBool("enable-prometheus"),
		PrometheusAddr:   viper.GetString("prometheus-addr"),
	}
}
