package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/liftedinit/powchain/internal/peers"
)

type NodeConfig struct {
	Listen           string
	NodeID           string
	Peers            []string
	ResolveInterval  time.Duration
	PeerTimeout      time.Duration
	PeerConcurrency  uint
	PowMaxIterations uint64
	EnablePrometheus bool
	PrometheusAddr   string
}

func (c NodeConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("missing listen address")
	}
	for _, p := range c.Peers {
		if _, err := peers.Normalize(p); err != nil {
			return fmt.Errorf("invalid peer %q: %w", p, err)
		}
	}
	if c.ResolveInterval < 0 {
		return fmt.Errorf("resolve interval must not be negative")
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("peer timeout must be positive")
	}
	if c.PeerConcurrency == 0 {
		return fmt.Errorf("peer concurrency must be at least 1")
	}
	if c.EnablePrometheus && c.PrometheusAddr == "" {
		return fmt.Errorf("missing Prometheus address")
	}
	return nil
}

func LoadNodeConfigFromCLI() NodeConfig {
	return NodeConfig{
		Listen:           viper.GetString("listen"),
		NodeID:           viper.GetString("node-id"),
		Peers:            viper.GetStringSlice("peer"),
		ResolveInterval:  viper.GetDuration("resolve-interval"),
		PeerTimeout:      viper.GetDuration("peer-timeout"),
		PeerConcurrency:  viper.GetUint("peer-concurrency"),
		PowMaxIterations: viper.GetUint64("pow-max-iterations"),
		EnablePrometheus: viper.GetBool("enable-prometheus"),
		PrometheusAddr:   viper.GetString("prometheus-addr"),
	}
}
