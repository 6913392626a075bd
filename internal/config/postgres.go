package config

import (
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

// PostgresConfig configures the PostgreSQL export. MaxConns follows the export
// concurrency so every writer can hold a connection.
type PostgresConfig struct {
	ConnString string
	MaxConns   uint
}

func (c PostgresConfig) Validate() error {
	if c.ConnString == "" {
		return fmt.Errorf("missing PostgreSQL connection string")
	}

	if _, err := pgxpool.ParseConfig(c.ConnString); err != nil {
		return fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	if c.MaxConns > math.MaxInt32 {
		return fmt.Errorf("max connections %d exceeds %d", c.MaxConns, math.MaxInt32)
	}

	return nil
}

func LoadPostgresConfigFromCLI() PostgresConfig {
	return PostgresConfig{
		ConnString: viper.GetString("postgres-conn"),
		MaxConns:   viper.GetUint("max-concurrency"),
	}
}
