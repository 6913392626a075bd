package powchain

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/metrics"
	sqlcollectors "github.com/liftedinit/powchain/internal/metrics/collectors/sql"
	"github.com/liftedinit/powchain/internal/output/postgresql"
)

var PostgresCmd = &cobra.Command{
	Use:   "postgres [node-url] [flags]",
	Short: "Export chain data to a PostgreSQL database",
	Long:  "Export the chain of a running node to a PostgreSQL database, resuming after the latest exported block.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postgresConfig := config.LoadPostgresConfigFromCLI()
		if err := postgresConfig.Validate(); err != nil {
			return fmt.Errorf("invalid PostgreSQL configuration: %w", err)
		}

		outputHandler, err := postgresql.NewPostgresOutputHandler(postgresConfig.ConnString, postgresConfig.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to create PostgreSQL output handler: %w", err)
		}
		defer outputHandler.Close()

		if exportConfig.EnablePrometheus {
			db := stdlib.OpenDBFromPool(outputHandler.GetPool())
			defer db.Close()

			collectors, err := sqlcollectors.DefaultSqlRegistry.CreateSqlCollectors(db)
			if err != nil {
				return fmt.Errorf("failed to create SQL collectors: %w", err)
			}
			server, err := metrics.CreateMetricsServer(exportConfig.PrometheusAddr, collectors...)
			if err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			defer server.Close()
		}

		return export(cmd, args[0], outputHandler)
	},
}

func init() {
	PostgresCmd.Flags().StringP("postgres-conn", "p", "", "PostgreSQL connection string")
	if err := viper.BindPFlags(PostgresCmd.Flags()); err != nil {
		slog.Error("Failed to bind PostgresCmd flags", "error", err)
	}
}
