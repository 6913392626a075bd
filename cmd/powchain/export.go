package powchain

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/exporter"
	"github.com/liftedinit/powchain/internal/output"
)

var exportConfig config.ExportConfig

var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a node's chain to various output formats",
	Long:  `Fetch the chain of a running node, validate it and write its blocks and transactions in the specified format.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := RootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}

		exportConfig = config.LoadExportConfigFromCLI()
		if err := exportConfig.Validate(); err != nil {
			return fmt.Errorf("invalid export configuration: %w", err)
		}
		slog.Debug("Command-line arguments", "exportConfig", exportConfig)
		return nil
	},
}

func init() {
	ExportCmd.PersistentFlags().Bool("reindex", false, "Re-export every block from 1 to the tip of the chain")
	ExportCmd.PersistentFlags().Uint64P("start", "s", 0, "Start block index")
	ExportCmd.PersistentFlags().Uint64P("stop", "e", 0, "Stop block index")
	ExportCmd.PersistentFlags().UintP("max-concurrency", "c", 100, "Maximum concurrent block writes (advanced)")

	if err := viper.BindPFlags(ExportCmd.PersistentFlags()); err != nil {
		slog.Error("Failed to bind ExportCmd flags", "error", err)
	}

	ExportCmd.AddCommand(jsonCmd)
	ExportCmd.AddCommand(PostgresCmd)
}

// export runs the export of the node at nodeURL into outputHandler until done
// or interrupted.
func export(cmd *cobra.Command, nodeURL string, outputHandler output.OutputHandler) error {
	u, err := url.Parse(nodeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid node URL %q: expected http(s)://host[:port]", nodeURL)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	handleInterrupt(cancel)

	source := client.NewNodeClient(nodeURL, viper.GetDuration("timeout"))
	return exporter.Export(ctx, source, outputHandler, exportConfig)
}
