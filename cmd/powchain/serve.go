package powchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/node"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.NoArgs,
	Short: "Run a node",
	Long:  `Run a node serving the HTTP API, mining on demand and resolving conflicts with its peers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeConfig := config.LoadNodeConfigFromCLI()
		if err := nodeConfig.Validate(); err != nil {
			return fmt.Errorf("invalid node configuration: %w", err)
		}
		slog.Debug("Command-line arguments", "nodeConfig", nodeConfig)

		n, err := node.New(nodeConfig)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		handleInterrupt(cancel)

		return n.Run(ctx)
	},
}

func init() {
	ServeCmd.Flags().String("listen", "0.0.0.0:5000", "Address and port the node API listens on")
	ServeCmd.Flags().String("node-id", "", "Identifier credited with mining rewards (random when empty)")
	ServeCmd.Flags().StringSlice("peer", nil, "Peer to register at startup, repeatable (host:port or URL)")
	ServeCmd.Flags().Duration("resolve-interval", 0, "Run consensus with the peers at this interval (0 disables)")
	ServeCmd.Flags().Duration("peer-timeout", consensus.DefaultPeerTimeout, "Timeout for fetching a peer's chain")
	ServeCmd.Flags().Uint("peer-concurrency", consensus.DefaultMaxConcurrency, "Maximum concurrent peer fetches (advanced)")
	ServeCmd.Flags().Uint64("pow-max-iterations", 0, "Give up a proof search after this many candidates (0 means unbounded)")

	if err := viper.BindPFlags(ServeCmd.Flags()); err != nil {
		slog.Error("Failed to bind ServeCmd flags", "error", err)
	}
}
