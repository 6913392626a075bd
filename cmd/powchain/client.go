package powchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/utils"
)

// callNode runs call against the node selected by --node, with retries, and
// prints the response as JSON.
func callNode[T any](cmd *cobra.Command, operation string, call func(context.Context, *client.NodeClient) (T, error)) error {
	return invokeNode(cmd, operation, true, call)
}

// callNodeOnce is callNode for requests that must not be repeated.
func callNodeOnce[T any](cmd *cobra.Command, operation string, call func(context.Context, *client.NodeClient) (T, error)) error {
	return invokeNode(cmd, operation, false, call)
}

func invokeNode[T any](cmd *cobra.Command, operation string, retry bool, call func(context.Context, *client.NodeClient) (T, error)) error {
	clientConfig := config.LoadClientConfigFromCLI()
	if err := clientConfig.Validate(); err != nil {
		return fmt.Errorf("invalid client configuration: %w", err)
	}
	slog.Debug("Calling node", "node", clientConfig.Node, "operation", operation)

	maxRetries := clientConfig.MaxRetries
	if !retry {
		maxRetries = 1
	}

	nodeClient := client.NewNodeClient(clientConfig.Node, clientConfig.Timeout)
	resp, err := utils.Retry(cmd.Context(), operation, maxRetries, func(ctx context.Context) (T, error) {
		return call(ctx, nodeClient)
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Args:  cobra.NoArgs,
	Short: "Ask the node to forge a new block",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Every call forges a block, so a timed out request is never repeated.
		return callNodeOnce(cmd, "mine", func(ctx context.Context, c *client.NodeClient) (models.MineResponse, error) {
			return c.Mine(ctx)
		})
	},
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Args:  cobra.NoArgs,
	Short: "Print the node's full chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNode(cmd, "chain", func(ctx context.Context, c *client.NodeClient) (models.ChainResponse, error) {
			return c.Chain(ctx)
		})
	},
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Manage transactions",
}

var txSendCmd = &cobra.Command{
	Use:   "send [sender] [recipient] [amount]",
	Args:  cobra.ExactArgs(3),
	Short: "Submit a transaction to the node's pending pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount float64
		if err := json.Unmarshal([]byte(args[2]), &amount); err != nil {
			return fmt.Errorf("invalid amount %q: must be a number", args[2])
		}
		tx := models.Transaction{Sender: args[0], Recipient: args[1], Amount: amount}

		return callNode(cmd, "submit transaction", func(ctx context.Context, c *client.NodeClient) (models.MessageResponse, error) {
			return c.SubmitTransaction(ctx, tx)
		})
	},
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Manage the node's peers",
}

var nodesRegisterCmd = &cobra.Command{
	Use:   "register [peer...]",
	Args:  cobra.MinimumNArgs(1),
	Short: "Register peers with the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNode(cmd, "register nodes", func(ctx context.Context, c *client.NodeClient) (models.RegisterNodesResponse, error) {
			return c.RegisterNodes(ctx, args)
		})
	},
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "List the node's peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNode(cmd, "list nodes", func(ctx context.Context, c *client.NodeClient) (models.NodesResponse, error) {
			return c.Nodes(ctx)
		})
	},
}

var nodesResolveCmd = &cobra.Command{
	Use:   "resolve",
	Args:  cobra.NoArgs,
	Short: "Run a consensus round on the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNode(cmd, "resolve", func(ctx context.Context, c *client.NodeClient) (models.ResolveResponse, error) {
			return c.Resolve(ctx)
		})
	},
}

func init() {
	txCmd.AddCommand(txSendCmd)
	nodesCmd.AddCommand(nodesRegisterCmd, nodesListCmd, nodesResolveCmd)
}
