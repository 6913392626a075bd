package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/node"
)

// StartNode serves a fresh node on a random local port for the duration of
// the test and returns it with its base URL.
func StartNode(t *testing.T) (*node.Node, string) {
	t.Helper()

	n, err := node.New(config.NodeConfig{
		Listen:          "127.0.0.1:0",
		PeerTimeout:     time.Second,
		PeerConcurrency: 2,
	})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return n, "http://" + listener.Addr().String()
}
