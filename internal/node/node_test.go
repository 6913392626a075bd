package node

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/config"
)

func nodeConfig(peers ...string) config.NodeConfig {
	return config.NodeConfig{
		Listen:          "127.0.0.1:0",
		Peers:           peers,
		PeerTimeout:     time.Second,
		PeerConcurrency: 2,
	}
}

type running struct {
	node *Node
	url  string
	done chan error
}

func start(t *testing.T, ctx context.Context, cfg config.NodeConfig, listener net.Listener) *running {
	t.Helper()
	n, err := New(cfg)
	require.NoError(t, err)

	r := &running{node: n, url: "http://" + listener.Addr().String(), done: make(chan error, 1)}
	go func() { r.done <- n.Serve(ctx, listener) }()
	return r
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return l
}

func TestNewNodeID(t *testing.T) {
	id := NewNodeID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	assert.NotEqual(t, id, NewNodeID())
}

func TestNew(t *testing.T) {
	t.Run("GeneratesID", func(t *testing.T) {
		n, err := New(nodeConfig())
		require.NoError(t, err)
		assert.Len(t, n.ID(), 32)
		assert.Equal(t, 1, n.Ledger().Len())
	})

	t.Run("KeepsConfiguredID", func(t *testing.T) {
		cfg := nodeConfig("http://10.0.0.1:5000", "10.0.0.1:5000")
		cfg.NodeID = "miner-1"
		n, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, "miner-1", n.ID())
		assert.Equal(t, []string{"10.0.0.1:5000"}, n.Peers().List())
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := nodeConfig("nowhere")
		_, err := New(cfg)
		assert.ErrorContains(t, err, "invalid node configuration")
	})
}

func TestServeAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := start(t, ctx, nodeConfig(), listen(t))

	api := client.NewNodeClient(a.url, 5*time.Second)
	mined, err := api.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mined.Index)
	assert.Equal(t, a.node.ID(), mined.Transactions[0].Recipient)

	cancel()
	select {
	case err := <-a.done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not shut down")
	}
}

func TestPeriodicResolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenerA := listen(t)
	a := start(t, ctx, nodeConfig(), listenerA)

	cfg := nodeConfig(listenerA.Addr().String())
	cfg.ResolveInterval = 50 * time.Millisecond
	b := start(t, ctx, cfg, listen(t))

	api := client.NewNodeClient(a.url, 5*time.Second)
	for i := 0; i < 2; i++ {
		_, err := api.Mine(ctx)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return b.node.Ledger().Len() == 3
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, a.node.Ledger().Chain(), b.node.Ledger().Chain())
}

func TestResolveOnceWithUnreachablePeer(t *testing.T) {
	dead := listen(t)
	addr := dead.Addr().String()
	dead.Close()

	n, err := New(nodeConfig(addr))
	require.NoError(t, err)

	result := n.ResolveOnce(context.Background())
	assert.False(t, result.Replaced)
	assert.Len(t, result.Chain, 1)
}

func TestServeWithMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := nodeConfig()
	cfg.EnablePrometheus = true
	cfg.PrometheusAddr = "127.0.0.1:21131"
	a := start(t, ctx, cfg, listen(t))

	_, err := client.NewNodeClient(a.url, 5*time.Second).Mine(ctx)
	require.NoError(t, err)

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:21131/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	assert.Contains(t, body, "powchain_chain_length 2")
	assert.Contains(t, body, "powchain_blocks_mined_total 1")
}

func TestServeMetricsAddressInUse(t *testing.T) {
	busy := listen(t)
	defer busy.Close()

	cfg := nodeConfig()
	cfg.EnablePrometheus = true
	cfg.PrometheusAddr = busy.Addr().String()
	n, err := New(cfg)
	require.NoError(t, err)

	err = n.Serve(context.Background(), listen(t))
	assert.ErrorContains(t, err, "failed to start metrics server")
}
