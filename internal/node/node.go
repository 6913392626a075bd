// Package node assembles a full powchain node and runs it until its context
// is cancelled.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/metrics"
	"github.com/liftedinit/powchain/internal/metrics/collectors"
	"github.com/liftedinit/powchain/internal/miner"
	"github.com/liftedinit/powchain/internal/peers"
	"github.com/liftedinit/powchain/internal/pow"
	"github.com/liftedinit/powchain/internal/server"
)

const shutdownTimeout = 5 * time.Second

type Node struct {
	cfg      config.NodeConfig
	id       string
	ledger   *ledger.Ledger
	peers    *peers.Set
	resolver *consensus.Resolver
	activity *collectors.ActivityCollector
	api      *server.Server
}

// NewNodeID returns a random identifier in the form used as mining reward
// recipient: 32 lowercase hex characters.
func NewNodeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func New(cfg config.NodeConfig) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node configuration: %w", err)
	}

	id := cfg.NodeID
	if id == "" {
		id = NewNodeID()
	}

	l := ledger.New()
	set := peers.NewSet()
	for _, p := range cfg.Peers {
		if _, err := set.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register peer %q: %w", p, err)
		}
	}

	resolver := consensus.NewResolver(l, set, client.NewPeerClient(cfg.PeerTimeout),
		consensus.WithPeerTimeout(cfg.PeerTimeout),
		consensus.WithMaxConcurrency(int(cfg.PeerConcurrency)),
	)
	activity := collectors.NewActivityCollector()
	m := miner.New(l, id, pow.Engine{MaxIterations: cfg.PowMaxIterations})

	return &Node{
		cfg:      cfg,
		id:       id,
		ledger:   l,
		peers:    set,
		resolver: resolver,
		activity: activity,
		api:      server.New(l, set, m, resolver, server.WithRecorder(activity)),
	}, nil
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func (n *Node) Peers() *peers.Set {
	return n.peers
}

// Run listens on the configured address and serves until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.Listen, err)
	}
	return n.Serve(ctx, listener)
}

// Serve runs the API on listener, the optional metrics server and the periodic
// consensus loop. It returns after a graceful shutdown once ctx is done.
func (n *Node) Serve(ctx context.Context, listener net.Listener) error {
	if n.cfg.EnablePrometheus {
		metricsServer, err := metrics.CreateMetricsServer(n.cfg.PrometheusAddr,
			collectors.NewNodeCollector(n.ledger, n.peers),
			n.activity,
		)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer shutdown(metricsServer, "metrics")
	}

	apiServer := &http.Server{
		Handler:           n.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("Node listening", "addr", listener.Addr().String(), "node_id", n.id, "peers", n.peers.Len())
		if err := apiServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-gctx.Done()
		shutdown(apiServer, "API")
		return nil
	})
	if n.cfg.ResolveInterval > 0 {
		eg.Go(func() error {
			n.resolveLoop(gctx)
			return nil
		})
	}

	return eg.Wait()
}

func (n *Node) resolveLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.ResolveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.ResolveOnce(ctx)
		}
	}
}

// ResolveOnce runs a single consensus round and records its outcome.
func (n *Node) ResolveOnce(ctx context.Context) consensus.Result {
	result, err := n.resolver.Resolve(ctx)
	switch {
	case err != nil:
		n.activity.ConsensusRound(collectors.OutcomeFailed)
		if ctx.Err() == nil {
			slog.Error("Consensus round failed", "error", err)
		}
	case result.Replaced:
		n.activity.ConsensusRound(collectors.OutcomeReplaced)
	default:
		n.activity.ConsensusRound(collectors.OutcomeAuthoritative)
		slog.Debug("Local chain is authoritative", "length", len(result.Chain))
	}
	return result
}

func shutdown(srv *http.Server, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down server", "server", name, "error", err)
	}
}
