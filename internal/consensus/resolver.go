// Package consensus adopts the longest valid chain known to the peers.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
)

const (
	DefaultPeerTimeout    = 5 * time.Second
	DefaultMaxConcurrency = 8
)

// Fetcher retrieves the chain served by a peer.
type Fetcher interface {
	FetchChain(ctx context.Context, address string) (models.ChainResponse, error)
}

// PeerLister exposes the registered peers.
type PeerLister interface {
	List() []string
}

// Candidate is a chain reported by a peer.
type Candidate struct {
	Peer   string
	Length int
	Chain  []models.Block
}

// Result is the outcome of a consensus round. Chain is the local chain after the
// round.
type Result struct {
	Replaced bool
	Chain    []models.Block
}

// Resolver runs consensus rounds against the registered peers.
type Resolver struct {
	ledger         *ledger.Ledger
	peers          PeerLister
	fetcher        Fetcher
	peerTimeout    time.Duration
	maxConcurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPeerTimeout bounds each peer fetch. Non-positive values keep the default.
func WithPeerTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.peerTimeout = timeout
		}
	}
}

// WithMaxConcurrency caps the number of peers queried at once.
func WithMaxConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// NewResolver creates a Resolver replacing the chain held by l.
func NewResolver(l *ledger.Ledger, peers PeerLister, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		ledger:         l,
		peers:          peers,
		fetcher:        fetcher,
		peerTimeout:    DefaultPeerTimeout,
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve queries every registered peer and replaces the local chain with the
// longest valid one strictly longer than it. Unreachable peers are skipped.
func (r *Resolver) Resolve(ctx context.Context) (Result, error) {
	local := r.ledger.Chain()
	addresses := r.peers.List()
	if len(addresses) == 0 {
		return Result{Chain: local}, nil
	}

	// One slot per peer keeps the selection independent of arrival order.
	candidates := make([]*Candidate, len(addresses))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.maxConcurrency)
	for i, address := range addresses {
		eg.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, r.peerTimeout)
			defer cancel()

			resp, err := r.fetcher.FetchChain(pctx, address)
			if err != nil {
				slog.Warn("Skipping unreachable peer", "peer", address, "error", err)
				return nil
			}
			candidates[i] = &Candidate{Peer: address, Length: resp.Length, Chain: resp.Chain}
			return nil
		})
	}
	// Workers never return an error; peer failures are skipped above.
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{Chain: local}, fmt.Errorf("consensus round aborted: %w", err)
	}

	fetched := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			fetched = append(fetched, *c)
		}
	}

	best, ok := SelectLongest(len(local), fetched)
	if !ok {
		return Result{Chain: local}, nil
	}

	replaced, err := r.ledger.ReplaceChain(best.Chain)
	if err != nil {
		return Result{Chain: local}, fmt.Errorf("failed to adopt chain from %s: %w", best.Peer, err)
	}
	if !replaced {
		slog.Debug("Local chain grew past the candidate", "peer", best.Peer, "length", best.Length)
		return Result{Chain: r.ledger.Chain()}, nil
	}

	slog.Info("Replaced local chain", "peer", best.Peer, "length", best.Length, "previous_length", len(local))
	return Result{Replaced: true, Chain: r.ledger.Chain()}, nil
}

// SelectLongest returns the longest valid candidate strictly longer than
// localLength. Candidates are considered in order, so on equal lengths the
// earlier one wins. A candidate whose reported length disagrees with its chain
// is invalid, as is one that does not start from a genesis block.
func SelectLongest(localLength int, candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	bestLength := localLength

	for _, c := range candidates {
		if c.Length <= bestLength {
			continue
		}
		if c.Length != len(c.Chain) {
			slog.Warn("Ignoring chain with mismatched length", "peer", c.Peer, "length", c.Length, "blocks", len(c.Chain))
			continue
		}
		if err := ledger.ValidateFromGenesis(c.Chain); err != nil {
			slog.Warn("Ignoring invalid chain", "peer", c.Peer, "length", c.Length, "error", err)
			continue
		}
		best = c
		bestLength = c.Length
		found = true
	}

	return best, found
}
