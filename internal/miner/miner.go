// Package miner seals pending transactions into new blocks.
package miner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/pow"
)

const (
	// RewardSender marks a transaction minted by the node itself.
	RewardSender = "0"
	RewardAmount = 1.0
)

// Searcher finds a proof for the block following one with lastProof.
// pow.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, lastProof int64) (int64, error)
}

var _ Searcher = pow.Engine{}

// Miner forges blocks on a ledger and credits nodeID with the reward.
type Miner struct {
	ledger *ledger.Ledger
	engine Searcher
	nodeID string
}

// New creates a Miner sealing blocks onto l with proofs found by engine.
func New(l *ledger.Ledger, nodeID string, engine Searcher) *Miner {
	return &Miner{ledger: l, engine: engine, nodeID: nodeID}
}

// Mine searches a proof for the current last block without holding the ledger
// lock, then seals the pending pool plus the mining reward. When another block
// lands first the proof is discarded and the search restarts on the new head.
func (m *Miner) Mine(ctx context.Context) (models.Block, error) {
	reward := models.Transaction{
		Sender:    RewardSender,
		Recipient: m.nodeID,
		Amount:    RewardAmount,
	}

	for {
		head := m.ledger.LastBlock()

		proof, err := m.engine.Search(ctx, head.Proof)
		if err != nil {
			return models.Block{}, fmt.Errorf("proof search for block %d failed: %w", head.Index+1, err)
		}

		block, err := m.ledger.SealOnto(head, proof, reward)
		if errors.Is(err, ledger.ErrStaleHead) {
			slog.Debug("Chain moved during proof search, retrying", "height", head.Index)
			continue
		}
		if err != nil {
			return models.Block{}, err
		}

		slog.Info("Forged block", "height", block.Index, "proof", block.Proof, "transactions", len(block.Transactions))
		return block, nil
	}
}
