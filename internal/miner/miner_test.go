package miner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/pow"
)

func TestMineSealsPendingAndReward(t *testing.T) {
	l := ledger.New()
	l.SubmitTransaction("alice", "bob", 5)
	genesis := l.LastBlock()

	block, err := New(l, "node-1", pow.Engine{}).Mine(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), block.Index)
	assert.True(t, pow.Valid(genesis.Proof, block.Proof))
	assert.Equal(t, pow.Compute(genesis.Proof), block.Proof)

	genesisHash, err := ledger.Hash(genesis)
	require.NoError(t, err)
	assert.Equal(t, genesisHash, block.PreviousHash)

	assert.Equal(t, []models.Transaction{
		{Sender: "alice", Recipient: "bob", Amount: 5},
		{Sender: RewardSender, Recipient: "node-1", Amount: RewardAmount},
	}, block.Transactions)
	assert.Zero(t, l.PendingLen())
	assert.True(t, ledger.IsValid(l.Chain()))
}

func TestMineEmptyPool(t *testing.T) {
	l := ledger.New()

	block, err := New(l, "node-1", pow.Engine{}).Mine(context.Background())
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, RewardSender, block.Transactions[0].Sender)
}

func TestMineRepeatedly(t *testing.T) {
	l := ledger.New()
	m := New(l, "node-1", pow.Engine{})

	for i := 0; i < 3; i++ {
		_, err := m.Mine(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 4, l.Len())
	assert.True(t, ledger.IsValid(l.Chain()))
}

func TestMineCancelled(t *testing.T) {
	l := ledger.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A pre-cancelled search may still find a proof within the first batch.
	block, err := New(l, "node-1", pow.Engine{}).Mine(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, l.Len())
		return
	}
	assert.Equal(t, int64(2), block.Index)
}

func TestMineExhausted(t *testing.T) {
	l := ledger.New()
	l.SubmitTransaction("alice", "bob", 1)

	_, err := New(l, "node-1", pow.Engine{MaxIterations: 1}).Mine(context.Background())
	require.ErrorIs(t, err, pow.ErrSearchExhausted)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 1, l.PendingLen())
}

// racingSearcher seals a competing block while its first search is running.
type racingSearcher struct {
	ledger *ledger.Ledger
	engine pow.Engine

	mu       sync.Mutex
	searched []int64
	rival    models.Block
}

func (s *racingSearcher) Search(ctx context.Context, lastProof int64) (int64, error) {
	proof, err := s.engine.Search(ctx, lastProof)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.searched = append(s.searched, lastProof)
	if len(s.searched) == 1 {
		rival, err := s.ledger.SealBlock(proof)
		if err != nil {
			return 0, err
		}
		s.rival = rival
	}
	return proof, nil
}

func TestMineRetriesWhenHeadMoves(t *testing.T) {
	l := ledger.New()
	l.SubmitTransaction("alice", "bob", 5)
	genesis := l.LastBlock()
	searcher := &racingSearcher{ledger: l}

	block, err := New(l, "node-1", searcher).Mine(context.Background())
	require.NoError(t, err)

	require.Len(t, searcher.searched, 2)
	assert.Equal(t, genesis.Proof, searcher.searched[0])
	assert.Equal(t, searcher.rival.Proof, searcher.searched[1])

	rivalHash, err := ledger.Hash(searcher.rival)
	require.NoError(t, err)
	assert.Equal(t, int64(3), block.Index)
	assert.Equal(t, rivalHash, block.PreviousHash)
	assert.True(t, pow.Valid(searcher.rival.Proof, block.Proof))

	// The rival sealed the pending pool; only the reward is left for the miner.
	assert.Equal(t, []models.Transaction{{Sender: RewardSender, Recipient: "node-1", Amount: RewardAmount}}, block.Transactions)
	assert.Equal(t, 3, l.Len())
	assert.True(t, ledger.IsValid(l.Chain()))
}
