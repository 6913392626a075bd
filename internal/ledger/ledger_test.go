package ledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/pow"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Unix(1506057125, 900785000) }
}

// mine seals the next block with the smallest valid proof.
func mine(t *testing.T, l *ledger.Ledger) models.Block {
	t.Helper()
	block, err := l.SealBlock(pow.Compute(l.LastBlock().Proof))
	require.NoError(t, err)
	return block
}

func TestGenesis(t *testing.T) {
	l := ledger.New()

	chain := l.Chain()
	require.Len(t, chain, 1)
	assert.Equal(t, int64(1), chain[0].Index)
	assert.Equal(t, "1", chain[0].PreviousHash)
	assert.Equal(t, int64(100), chain[0].Proof)
	assert.Empty(t, chain[0].Transactions)
	assert.NotNil(t, chain[0].Transactions)
	assert.Empty(t, l.Pending())
	assert.Equal(t, chain[0], l.LastBlock())
}

func TestSubmitTransactionReturnsNextIndex(t *testing.T) {
	l := ledger.New()

	assert.Equal(t, int64(2), l.SubmitTransaction("alice", "bob", 5))
	assert.Equal(t, int64(2), l.SubmitTransaction("bob", "carol", 1.5))
	mine(t, l)
	assert.Equal(t, int64(3), l.SubmitTransaction("carol", "alice", 0))
	assert.Equal(t, 1, l.PendingLen())
}

func TestPendingPoolLifecycle(t *testing.T) {
	l := ledger.New()
	want := []models.Transaction{
		{Sender: "a", Recipient: "b", Amount: 1},
		{Sender: "b", Recipient: "c", Amount: 2},
		{Sender: "c", Recipient: "a", Amount: 3},
	}
	for _, tx := range want {
		l.SubmitTransaction(tx.Sender, tx.Recipient, tx.Amount)
	}

	block := mine(t, l)

	assert.Equal(t, want, block.Transactions)
	assert.Empty(t, l.Pending())
	assert.Equal(t, want, l.LastBlock().Transactions)
}

func TestMonotonicIndexing(t *testing.T) {
	l := ledger.New()
	for i := 0; i < 4; i++ {
		l.SubmitTransaction("a", "b", float64(i))
		mine(t, l)
	}

	chain := l.Chain()
	require.Len(t, chain, 5)
	for i, block := range chain {
		assert.Equal(t, int64(i+1), block.Index)
	}
	require.NoError(t, ledger.Validate(chain))
}

func TestSealBlockLinksToLastBlock(t *testing.T) {
	l := ledger.New(ledger.WithClock(fixedClock()))
	genesis := l.LastBlock()

	block := mine(t, l)

	genesisHash, err := ledger.Hash(genesis)
	require.NoError(t, err)
	assert.Equal(t, genesisHash, block.PreviousHash)
	assert.Equal(t, 1506057125.900785, block.Timestamp)
}

func TestSealBlockWithPreviousHashOverride(t *testing.T) {
	l := ledger.New()

	block, err := l.SealBlock(42, ledger.WithPreviousHash("abc"))
	require.NoError(t, err)

	assert.Equal(t, "abc", block.PreviousHash)
	assert.Equal(t, int64(2), block.Index)
	assert.False(t, ledger.IsValid(l.Chain()))
}

func TestSealOnto(t *testing.T) {
	reward := models.Transaction{Sender: "0", Recipient: "node", Amount: 1}

	t.Run("SealsWithReward", func(t *testing.T) {
		l := ledger.New()
		l.SubmitTransaction("a", "b", 3)
		head := l.LastBlock()

		block, err := l.SealOnto(head, pow.Compute(head.Proof), reward)
		require.NoError(t, err)

		assert.Equal(t, []models.Transaction{{Sender: "a", Recipient: "b", Amount: 3}, reward}, block.Transactions)
		assert.Empty(t, l.Pending())
		assert.True(t, ledger.IsValid(l.Chain()))
	})

	t.Run("StaleHead", func(t *testing.T) {
		l := ledger.New()
		head := l.LastBlock()
		proof := pow.Compute(head.Proof)
		mine(t, l)
		l.SubmitTransaction("a", "b", 3)

		_, err := l.SealOnto(head, proof, reward)
		assert.ErrorIs(t, err, ledger.ErrStaleHead)
		assert.Equal(t, 2, l.Len())
		assert.Equal(t, []models.Transaction{{Sender: "a", Recipient: "b", Amount: 3}}, l.Pending())
	})

	t.Run("InvalidProof", func(t *testing.T) {
		l := ledger.New()
		head := l.LastBlock()
		proof := pow.Compute(head.Proof)

		if pow.Valid(head.Proof, proof+1) {
			t.Skip("consecutive proofs are both valid")
		}
		_, err := l.SealOnto(head, proof+1, reward)
		assert.ErrorIs(t, err, ledger.ErrInvalidProof)
		assert.Equal(t, 1, l.Len())
		assert.Empty(t, l.Pending())
	})
}

func TestChainReturnsSnapshot(t *testing.T) {
	l := ledger.New()
	l.SubmitTransaction("a", "b", 1)
	mine(t, l)

	snapshot := l.Chain()
	snapshot[1].Transactions[0].Amount = 1000
	snapshot[0].Proof = 7

	chain := l.Chain()
	assert.Equal(t, float64(1), chain[1].Transactions[0].Amount)
	assert.Equal(t, int64(100), chain[0].Proof)
}

func TestReplaceChain(t *testing.T) {
	longer := ledger.New()
	for i := 0; i < 3; i++ {
		mine(t, longer)
	}

	t.Run("Longer", func(t *testing.T) {
		l := ledger.New()
		l.SubmitTransaction("a", "b", 1)

		replaced, err := l.ReplaceChain(longer.Chain())
		require.NoError(t, err)
		assert.True(t, replaced)
		assert.Equal(t, longer.Chain(), l.Chain())
		assert.Len(t, l.Pending(), 1)
	})

	t.Run("EqualLength", func(t *testing.T) {
		l := ledger.New()
		for i := 0; i < 3; i++ {
			mine(t, l)
		}
		before := l.Chain()

		replaced, err := l.ReplaceChain(longer.Chain())
		require.NoError(t, err)
		assert.False(t, replaced)
		assert.Equal(t, before, l.Chain())
	})

	t.Run("Invalid", func(t *testing.T) {
		l := ledger.New()
		candidate := longer.Chain()
		candidate[2].PreviousHash = "broken"

		replaced, err := l.ReplaceChain(candidate)
		assert.Error(t, err)
		assert.False(t, replaced)
		assert.Equal(t, 1, l.Len())
	})

	t.Run("NotStartingAtGenesis", func(t *testing.T) {
		source := ledger.New()
		for i := 0; i < 4; i++ {
			mine(t, source)
		}
		// Blocks 3..5 link correctly to each other but have no genesis.
		candidate := source.Chain()[2:]
		require.NoError(t, ledger.Validate(candidate))

		l := ledger.New()
		replaced, err := l.ReplaceChain(candidate)
		assert.ErrorIs(t, err, ledger.ErrNotAnchored)
		assert.False(t, replaced)
		require.Equal(t, 1, l.Len())

		assert.Equal(t, int64(2), l.SubmitTransaction("a", "b", 1))
		block := mine(t, l)
		assert.Equal(t, int64(2), block.Index)
		assert.True(t, ledger.IsValid(l.Chain()))
	})
}

func TestZeroLedgerPanics(t *testing.T) {
	var l ledger.Ledger
	assert.PanicsWithError(t, ledger.ErrEmptyLedger.Error(), func() {
		l.LastBlock()
	})
}

func TestConcurrentSubmitAndSeal(t *testing.T) {
	l := ledger.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.SubmitTransaction("a", "b", float64(i))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.SealBlock(pow.Compute(l.LastBlock().Proof))
		assert.NoError(t, err)
	}()
	wg.Wait()

	total := l.PendingLen()
	for _, block := range l.Chain() {
		total += len(block.Transactions)
	}
	assert.Equal(t, 50, total)
	assert.True(t, ledger.IsValid(l.Chain()))
}
