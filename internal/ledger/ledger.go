// Package ledger owns the in-memory chain of blocks and the pool of pending
// transactions waiting to be sealed into the next block.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/pow"
)

const (
	// GenesisPreviousHash is the sentinel previous hash of the first block.
	GenesisPreviousHash = "1"
	// GenesisProof is the fixed proof of the first block.
	GenesisProof int64 = 100
)

var (
	ErrEmptyLedger  = errors.New("ledger has no blocks")
	ErrStaleHead    = errors.New("last block changed since the proof search started")
	ErrInvalidProof = errors.New("proof does not solve the puzzle for the last block")
)

// Ledger is safe for concurrent use. Submitting, sealing and replacing the chain
// are serialized; readers get deep copies.
type Ledger struct {
	mu      sync.RWMutex
	chain   []models.Block
	pending []models.Transaction
	now     func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the time source used to stamp sealed blocks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger and seals its genesis block.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// The genesis seal never hashes a predecessor, so it cannot fail.
	if _, err := l.sealLocked(GenesisProof, GenesisPreviousHash); err != nil {
		panic(fmt.Errorf("failed to seal genesis block: %w", err))
	}

	return l
}

// SubmitTransaction queues a transaction and returns the index of the block it
// will be sealed into.
func (l *Ledger) SubmitTransaction(sender, recipient string, amount float64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, models.Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
	})
	return l.lastBlockLocked().Index + 1
}

type sealOptions struct {
	previousHash    string
	hasPreviousHash bool
}

type SealOption func(*sealOptions)

// WithPreviousHash pins the previous hash of the sealed block instead of
// hashing the current last block. Mining never uses it.
func WithPreviousHash(hash string) SealOption {
	return func(o *sealOptions) {
		o.previousHash = hash
		o.hasPreviousHash = true
	}
}

// SealBlock moves every pending transaction into a new block carrying proof and
// appends it to the chain.
func (l *Ledger) SealBlock(proof int64, opts ...SealOption) (models.Block, error) {
	var o sealOptions
	for _, opt := range opts {
		opt(&o)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previousHash := o.previousHash
	if !o.hasPreviousHash {
		var err error
		previousHash, err = Hash(l.lastBlockLocked())
		if err != nil {
			return models.Block{}, fmt.Errorf("failed to hash last block: %w", err)
		}
	}

	return l.sealLocked(proof, previousHash)
}

// SealOnto seals a block on top of head, the last block observed before the proof
// search started. It fails with ErrStaleHead when the chain moved in the meantime,
// leaving pending untouched. Otherwise reward is queued and sealed with the rest
// of the pool.
func (l *Ledger) SealOnto(head models.Block, proof int64, reward models.Transaction) (models.Block, error) {
	headHash, err := Hash(head)
	if err != nil {
		return models.Block{}, fmt.Errorf("failed to hash head block: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lastHash, err := Hash(l.lastBlockLocked())
	if err != nil {
		return models.Block{}, fmt.Errorf("failed to hash last block: %w", err)
	}
	if lastHash != headHash {
		return models.Block{}, ErrStaleHead
	}
	if !pow.Valid(head.Proof, proof) {
		return models.Block{}, ErrInvalidProof
	}

	l.pending = append(l.pending, reward)
	return l.sealLocked(proof, lastHash)
}

func (l *Ledger) sealLocked(proof int64, previousHash string) (models.Block, error) {
	transactions := l.pending
	if transactions == nil {
		transactions = []models.Transaction{}
	}

	now := l.now()
	block := models.Block{
		Index:        int64(len(l.chain)) + 1,
		Timestamp:    float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second),
		Transactions: transactions,
		Proof:        proof,
		PreviousHash: previousHash,
	}
	l.chain = append(l.chain, block)
	l.pending = nil

	return cloneBlock(block), nil
}

// LastBlock returns the most recently appended block. It panics with
// ErrEmptyLedger on a ledger that was not built with New.
func (l *Ledger) LastBlock() models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneBlock(l.lastBlockLocked())
}

func (l *Ledger) lastBlockLocked() models.Block {
	if len(l.chain) == 0 {
		panic(ErrEmptyLedger)
	}
	return l.chain[len(l.chain)-1]
}

// Chain returns a snapshot of the chain.
func (l *Ledger) Chain() []models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneChain(l.chain)
}

// Len returns the number of blocks in the chain.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Pending returns a snapshot of the transactions waiting for the next block.
func (l *Ledger) Pending() []models.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.pending)
}

// PendingLen returns the number of transactions waiting for the next block.
func (l *Ledger) PendingLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// ReplaceChain swaps the chain for candidate when candidate is valid and strictly
// longer than the chain held at swap time. Pending transactions are kept.
// Candidates must start from a genesis block.
func (l *Ledger) ReplaceChain(candidate []models.Block) (bool, error) {
	if err := ValidateFromGenesis(candidate); err != nil {
		return false, fmt.Errorf("refusing to adopt chain: %w", err)
	}
	replacement := cloneChain(candidate)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(replacement) <= len(l.chain) {
		return false, nil
	}
	l.chain = replacement
	return true, nil
}

func cloneBlock(block models.Block) models.Block {
	block.Transactions = slices.Clone(block.Transactions)
	if block.Transactions == nil {
		block.Transactions = []models.Transaction{}
	}
	return block
}

func cloneChain(chain []models.Block) []models.Block {
	out := make([]models.Block, len(chain))
	for i, block := range chain {
		out[i] = cloneBlock(block)
	}
	return out
}
