package ledger

import (
	"errors"
	"fmt"

	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/pow"
)

var (
	ErrEmptyChain  = errors.New("chain has no blocks")
	ErrNotAnchored = errors.New("chain does not start with a genesis block")
)

// InvalidChainError identifies the first block of a chain that breaks linkage.
// Position is the offset of the offending block inside the validated slice.
type InvalidChainError struct {
	Position int
	Reason   string
}

func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("invalid block at position %d: %s", e.Position, e.Reason)
}

// Validate walks every adjacent pair of blocks and checks that each block
// references the digest of its predecessor, carries the next index and holds a
// proof solving the puzzle for the previous proof. A single block is valid.
func Validate(chain []models.Block) error {
	if len(chain) == 0 {
		return ErrEmptyChain
	}

	for i := 1; i < len(chain); i++ {
		previous, current := chain[i-1], chain[i]

		previousHash, err := Hash(previous)
		if err != nil {
			return &InvalidChainError{Position: i - 1, Reason: err.Error()}
		}
		if current.PreviousHash != previousHash {
			return &InvalidChainError{
				Position: i,
				Reason:   fmt.Sprintf("previous hash %q does not match %q", current.PreviousHash, previousHash),
			}
		}
		if current.Index != previous.Index+1 {
			return &InvalidChainError{
				Position: i,
				Reason:   fmt.Sprintf("index %d does not follow %d", current.Index, previous.Index),
			}
		}
		if !pow.Valid(previous.Proof, current.Proof) {
			return &InvalidChainError{
				Position: i,
				Reason:   fmt.Sprintf("proof %d does not solve the puzzle for %d", current.Proof, previous.Proof),
			}
		}
	}

	return nil
}

// ValidateFromGenesis is Validate for a complete chain: the first block must
// also carry index 1 and the genesis previous hash. Chains adopted by a ledger
// go through it.
func ValidateFromGenesis(chain []models.Block) error {
	if err := Validate(chain); err != nil {
		return err
	}
	if first := chain[0]; first.Index != 1 || first.PreviousHash != GenesisPreviousHash {
		return fmt.Errorf("%w: first block has index %d and previous hash %q", ErrNotAnchored, first.Index, first.PreviousHash)
	}
	return nil
}

// IsValid reports whether Validate accepts the chain.
func IsValid(chain []models.Block) bool {
	return Validate(chain) == nil
}
