// Package pow implements the proof-of-work puzzle that links consecutive blocks.
//
// A proof is valid for the previous proof when the hex SHA-256 digest of the two
// decimal values concatenated without a separator starts with DifficultyPrefix.
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// DifficultyPrefix is the leading substring a valid proof digest must carry.
const DifficultyPrefix = "0000"

// cancellation is checked once every checkInterval candidates.
const checkInterval = 1 << 12

var ErrSearchExhausted = errors.New("proof search exhausted its iteration budget")

// Valid reports whether proof solves the puzzle for lastProof.
func Valid(lastProof, proof int64) bool {
	guess := strconv.FormatInt(lastProof, 10) + strconv.FormatInt(proof, 10)
	digest := sha256.Sum256([]byte(guess))
	return strings.HasPrefix(hex.EncodeToString(digest[:]), DifficultyPrefix)
}

// Compute returns the smallest non-negative proof that is valid for lastProof.
// The search is unbounded.
func Compute(lastProof int64) int64 {
	proof, _ := Engine{}.Search(context.Background(), lastProof)
	return proof
}

// Engine runs proof searches. A zero MaxIterations means no cap.
type Engine struct {
	MaxIterations uint64
}

// Search scans candidates upward from zero and returns the first valid proof.
// It stops early when ctx is done or when MaxIterations candidates were rejected.
func (e Engine) Search(ctx context.Context, lastProof int64) (int64, error) {
	var iterations uint64
	for proof := int64(0); ; proof++ {
		if Valid(lastProof, proof) {
			return proof, nil
		}

		iterations++
		if e.MaxIterations != 0 && iterations >= e.MaxIterations {
			return 0, ErrSearchExhausted
		}
		if iterations%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
	}
}
