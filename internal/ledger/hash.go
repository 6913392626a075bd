package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/liftedinit/powchain/internal/models"
)

// CanonicalBytes returns the RFC 8785 (JCS) encoding of a block: object keys sorted
// recursively, no insignificant whitespace, numbers in shortest round-trip form.
// Transaction order is preserved.
func CanonicalBytes(block models.Block) ([]byte, error) {
	// A nil and an empty transaction list are the same block.
	if block.Transactions == nil {
		block.Transactions = []models.Transaction{}
	}

	raw, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block %d: %w", block.Index, err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize block %d: %w", block.Index, err)
	}
	return canonical, nil
}

// Hash returns the lowercase hex SHA-256 digest of the block's canonical encoding.
func Hash(block models.Block) (string, error) {
	canonical, err := CanonicalBytes(block)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}
