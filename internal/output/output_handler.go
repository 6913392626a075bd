package output

import (
	"context"

	"github.com/liftedinit/powchain/internal/models"
)

// OutputHandler persists exported blocks.
type OutputHandler interface {
	// WriteBlock stores block and its transactions, replacing any previous copy
	// of the same index.
	WriteBlock(ctx context.Context, block *models.Block) error
	// GetLatestBlock returns the stored block with the highest index, or nil when
	// nothing was exported yet.
	GetLatestBlock(ctx context.Context) (*models.Block, error)
	// DeleteBlocksAfter removes every stored block above index, with its
	// transactions.
	DeleteBlocksAfter(ctx context.Context, index uint64) error
	Close() error
}

// MissingBlockFinder is implemented by handlers that can report gaps between
// the first block and their latest stored block.
type MissingBlockFinder interface {
	GetMissingBlockIds(ctx context.Context) ([]uint64, error)
}
