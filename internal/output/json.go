package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
)

const (
	blockFilePrefix = "block_"
	txFilePrefix    = "tx_"
)

// JSONOutputHandler writes every block as canonical JSON under block/ and every
// transaction under txs/.
type JSONOutputHandler struct {
	blockDir string
	txDir    string
}

func NewJSONOutputHandler(outDir string) (*JSONOutputHandler, error) {
	blockDir := filepath.Join(outDir, "block")
	txDir := filepath.Join(outDir, "txs")

	err := os.MkdirAll(blockDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks directory: %w", err)
	}

	err = os.MkdirAll(txDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions directory: %w", err)
	}

	return &JSONOutputHandler{
		blockDir: blockDir,
		txDir:    txDir,
	}, nil
}

func (h *JSONOutputHandler) WriteBlock(_ context.Context, block *models.Block) error {
	if err := h.writeBlock(block); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}

	for i, tx := range block.Transactions {
		if err := h.writeTransaction(block.Index, i, tx); err != nil {
			return fmt.Errorf("failed to write transaction: %w", err)
		}
	}

	// A rewritten block may carry fewer transactions than the stored one.
	if err := h.removeTransactions(func(blockIndex int64, position int) bool {
		return blockIndex == block.Index && position >= len(block.Transactions)
	}); err != nil {
		return fmt.Errorf("failed to remove stale transactions of block %d: %w", block.Index, err)
	}

	return nil
}

// writeBlock stores the canonical form, so the SHA-256 of a block file is the
// block hash.
func (h *JSONOutputHandler) writeBlock(block *models.Block) error {
	data, err := ledger.CanonicalBytes(*block)
	if err != nil {
		return err
	}
	fileName := fmt.Sprintf("%s%010d.json", blockFilePrefix, block.Index)
	return os.WriteFile(filepath.Join(h.blockDir, fileName), data, 0644)
}

func (h *JSONOutputHandler) writeTransaction(blockIndex int64, position int, tx models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	fileName := fmt.Sprintf("%s%d_%d.json", txFilePrefix, blockIndex, position)
	return os.WriteFile(filepath.Join(h.txDir, fileName), data, 0644)
}

func (h *JSONOutputHandler) GetLatestBlock(_ context.Context) (*models.Block, error) {
	entries, err := os.ReadDir(h.blockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), blockFilePrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	// Zero padded indexes sort lexically.
	slices.Sort(names)

	data, err := os.ReadFile(filepath.Join(h.blockDir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("failed to read the latest block: %w", err)
	}
	var block models.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode the latest block: %w", err)
	}
	return &block, nil
}

func (h *JSONOutputHandler) DeleteBlocksAfter(_ context.Context, index uint64) error {
	entries, err := os.ReadDir(h.blockDir)
	if err != nil {
		return fmt.Errorf("failed to list blocks directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, blockFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		blockIndex, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, blockFilePrefix), ".json"), 10, 64)
		if err != nil || blockIndex <= index {
			continue
		}
		if err := os.Remove(filepath.Join(h.blockDir, name)); err != nil {
			return fmt.Errorf("failed to remove block %d: %w", blockIndex, err)
		}
	}

	return h.removeTransactions(func(blockIndex int64, _ int) bool {
		return blockIndex > 0 && uint64(blockIndex) > index
	})
}

// removeTransactions deletes the transaction files selected by match.
func (h *JSONOutputHandler) removeTransactions(match func(blockIndex int64, position int) bool) error {
	entries, err := os.ReadDir(h.txDir)
	if err != nil {
		return fmt.Errorf("failed to list transactions directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, txFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		blockPart, positionPart, ok := strings.Cut(strings.TrimSuffix(strings.TrimPrefix(name, txFilePrefix), ".json"), "_")
		if !ok {
			continue
		}
		blockIndex, err := strconv.ParseInt(blockPart, 10, 64)
		if err != nil {
			continue
		}
		position, err := strconv.Atoi(positionPart)
		if err != nil {
			continue
		}
		if !match(blockIndex, position) {
			continue
		}
		if err := os.Remove(filepath.Join(h.txDir, name)); err != nil {
			return fmt.Errorf("failed to remove transaction file %s: %w", name, err)
		}
	}
	return nil
}

func (h *JSONOutputHandler) Close() error {
	return nil
}
