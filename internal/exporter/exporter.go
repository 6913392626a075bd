// Package exporter copies a node's chain into an output handler.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/output"
	"github.com/liftedinit/powchain/internal/utils"
)

// Source serves the chain to export. client.NodeClient implements it.
type Source interface {
	Chain(ctx context.Context) (models.ChainResponse, error)
}

var errUpToDate = errors.New("export is up to date")

// Export fetches and validates the node's chain, then writes the configured
// block range to outputHandler.
func Export(ctx context.Context, source Source, outputHandler output.OutputHandler, cfg config.ExportConfig) error {
	// The missing block check only runs when the range comes from the handler.
	skipMissingBlockCheck := shouldSkipMissingBlockCheck(cfg)

	chain, err := fetchChain(ctx, source, cfg.MaxRetries)
	if err != nil {
		return err
	}

	if err := setBlockRange(ctx, chain, outputHandler, &cfg); err != nil {
		if errors.Is(err, errUpToDate) {
			slog.Info("Nothing to export", "length", len(chain))
			return nil
		}
		return err
	}

	if !skipMissingBlockCheck {
		if err := processMissingBlocks(ctx, chain, outputHandler, cfg); err != nil {
			return err
		}
	}

	slog.Info("Starting export", "start", cfg.BlockStart, "stop", cfg.BlockStop)
	if err := exportBlocks(ctx, chain, cfg.BlockStart, cfg.BlockStop, outputHandler, cfg.MaxConcurrency, cfg.MaxRetries); err != nil {
		return fmt.Errorf("failed to export blocks: %w", err)
	}
	return nil
}

// fetchChain downloads the chain and refuses it unless it is internally
// consistent.
func fetchChain(ctx context.Context, source Source, maxRetries uint) ([]models.Block, error) {
	resp, err := utils.Retry(ctx, "fetch chain", maxRetries, source.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain: %w", err)
	}
	if resp.Length != len(resp.Chain) {
		return nil, fmt.Errorf("node reported length %d for a chain of %d blocks", resp.Length, len(resp.Chain))
	}
	if err := ledger.ValidateFromGenesis(resp.Chain); err != nil {
		return nil, fmt.Errorf("refusing to export chain: %w", err)
	}
	return resp.Chain, nil
}

// setBlockRange resolves the range to export.
// Without --start the export resumes after the latest stored block, or
// restarts from 1 when that block no longer belongs to the node's chain.
// Without --stop it runs to the end of the chain. A reindex drops every
// stored block above the stop block, so no block of an older chain survives.
func setBlockRange(ctx context.Context, chain []models.Block, outputHandler output.OutputHandler, cfg *config.ExportConfig) error {
	length := uint64(len(chain))

	reindex := cfg.ReIndex
	if reindex {
		slog.Info("Reindexing entire export...")
		cfg.BlockStart = 1
		cfg.BlockStop = 0
	}

	resumed := false
	if cfg.BlockStart == 0 {
		cfg.BlockStart = 1
		latest, err := outputHandler.GetLatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("failed to get the latest block: %w", err)
		}
		if latest != nil {
			start, err := resumePoint(chain, *latest)
			if err != nil {
				return err
			}
			cfg.BlockStart = start
			resumed = true
			reindex = start == 1
		}
	}

	if cfg.BlockStop == 0 {
		cfg.BlockStop = length
	}
	if cfg.BlockStop > length {
		return fmt.Errorf("stop block %d is beyond the chain length %d", cfg.BlockStop, length)
	}

	if cfg.BlockStart > cfg.BlockStop {
		if resumed {
			return errUpToDate
		}
		return fmt.Errorf("start block is greater than stop block")
	}

	if reindex {
		if err := outputHandler.DeleteBlocksAfter(ctx, cfg.BlockStop); err != nil {
			return fmt.Errorf("failed to truncate the export: %w", err)
		}
	}

	return nil
}

// resumePoint returns the first block to export after latest, or 1 when latest
// does not belong to chain.
func resumePoint(chain []models.Block, latest models.Block) (uint64, error) {
	if latest.Index < 1 || latest.Index > int64(len(chain)) {
		slog.Warn("Exported chain is longer than the node's chain, reindexing", "height", latest.Index)
		return 1, nil
	}

	stored, err := ledger.Hash(latest)
	if err != nil {
		return 0, fmt.Errorf("failed to hash the latest exported block: %w", err)
	}
	current, err := ledger.Hash(chain[latest.Index-1])
	if err != nil {
		return 0, fmt.Errorf("failed to hash block %d: %w", latest.Index, err)
	}
	if stored != current {
		slog.Warn("Exported chain diverged from the node's chain, reindexing", "height", latest.Index)
		return 1, nil
	}

	slog.Info("Resuming from block", "height", latest.Index)
	return uint64(latest.Index) + 1, nil
}

// shouldSkipMissingBlockCheck returns true if the missing block check should be skipped.
func shouldSkipMissingBlockCheck(cfg config.ExportConfig) bool {
	return (cfg.BlockStart != 0 && cfg.BlockStop != 0) || cfg.ReIndex
}

func processMissingBlocks(ctx context.Context, chain []models.Block, outputHandler output.OutputHandler, cfg config.ExportConfig) error {
	finder, ok := outputHandler.(output.MissingBlockFinder)
	if !ok {
		return nil
	}

	missingBlockIds, err := finder.GetMissingBlockIds(ctx)
	if err != nil {
		return fmt.Errorf("failed to get missing block IDs: %w", err)
	}
	if len(missingBlockIds) == 0 {
		return nil
	}

	slog.Warn("Missing blocks detected", "count", len(missingBlockIds))
	for _, id := range missingBlockIds {
		if id < 1 || id > uint64(len(chain)) {
			continue
		}
		if err := writeBlockWithRetry(ctx, &chain[id-1], outputHandler, cfg.MaxRetries); err != nil {
			return fmt.Errorf("failed to export missing block %d: %w", id, err)
		}
	}
	return nil
}
