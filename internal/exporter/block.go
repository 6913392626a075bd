package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/output"
	"github.com/liftedinit/powchain/internal/utils"
)

// exportBlocks writes blocks start..stop (1-based, inclusive).
func exportBlocks(ctx context.Context, chain []models.Block, start, stop uint64, outputHandler output.OutputHandler, maxConcurrency, maxRetries uint) error {
	displayProgress := start != stop
	if displayProgress {
		slog.Info("Exporting blocks", "range", fmt.Sprintf("[%d, %d]", start, stop))
	} else {
		slog.Info("Exporting blocks", "height", start)
	}

	var bar *progressbar.ProgressBar
	if displayProgress {
		bar = progressbar.NewOptions64(
			int64(stop-start+1),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Exporting blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	if err := processBlocks(ctx, chain, start, stop, outputHandler, maxConcurrency, maxRetries, bar); err != nil {
		return err
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}
	return nil
}

func processBlocks(ctx context.Context, chain []models.Block, start, stop uint64, outputHandler output.OutputHandler, maxConcurrency, maxRetries uint, bar *progressbar.ProgressBar) error {
	eg, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrency)

	for height := start; height <= stop; height++ {
		if gctx.Err() != nil {
			break
		}

		block := &chain[height-1]
		sem <- struct{}{}

		eg.Go(func() error {
			defer func() { <-sem }()

			if err := writeBlockWithRetry(gctx, block, outputHandler, maxRetries); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Failed to export block", "height", block.Index, "error", err, "retries", maxRetries)
				}
				return fmt.Errorf("failed to export block %d: %w", block.Index, err)
			}

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		slog.Info("Export cancelled by user")
		return err
	}
	return nil
}

func writeBlockWithRetry(ctx context.Context, block *models.Block, outputHandler output.OutputHandler, maxRetries uint) error {
	_, err := utils.Retry(ctx, fmt.Sprintf("write block %d", block.Index), maxRetries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, outputHandler.WriteBlock(ctx, block)
	})
	return err
}
