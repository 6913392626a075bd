package postgresql

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/models"
)

//go:embed migrations/*
var migrationsFS embed.FS

type PostgresOutputHandler struct {
	pool *pgxpool.Pool
}

func (h *PostgresOutputHandler) GetPool() *pgxpool.Pool {
	return h.pool
}

func NewPostgresOutputHandler(connString string, maxConcurrency uint) (*PostgresOutputHandler, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	if maxConcurrency > math.MaxInt32 {
		return nil, fmt.Errorf("max concurrency exceeds maximum int32 value")
	}
	config.MaxConns = int32(maxConcurrency)

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	handler := &PostgresOutputHandler{
		pool: pool,
	}

	// Idempotent.
	if err = handler.runMigrations(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return handler, nil
}

func (h *PostgresOutputHandler) GetLatestBlock(ctx context.Context) (*models.Block, error) {
	var data []byte
	err := h.pool.QueryRow(ctx, `
		SELECT data
		FROM api.blocks
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get the latest block: %w", err)
	}

	var block models.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode the latest block: %w", err)
	}
	return &block, nil
}

// GetMissingBlockIds lists the indexes absent between the genesis block and the
// latest stored block.
func (h *PostgresOutputHandler) GetMissingBlockIds(ctx context.Context) ([]uint64, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT s.id
		FROM generate_series(1, (SELECT COALESCE(MAX(id), 0) FROM api.blocks)) AS s(id)
		LEFT JOIN api.blocks t ON t.id = s.id
		WHERE t.id IS NULL
		ORDER BY s.id;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get missing block IDs: %w", err)
	}
	defer rows.Close()

	var missing []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan missing block ID: %w", err)
		}
		missing = append(missing, uint64(id))
	}

	return missing, rows.Err()
}

func (h *PostgresOutputHandler) WriteBlock(ctx context.Context, block *models.Block) error {
	hash, err := ledger.Hash(*block)
	if err != nil {
		return fmt.Errorf("failed to hash block %d: %w", block.Index, err)
	}
	data, err := ledger.CanonicalBytes(*block)
	if err != nil {
		return err
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO api.blocks (id, hash, previous_hash, proof, timestamp, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			hash = EXCLUDED.hash,
			previous_hash = EXCLUDED.previous_hash,
			proof = EXCLUDED.proof,
			timestamp = EXCLUDED.timestamp,
			data = EXCLUDED.data;
	`, block.Index, hash, block.PreviousHash, block.Proof, block.Timestamp, data)
	if err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Index, err)
	}

	// A reindexed block may carry fewer transactions than the stored one.
	_, err = tx.Exec(ctx, `DELETE FROM api.transactions WHERE block_id = $1`, block.Index)
	if err != nil {
		return fmt.Errorf("failed to clear transactions of block %d: %w", block.Index, err)
	}

	batch := &pgx.Batch{}
	for i, t := range block.Transactions {
		batch.Queue(`
			INSERT INTO api.transactions (block_id, position, sender, recipient, amount)
			VALUES ($1, $2, $3, $4, $5);
		`, block.Index, i, t.Sender, t.Recipient, t.Amount)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write transactions of block %d: %w", block.Index, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteBlocksAfter drops the blocks above index. Their transactions cascade.
func (h *PostgresOutputHandler) DeleteBlocksAfter(ctx context.Context, index uint64) error {
	if index > math.MaxInt64 {
		return fmt.Errorf("block index %d exceeds maximum int64 value", index)
	}
	tag, err := h.pool.Exec(ctx, `DELETE FROM api.blocks WHERE id > $1`, int64(index))
	if err != nil {
		return fmt.Errorf("failed to delete blocks after %d: %w", index, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("Deleted stale blocks", "after", index, "count", n)
	}
	return nil
}

func (h *PostgresOutputHandler) runMigrations() error {
	slog.Info("Running PostgreSQL migrations...")

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(h.pool), &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (h *PostgresOutputHandler) Close() error {
	slog.Info("Closing PostgreSQL connection pool")
	h.pool.Close()
	slog.Info("PostgreSQL connection pool closed")
	return nil
}
