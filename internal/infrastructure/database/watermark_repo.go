package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/domain/repositories"
)

// Ensure WatermarkRepo implements WatermarkRepository
var _ repositories.WatermarkRepository = (*WatermarkRepo)(nil)

// WatermarkRepo stores watermarks in the indexer_state table
type WatermarkRepo struct {
	db *DB
}

// NewWatermarkRepo creates a new watermark repository
func NewWatermarkRepo(db *DB) *WatermarkRepo {
	return &WatermarkRepo{db: db}
}

// Get retrieves a watermark by name
func (r *WatermarkRepo) Get(ctx context.Context, name string) (*entities.Watermark, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var wm entities.Watermark
	query := `SELECT name, last_indexed_block, updated_at FROM indexer_state WHERE name = $1`

	if err := r.db.db.GetContext(ctx, &wm, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Storage("get watermark", err)
	}

	return &wm, nil
}

// Set creates or moves a watermark
func (r *WatermarkRepo) Set(ctx context.Context, name string, blockNumber uint64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO indexer_state (name, last_indexed_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			last_indexed_block = excluded.last_indexed_block,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.db.ExecContext(ctx, query, name, blockNumber, time.Now().UTC()); err != nil {
		return apperrors.Storage("set watermark", err)
	}

	return nil
}
