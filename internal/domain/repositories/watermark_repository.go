package repositories

import (
	"context"

	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// WatermarkRepository persists named indexing cursors
type WatermarkRepository interface {
	// Get retrieves a watermark, returning nil when it was never set
	Get(ctx context.Context, name string) (*entities.Watermark, error)

	// Set creates or moves a watermark
	Set(ctx context.Context, name string, blockNumber uint64) error
}
