package entities

import (
	"time"
)

// TransfersWatermark is the indexer_state row owned by the scheduler
const TransfersWatermark = "transfers"

// Watermark is the highest block height known to be fully indexed
type Watermark struct {
	Name        string    `db:"name" json:"name"`
	BlockNumber uint64    `db:"last_indexed_block" json:"last_indexed_block"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
