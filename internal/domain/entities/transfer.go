package entities

import (
	"time"

	"github.com/holiman/uint256"
)

const (
	// DefaultQueryLimit is used when a caller does not ask for a positive limit
	DefaultQueryLimit = 100
	// MaxQueryLimit is the hard upper bound for a single query
	MaxQueryLimit = 1000
)

// TransferRecord represents a stored ERC-20 Transfer event.
// (TransactionHash, LogIndex) is the unique key.
type TransferRecord struct {
	ID              int64        `db:"id"`
	TokenAddress    string       `db:"token_address"`
	FromAddress     string       `db:"from_address"`
	ToAddress       string       `db:"to_address"`
	Amount          *uint256.Int `db:"-"` // Handled separately, stored as decimal text
	AmountString    string       `db:"amount"`
	BlockNumber     uint64       `db:"block_number"`
	TransactionHash string       `db:"transaction_hash"`
	LogIndex        uint         `db:"log_index"`
	Timestamp       int64        `db:"block_timestamp"`
	CreatedAt       time.Time    `db:"created_at"`
}

// TransferStats holds aggregate figures over the transfers table
type TransferStats struct {
	TotalRecords   uint64 `db:"total_records"`
	MaxBlockNumber uint64 `db:"max_block_number"`
}

// ClampLimit bounds a requested limit to [1, max], mapping non-positive values to def
func ClampLimit(limit, def, max int) int {
	if def <= 0 {
		def = DefaultQueryLimit
	}
	if max <= 0 {
		max = MaxQueryLimit
	}
	if def > max {
		def = max
	}
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
