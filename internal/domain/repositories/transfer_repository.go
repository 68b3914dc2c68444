package repositories

import (
	"context"

	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// TransferRepository defines the interface for transfer record storage
type TransferRepository interface {
	// Insert stores a record. A record whose (transaction_hash, log_index)
	// already exists is absorbed and reported with inserted=false.
	Insert(ctx context.Context, record *entities.TransferRecord) (inserted bool, err error)

	// QueryByAddress returns records sent or received by address, newest first
	QueryByAddress(ctx context.Context, address string, limit int) ([]entities.TransferRecord, error)

	// QueryByToken returns records of a token contract, newest first
	QueryByToken(ctx context.Context, tokenAddress string, limit int) ([]entities.TransferRecord, error)

	// QueryRecent returns the newest records across all tokens and addresses
	QueryRecent(ctx context.Context, limit int) ([]entities.TransferRecord, error)

	// Stats returns the total record count and the highest stored block
	Stats(ctx context.Context) (*entities.TransferStats, error)
}
