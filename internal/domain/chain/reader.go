package chain

import (
	"context"

	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// Reader is the blockchain access the indexing pipeline depends on
type Reader interface {
	// GetChainTip returns the current head block number
	GetChainTip(ctx context.Context) (uint64, error)

	// GetTransferLogs returns decoded Transfer events in [fromBlock, toBlock]
	GetTransferLogs(ctx context.Context, fromBlock, toBlock uint64) ([]entities.TransferLog, error)
}
