package ethereum

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// TransferEventSignature is the keccak256 hash of Transfer(address,address,uint256)
var TransferEventSignature = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// ParseTransferLog decodes a raw log into a TransferLog.
// Logs with a non-indexed sender/recipient (ERC-721 style or malformed) are rejected.
func ParseTransferLog(log types.Log, blockTimestamp int64) (*entities.TransferLog, error) {
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("invalid number of topics: expected 3, got %d", len(log.Topics))
	}

	if log.Topics[0] != TransferEventSignature {
		return nil, fmt.Errorf("not a Transfer event")
	}

	if len(log.Data) != 32 {
		return nil, fmt.Errorf("invalid data length: expected 32, got %d", len(log.Data))
	}

	return &entities.TransferLog{
		TokenAddress:    log.Address,
		FromAddress:     common.BytesToAddress(log.Topics[1].Bytes()),
		ToAddress:       common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:          new(uint256.Int).SetBytes32(log.Data),
		BlockNumber:     log.BlockNumber,
		TransactionHash: log.TxHash,
		LogIndex:        log.Index,
		BlockTimestamp:  blockTimestamp,
	}, nil
}

// ParseTransferLogs decodes logs using per-block timestamps.
// Returns the decoded logs and the indices of logs that could not be decoded.
func ParseTransferLogs(logs []types.Log, blockTimestamps map[uint64]int64) ([]entities.TransferLog, []int) {
	transfers := make([]entities.TransferLog, 0, len(logs))
	failedIndices := make([]int, 0)

	for i, log := range logs {
		if log.Removed {
			continue
		}

		timestamp, ok := blockTimestamps[log.BlockNumber]
		if !ok {
			failedIndices = append(failedIndices, i)
			continue
		}

		transfer, err := ParseTransferLog(log, timestamp)
		if err != nil {
			failedIndices = append(failedIndices, i)
			continue
		}

		transfers = append(transfers, *transfer)
	}

	return transfers, failedIndices
}

// IsTransferEvent checks if a log is a Transfer event
func IsTransferEvent(log types.Log) bool {
	return len(log.Topics) == 3 && log.Topics[0] == TransferEventSignature
}
