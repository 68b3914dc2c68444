package entities

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TransferLog is a decoded Transfer event as returned by the chain reader
type TransferLog struct {
	TokenAddress    common.Address
	FromAddress     common.Address
	ToAddress       common.Address
	Amount          *uint256.Int
	BlockNumber     uint64
	TransactionHash common.Hash
	LogIndex        uint
	BlockTimestamp  int64
}

// ToRecord maps a decoded log to its storage form with lowercase hex addresses
func (l *TransferLog) ToRecord() *TransferRecord {
	amount := new(uint256.Int)
	if l.Amount != nil {
		amount.Set(l.Amount)
	}

	return &TransferRecord{
		TokenAddress:    strings.ToLower(l.TokenAddress.Hex()),
		FromAddress:     strings.ToLower(l.FromAddress.Hex()),
		ToAddress:       strings.ToLower(l.ToAddress.Hex()),
		Amount:          amount,
		AmountString:    amount.Dec(),
		BlockNumber:     l.BlockNumber,
		TransactionHash: l.TransactionHash.Hex(),
		LogIndex:        l.LogIndex,
		Timestamp:       l.BlockTimestamp,
	}
}

// BlockRange is an inclusive range of block numbers
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Size returns the number of blocks in the range
func (r BlockRange) Size() uint64 {
	if r.From > r.To {
		return 0
	}
	return r.To - r.From + 1
}

// ScanResult summarizes one RangeIndexer run
type ScanResult struct {
	FromBlock        uint64        `json:"from_block"`
	ToBlock          uint64        `json:"to_block"`
	BlocksScanned    uint64        `json:"blocks_scanned"`
	RecordsFound     int           `json:"records_found"`
	NewRecords       int           `json:"new_records"`
	DuplicateRecords int           `json:"duplicate_records"`
	RecordsFailed    int           `json:"records_failed"`
	RangesFailed     int           `json:"ranges_failed"`
	FailedRanges     []BlockRange  `json:"failed_ranges"`
	Duration         time.Duration `json:"duration_ns"`

	// ContiguousThrough is the last block of the leading run of successful
	// sub-ranges, or FromBlock-1 (floored at 0) when the first sub-range failed.
	ContiguousThrough uint64 `json:"contiguous_through"`
}

// Complete reports whether every sub-range was processed
func (r *ScanResult) Complete() bool {
	return r.RangesFailed == 0
}
