package testutil

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// Common test addresses
const (
	USDTAddress  = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	USDCAddress  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	AliceAddress = "0x1111111111111111111111111111111111111111"
	BobAddress   = "0x2222222222222222222222222222222222222222"
	CharlieAddr  = "0x3333333333333333333333333333333333333333"
)

// CreateTestRecord creates a transfer record with default values
func CreateTestRecord(opts ...RecordOption) entities.TransferRecord {
	r := entities.TransferRecord{
		ID:              1,
		TokenAddress:    USDTAddress,
		FromAddress:     AliceAddress,
		ToAddress:       BobAddress,
		Amount:          uint256.NewInt(1_000_000), // 1 USDT
		AmountString:    "1000000",
		BlockNumber:     12345678,
		TransactionHash: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		LogIndex:        0,
		Timestamp:       time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).Unix(),
		CreatedAt:       time.Date(2024, 1, 15, 10, 31, 0, 0, time.UTC),
	}

	for _, opt := range opts {
		opt(&r)
	}

	return r
}

type RecordOption func(*entities.TransferRecord)

func WithID(id int64) RecordOption {
	return func(r *entities.TransferRecord) {
		r.ID = id
	}
}

func WithTxHash(hash string) RecordOption {
	return func(r *entities.TransferRecord) {
		r.TransactionHash = hash
	}
}

func WithLogIndex(idx uint) RecordOption {
	return func(r *entities.TransferRecord) {
		r.LogIndex = idx
	}
}

func WithBlockNumber(num uint64) RecordOption {
	return func(r *entities.TransferRecord) {
		r.BlockNumber = num
	}
}

func WithTimestamp(ts int64) RecordOption {
	return func(r *entities.TransferRecord) {
		r.Timestamp = ts
	}
}

func WithTokenAddress(addr string) RecordOption {
	return func(r *entities.TransferRecord) {
		r.TokenAddress = addr
	}
}

func WithFromAddress(addr string) RecordOption {
	return func(r *entities.TransferRecord) {
		r.FromAddress = addr
	}
}

func WithToAddress(addr string) RecordOption {
	return func(r *entities.TransferRecord) {
		r.ToAddress = addr
	}
}

func WithAmount(amount *uint256.Int) RecordOption {
	return func(r *entities.TransferRecord) {
		r.Amount = amount
		r.AmountString = amount.Dec()
	}
}

// CreateMultipleRecords creates count records with distinct hashes in ascending blocks
func CreateMultipleRecords(count int, opts ...RecordOption) []entities.TransferRecord {
	records := make([]entities.TransferRecord, count)
	for i := 0; i < count; i++ {
		base := []RecordOption{
			WithID(int64(i + 1)),
			WithTxHash(GenerateTxHash(i)),
			WithBlockNumber(uint64(12345678 + i)),
			WithTimestamp(int64(1_705_314_600 + i*12)),
		}
		records[i] = CreateTestRecord(append(base, opts...)...)
	}
	return records
}

// CreateTestLog creates a decoded Transfer log with default values
func CreateTestLog(opts ...LogOption) entities.TransferLog {
	l := entities.TransferLog{
		TokenAddress:    common.HexToAddress(USDTAddress),
		FromAddress:     common.HexToAddress(AliceAddress),
		ToAddress:       common.HexToAddress(BobAddress),
		Amount:          uint256.NewInt(1_000_000),
		BlockNumber:     100,
		TransactionHash: common.HexToHash(GenerateTxHash(0)),
		LogIndex:        0,
		BlockTimestamp:  1_705_314_600,
	}

	for _, opt := range opts {
		opt(&l)
	}

	return l
}

type LogOption func(*entities.TransferLog)

// LogAt places the log in a block, deriving a unique hash and timestamp from it
func LogAt(block uint64) LogOption {
	return func(l *entities.TransferLog) {
		l.BlockNumber = block
		l.TransactionHash = common.HexToHash(GenerateTxHash(int(block)))
		l.BlockTimestamp = 1_705_314_600 + int64(block)*12
	}
}

func LogWithIndex(idx uint) LogOption {
	return func(l *entities.TransferLog) {
		l.LogIndex = idx
	}
}

func LogWithTxHash(hash string) LogOption {
	return func(l *entities.TransferLog) {
		l.TransactionHash = common.HexToHash(hash)
	}
}

func LogWithToken(addr string) LogOption {
	return func(l *entities.TransferLog) {
		l.TokenAddress = common.HexToAddress(addr)
	}
}

func LogWithParties(from, to string) LogOption {
	return func(l *entities.TransferLog) {
		l.FromAddress = common.HexToAddress(from)
		l.ToAddress = common.HexToAddress(to)
	}
}

func LogWithAmount(amount *uint256.Int) LogOption {
	return func(l *entities.TransferLog) {
		l.Amount = amount
	}
}

// GenerateTxHash returns a deterministic 32-byte hash for index
func GenerateTxHash(index int) string {
	return fmt.Sprintf("0x%064x", index+1)
}

// PointerTo returns a pointer to v
func PointerTo[T any](v T) *T {
	return &v
}
