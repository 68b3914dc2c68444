package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/testutil"
)

var errNodeDown = apperrors.TransientNode("filter logs", errors.New("connection refused"))

func testIndexerConfig() config.IndexerConfig {
	return config.IndexerConfig{
		BatchSize:        1000,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
		RetryMaxBackoff:  10 * time.Millisecond,
		FetchConcurrency: 1,
		PollInterval:     10 * time.Millisecond,
		StartBlock:       -1,
	}
}

func newTestRangeIndexer(reader *testutil.MockChainReader, repo *testutil.MockTransferRepository, cfg config.IndexerConfig) *RangeIndexer {
	ix := NewRangeIndexer(reader, repo, cfg, nil, zap.NewNop())
	ix.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return ix
}

func aliceToBobLogs() []entities.TransferLog {
	one, _ := uint256.FromDecimal("1000000000000000000")
	two, _ := uint256.FromDecimal("2000000000000000000")
	token := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	return []entities.TransferLog{
		testutil.CreateTestLog(testutil.LogAt(102), testutil.LogWithToken(token),
			testutil.LogWithParties(testutil.AliceAddress, testutil.BobAddress), testutil.LogWithAmount(one)),
		testutil.CreateTestLog(testutil.LogAt(104), testutil.LogWithToken(token),
			testutil.LogWithParties(testutil.AliceAddress, testutil.BobAddress), testutil.LogWithAmount(two)),
	}
}

func TestSplitBlockRange(t *testing.T) {
	tests := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		expected  []entities.BlockRange
	}{
		{"single batch", 1, 5, 10, []entities.BlockRange{{From: 1, To: 5}}},
		{"exact multiple", 1, 6, 3, []entities.BlockRange{{From: 1, To: 3}, {From: 4, To: 6}}},
		{"remainder", 101, 105, 2, []entities.BlockRange{{From: 101, To: 102}, {From: 103, To: 104}, {From: 105, To: 105}}},
		{"single block", 7, 7, 1000, []entities.BlockRange{{From: 7, To: 7}}},
		{"inverted", 10, 5, 100, nil},
		{"zero batch", 1, 5, 0, nil},
		{"top of range", ^uint64(0) - 1, ^uint64(0), 10, []entities.BlockRange{{From: ^uint64(0) - 1, To: ^uint64(0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitBlockRange(tt.from, tt.to, tt.batchSize))
		})
	}
}

func TestRangeIndexer_StoresTransfersInRange(t *testing.T) {
	reader := testutil.NewMockChainReader(105, aliceToBobLogs()...)
	repo := testutil.NewMockTransferRepository()
	ix := newTestRangeIndexer(reader, repo, testIndexerConfig())

	result, err := ix.IndexRange(context.Background(), 101, 105)
	require.NoError(t, err)

	assert.True(t, result.Complete())
	assert.Equal(t, uint64(5), result.BlocksScanned)
	assert.Equal(t, 2, result.RecordsFound)
	assert.Equal(t, 2, result.NewRecords)
	assert.Equal(t, 0, result.DuplicateRecords)
	assert.Equal(t, uint64(105), result.ContiguousThrough)

	records := repo.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", records[0].TokenAddress)
	assert.Equal(t, testutil.BobAddress, records[0].ToAddress)
	assert.Equal(t, "1000000000000000000", records[0].AmountString)
	assert.Equal(t, "2000000000000000000", records[1].AmountString)
}

func TestRangeIndexer_Idempotent(t *testing.T) {
	reader := testutil.NewMockChainReader(105, aliceToBobLogs()...)
	repo := testutil.NewMockTransferRepository()
	ix := newTestRangeIndexer(reader, repo, testIndexerConfig())
	ctx := context.Background()

	_, err := ix.IndexRange(ctx, 101, 105)
	require.NoError(t, err)

	result, err := ix.IndexRange(ctx, 101, 105)
	require.NoError(t, err)

	assert.Equal(t, 0, result.NewRecords)
	assert.Equal(t, 2, result.DuplicateRecords)
	assert.Equal(t, 0, result.RecordsFailed)
	assert.True(t, result.Complete())
	assert.Len(t, repo.Records(), 2)
}

func TestRangeIndexer_MultipleTransfersInOneTransaction(t *testing.T) {
	hash := testutil.GenerateTxHash(7)
	reader := testutil.NewMockChainReader(10,
		testutil.CreateTestLog(testutil.LogAt(5), testutil.LogWithTxHash(hash), testutil.LogWithIndex(0)),
		testutil.CreateTestLog(testutil.LogAt(5), testutil.LogWithTxHash(hash), testutil.LogWithIndex(1)),
	)
	repo := testutil.NewMockTransferRepository()
	ix := newTestRangeIndexer(reader, repo, testIndexerConfig())

	result, err := ix.IndexRange(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewRecords)
}

func TestRangeIndexer_RangeCompleteness(t *testing.T) {
	var logs []entities.TransferLog
	for block := uint64(1); block <= 50; block += 3 {
		logs = append(logs, testutil.CreateTestLog(testutil.LogAt(block)))
	}
	// outside the requested range
	logs = append(logs, testutil.CreateTestLog(testutil.LogAt(60)))

	reader := testutil.NewMockChainReader(60, logs...)
	repo := testutil.NewMockTransferRepository()
	cfg := testIndexerConfig()
	cfg.BatchSize = 7
	ix := newTestRangeIndexer(reader, repo, cfg)

	result, err := ix.IndexRange(context.Background(), 1, 50)
	require.NoError(t, err)

	assert.Equal(t, 17, result.NewRecords)
	assert.Equal(t, uint64(50), result.BlocksScanned)
	assert.Len(t, repo.Records(), 17)
	assert.Len(t, reader.Requests, 8)
	for _, r := range reader.Requests {
		assert.LessOrEqual(t, r.Size(), uint64(7))
	}
}

func TestRangeIndexer_EmptyRange(t *testing.T) {
	reader := testutil.NewMockChainReader(100)
	repo := testutil.NewMockTransferRepository()
	ix := newTestRangeIndexer(reader, repo, testIndexerConfig())

	result, err := ix.IndexRange(context.Background(), 10, 5)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), result.BlocksScanned)
	assert.Equal(t, 0, result.NewRecords)
	assert.True(t, result.Complete())
	assert.Empty(t, reader.Requests)
}

func TestRangeIndexer_RetriesTransientFailure(t *testing.T) {
	reader := testutil.NewMockChainReader(105, aliceToBobLogs()...)
	failures := 2
	var mu sync.Mutex
	reader.GetTransferLogsFunc = func(ctx context.Context, from, to uint64) ([]entities.TransferLog, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return nil, errNodeDown
		}
		return reader.LogsIn(from, to), nil
	}

	repo := testutil.NewMockTransferRepository()
	ix := newTestRangeIndexer(reader, repo, testIndexerConfig())

	var sleeps []time.Duration
	ix.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	result, err := ix.IndexRange(context.Background(), 101, 105)
	require.NoError(t, err)

	assert.True(t, result.Complete())
	assert.Equal(t, 2, result.NewRecords)
	assert.Equal(t, 3, reader.RequestCount(101, 105))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, sleeps)
}

func TestRangeIndexer_BackoffCapped(t *testing.T) {
	reader := testutil.NewMockChainReader(10)
	reader.GetTransferLogsFunc = func(ctx context.Context, from, to uint64) ([]entities.TransferLog, error) {
		return nil, errNodeDown
	}

	cfg := testIndexerConfig()
	cfg.MaxRetries = 4
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.RetryMaxBackoff = 250 * time.Millisecond
	ix := newTestRangeIndexer(reader, testutil.NewMockTransferRepository(), cfg)

	var sleeps []time.Duration
	ix.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	result, err := ix.IndexRange(context.Background(), 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RangesFailed)
	assert.Equal(t, 5, reader.RequestCount(1, 10), "one attempt plus four retries")
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
		250 * time.Millisecond,
	}, sleeps)
}

func TestRangeIndexer_FailedSubRangeDoesNotAbortScan(t *testing.T) {
	reader := testutil.NewMockChainReader(105, aliceToBobLogs()...)
	reader.GetTransferLogsFunc = func(ctx context.Context, from, to uint64) ([]entities.TransferLog, error) {
		if from <= 103 {
			return nil, errNodeDown
		}
		return reader.LogsIn(from, to), nil
	}

	repo := testutil.NewMockTransferRepository()
	cfg := testIndexerConfig()
	cfg.BatchSize = 3
	ix := newTestRangeIndexer(reader, repo, cfg)

	result, err := ix.IndexRange(context.Background(), 101, 105)
	require.NoError(t, err)

	assert.False(t, result.Complete())
	assert.Equal(t, 1, result.RangesFailed)
	assert.Equal(t, []entities.BlockRange{{From: 101, To: 103}}, result.FailedRanges)
	assert.Equal(t, uint64(2), result.BlocksScanned)
	assert.Equal(t, 1, result.NewRecords)
	assert.Equal(t, uint64(100), result.ContiguousThrough)
	assert.Equal(t, 3, reader.RequestCount(101, 103), "bounded retries")

	records := repo.Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint64(104), records[0].BlockNumber)
}

func TestRangeIndexer_ContiguousThroughStopsAtFirstGap(t *testing.T) {
	reader := testutil.NewMockChainReader(100)
	reader.GetTransferLogsFunc = func(ctx context.Context, from, to uint64) ([]entities.TransferLog, error) {
		if from == 21 {
			return nil, errNodeDown
		}
		return nil, nil
	}

	cfg := testIndexerConfig()
	cfg.BatchSize = 10
	cfg.MaxRetries = 0
	ix := newTestRangeIndexer(reader, testutil.NewMockTransferRepository(), cfg)

	result, err := ix.IndexRange(context.Background(), 1, 40)
	require.NoError(t, err)

	assert.Equal(t, uint64(20), result.ContiguousThrough)
	assert.Equal(t, uint64(30), result.BlocksScanned)
	assert.Equal(t, 1, result.RangesFailed)
}

func TestRangeIndexer_StorageFailureMarksSubRange(t *testing.T) {
	reader := testutil.NewMockChainReader(105, aliceToBobLogs()...)
	repo := testutil.NewMockTransferRepository()
	repo.InsertFunc = func(ctx context.Context, record *entities.TransferRecord) (bool, error) {
		if record.BlockNumber == 102 {
			return false, apperrors.Storage("insert transfer", errors.New("disk full"))
		}
		return repo.Store(*record), nil
	}

	cfg := testIndexerConfig()
	cfg.BatchSize = 2
	ix := newTestRangeIndexer(reader, repo, cfg)

	result, err := ix.IndexRange(context.Background(), 101, 105)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RecordsFailed)
	assert.Equal(t, 1, result.NewRecords, "remaining records are still stored")
	assert.Equal(t, []entities.BlockRange{{From: 101, To: 102}}, result.FailedRanges)
	assert.Equal(t, uint64(100), result.ContiguousThrough)
	assert.Equal(t, 1, reader.RequestCount(101, 102), "storage failures are not retried as node failures")
}

func TestRangeIndexer_ParallelFetchCommitsInOrder(t *testing.T) {
	var logs []entities.TransferLog
	for block := uint64(1); block <= 12; block++ {
		logs = append(logs, testutil.CreateTestLog(testutil.LogAt(block)))
	}
	reader := testutil.NewMockChainReader(12, logs...)
	reader.GetTransferLogsFunc = func(ctx context.Context, from, to uint64) ([]entities.TransferLog, error) {
		// later ranges answer first
		time.Sleep(time.Duration(12-from) * time.Millisecond)
		return reader.LogsIn(from, to), nil
	}

	repo := testutil.NewMockTransferRepository()
	var order []uint64
	repo.InsertFunc = func(ctx context.Context, record *entities.TransferRecord) (bool, error) {
		order = append(order, record.BlockNumber)
		return repo.Store(*record), nil
	}

	cfg := testIndexerConfig()
	cfg.BatchSize = 1
	cfg.FetchConcurrency = 4
	ix := newTestRangeIndexer(reader, repo, cfg)

	result, err := ix.IndexRange(context.Background(), 1, 12)
	require.NoError(t, err)

	assert.True(t, result.Complete())
	assert.Equal(t, 12, result.NewRecords)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, order)
}

func TestRangeIndexer_ParallelFetchKeepsPrefixOnFailure(t *testing.T) {
	reader := testutil.NewMockChainReader(8)
	reader.GetTransferLogsFunc = func(ctx context.Context, from, to uint64) ([]entities.TransferLog, error) {
		if from == 3 {
			return nil, errNodeDown
		}
		return nil, nil
	}

	cfg := testIndexerConfig()
	cfg.BatchSize = 1
	cfg.FetchConcurrency = 4
	ix := newTestRangeIndexer(reader, testutil.NewMockTransferRepository(), cfg)

	result, err := ix.IndexRange(context.Background(), 1, 8)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), result.ContiguousThrough)
	assert.Equal(t, uint64(7), result.BlocksScanned)
}

func TestRangeIndexer_ContextCancelled(t *testing.T) {
	reader := testutil.NewMockChainReader(100)
	repo := testutil.NewMockTransferRepository()
	cfg := testIndexerConfig()
	cfg.BatchSize = 10
	ix := newTestRangeIndexer(reader, repo, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := ix.IndexRange(ctx, 51, 100)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 5, result.RangesFailed)
	assert.Equal(t, uint64(50), result.ContiguousThrough)
	assert.Empty(t, reader.Requests)
}
