package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/chain"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/domain/repositories"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/metrics"
)

// RangeIndexer fetches Transfer logs for a block range and stores them.
// Sub-ranges may be fetched in parallel but are always committed in block order.
type RangeIndexer struct {
	reader       chain.Reader
	transferRepo repositories.TransferRepository
	config       config.IndexerConfig
	metrics      *metrics.IndexerMetrics
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRangeIndexer creates a new range indexer.
// A nil metrics value registers a private set that is never exported.
func NewRangeIndexer(
	reader chain.Reader,
	transferRepo repositories.TransferRepository,
	cfg config.IndexerConfig,
	m *metrics.IndexerMetrics,
	logger *zap.Logger,
) *RangeIndexer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if m == nil {
		m = metrics.NewIndexerMetrics(prometheus.NewRegistry())
	}

	return &RangeIndexer{
		reader:       reader,
		transferRepo: transferRepo,
		config:       cfg,
		metrics:      m,
		logger:       logger,
		sleep:        sleepContext,
	}
}

// SplitBlockRange splits an inclusive range into batches of at most batchSize blocks
func SplitBlockRange(fromBlock, toBlock, batchSize uint64) []entities.BlockRange {
	if fromBlock > toBlock || batchSize == 0 {
		return nil
	}

	var ranges []entities.BlockRange
	for current := fromBlock; ; current += batchSize {
		end := current + batchSize - 1
		if end > toBlock || end < current {
			end = toBlock
		}
		ranges = append(ranges, entities.BlockRange{From: current, To: end})
		if end == toBlock {
			break
		}
	}

	return ranges
}

type fetchOutcome struct {
	logs []entities.TransferLog
	err  error
}

// IndexRange indexes [fromBlock, toBlock]. Failed sub-ranges are reported in the
// result rather than aborting the scan. The returned error is non-nil only when the
// context ended before every sub-range was attempted; the result is still valid then.
func (ix *RangeIndexer) IndexRange(ctx context.Context, fromBlock, toBlock uint64) (*entities.ScanResult, error) {
	start := time.Now()

	result := &entities.ScanResult{
		FromBlock:         fromBlock,
		ToBlock:           toBlock,
		FailedRanges:      []entities.BlockRange{},
		ContiguousThrough: previousBlock(fromBlock),
	}

	ranges := SplitBlockRange(fromBlock, toBlock, ix.config.BatchSize)
	if len(ranges) == 0 {
		return result, nil
	}

	ix.logger.Info("Indexing block range",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Int("batches", len(ranges)),
	)

	var abandoned error
	contiguous := true
	window := ix.config.FetchConcurrency

	for i := 0; i < len(ranges); i += window {
		end := i + window
		if end > len(ranges) {
			end = len(ranges)
		}
		batch := ranges[i:end]

		if err := ctx.Err(); err != nil {
			abandoned = err
			for _, r := range ranges[i:] {
				ix.markFailed(result, r)
			}
			contiguous = false
			break
		}

		outcomes := ix.fetchWindow(ctx, batch)

		for j, r := range batch {
			ok := outcomes[j].err == nil
			if ok {
				ok = ix.commit(ctx, r, outcomes[j].logs, result)
			} else {
				ix.logger.Error("Sub-range failed after retries",
					zap.Uint64("from", r.From),
					zap.Uint64("to", r.To),
					zap.Error(outcomes[j].err),
				)
			}

			if !ok {
				ix.markFailed(result, r)
				contiguous = false
				continue
			}

			result.BlocksScanned += r.Size()
			ix.metrics.BlocksScanned.Add(float64(r.Size()))
			if contiguous {
				result.ContiguousThrough = r.To
			}
		}
	}

	result.Duration = time.Since(start)
	ix.metrics.ScanDuration.Observe(result.Duration.Seconds())

	ix.logger.Info("Indexed block range",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Uint64("blocks_scanned", result.BlocksScanned),
		zap.Int("new_records", result.NewRecords),
		zap.Int("duplicates", result.DuplicateRecords),
		zap.Int("records_failed", result.RecordsFailed),
		zap.Int("ranges_failed", result.RangesFailed),
		zap.Duration("duration", result.Duration),
	)

	return result, abandoned
}

// fetchWindow fetches a window of sub-ranges concurrently
func (ix *RangeIndexer) fetchWindow(ctx context.Context, batch []entities.BlockRange) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(batch))

	var g errgroup.Group
	for j, r := range batch {
		j, r := j, r // capture
		g.Go(func() error {
			logs, err := ix.fetchWithRetry(ctx, r)
			outcomes[j] = fetchOutcome{logs: logs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// fetchWithRetry retries a sub-range fetch with exponential backoff
func (ix *RangeIndexer) fetchWithRetry(ctx context.Context, r entities.BlockRange) ([]entities.TransferLog, error) {
	backoff := ix.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		logs, err := ix.reader.GetTransferLogs(ctx, r.From, r.To)
		if err == nil {
			return logs, nil
		}

		if attempt >= ix.config.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		ix.logger.Warn("Failed to fetch sub-range, retrying",
			zap.Uint64("from", r.From),
			zap.Uint64("to", r.To),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		ix.metrics.RangeRetries.Inc()

		if sleepErr := ix.sleep(ctx, backoff); sleepErr != nil {
			return nil, err
		}

		backoff *= 2
		if ix.config.RetryMaxBackoff > 0 && backoff > ix.config.RetryMaxBackoff {
			backoff = ix.config.RetryMaxBackoff
		}
	}
}

// commit stores every log of a sub-range. A storage failure does not stop the
// remaining records but marks the sub-range as failed.
func (ix *RangeIndexer) commit(ctx context.Context, r entities.BlockRange, logs []entities.TransferLog, result *entities.ScanResult) bool {
	ok := true
	result.RecordsFound += len(logs)

	for i := range logs {
		record := logs[i].ToRecord()

		inserted, err := ix.transferRepo.Insert(ctx, record)
		if err != nil {
			ok = false
			result.RecordsFailed++
			ix.metrics.RecordsFailed.Inc()
			ix.logger.Warn("Failed to store transfer",
				zap.String("tx_hash", record.TransactionHash),
				zap.Uint("log_index", record.LogIndex),
				zap.Uint64("block", record.BlockNumber),
				zap.Error(err),
			)
			continue
		}

		if inserted {
			result.NewRecords++
			ix.metrics.RecordsInserted.Inc()
		} else {
			result.DuplicateRecords++
			ix.metrics.RecordsDuplicate.Inc()
		}
	}

	ix.logger.Debug("Committed sub-range",
		zap.Uint64("from", r.From),
		zap.Uint64("to", r.To),
		zap.Int("logs", len(logs)),
		zap.Bool("complete", ok),
	)

	return ok
}

func (ix *RangeIndexer) markFailed(result *entities.ScanResult, r entities.BlockRange) {
	result.RangesFailed++
	result.FailedRanges = append(result.FailedRanges, r)
	ix.metrics.RangesFailed.Inc()
}

func previousBlock(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return n - 1
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
