package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/chain"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/domain/repositories"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/metrics"
)

// ErrScanInProgress is returned by Tick when a previous scan has not finished
var ErrScanInProgress = errors.New("scan already in progress")

// SchedulerState is the state of the periodic driver
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateScanning
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// CacheInvalidator drops cached query responses after new records are stored
type CacheInvalidator interface {
	InvalidateTransfers(ctx context.Context) error
}

// Scheduler advances the watermark by indexing the blocks between it and the chain tip
type Scheduler struct {
	reader        chain.Reader
	indexer       *RangeIndexer
	watermarkRepo repositories.WatermarkRepository
	invalidator   CacheInvalidator
	config        config.IndexerConfig
	metrics       *metrics.IndexerMetrics
	logger        *zap.Logger

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler. invalidator may be nil.
func NewScheduler(
	reader chain.Reader,
	indexer *RangeIndexer,
	watermarkRepo repositories.WatermarkRepository,
	invalidator CacheInvalidator,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return &Scheduler{
		reader:        reader,
		indexer:       indexer,
		watermarkRepo: watermarkRepo,
		invalidator:   invalidator,
		config:        cfg,
		metrics:       indexer.metrics,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// State returns the current scheduler state
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Start runs the scheduling loop in the background
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Uint64("batch_size", s.indexer.config.BatchSize),
		zap.Uint64("confirmations", s.config.BlockConfirmations),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop stops the loop and waits for an in-flight tick to finish
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Run ticks immediately and then every poll interval until ctx is cancelled or Stop is called
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
		s.logger.Error("Scheduler tick failed", zap.Error(err))
	}
}

// Tick performs one scheduling step. It returns a nil result when there was
// nothing to scan, and ErrScanInProgress when another scan holds the guard.
func (s *Scheduler) Tick(ctx context.Context) (*entities.ScanResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		s.metrics.TicksSkipped.Inc()
		s.logger.Debug("Skipping tick, scan in progress")
		return nil, ErrScanInProgress
	}
	defer s.state.Store(int32(StateIdle))

	tip, err := s.reader.GetChainTip(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain tip: %w", err)
	}
	s.metrics.ChainTip.Set(float64(tip))

	wm, err := s.watermarkRepo.Get(ctx, entities.TransfersWatermark)
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}

	if wm == nil {
		return nil, s.initWatermark(ctx, tip)
	}

	current := wm.BlockNumber
	s.metrics.LastIndexedBlock.Set(float64(current))

	if tip <= current {
		s.logger.Debug("Up to date",
			zap.Uint64("tip", tip),
			zap.Uint64("watermark", current),
		)
		return nil, nil
	}

	scanCtx := ctx
	if s.config.MaxScanDuration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.config.MaxScanDuration)
		defer cancel()
	}

	result, scanErr := s.indexer.IndexRange(scanCtx, current+1, tip)
	if scanErr != nil {
		s.logger.Warn("Scan stopped before covering the range",
			zap.Uint64("from", current+1),
			zap.Uint64("to", tip),
			zap.Error(scanErr),
		)
	}

	next := current
	outcome := "complete"
	if result.Complete() {
		next = tip
	} else {
		outcome = "partial"
		if result.ContiguousThrough > current {
			next = result.ContiguousThrough
		}
		s.logger.Warn("Scan incomplete, holding watermark at verified prefix",
			zap.Uint64("watermark", next),
			zap.Int("ranges_failed", result.RangesFailed),
			zap.Any("failed_ranges", result.FailedRanges),
		)
	}
	s.metrics.ScansTotal.WithLabelValues(outcome).Inc()

	watermarkMoved := false
	if next > current {
		if err := s.watermarkRepo.Set(ctx, entities.TransfersWatermark, next); err != nil {
			return result, fmt.Errorf("failed to advance watermark to %d: %w", next, err)
		}
		s.metrics.LastIndexedBlock.Set(float64(next))
		s.logger.Info("Advanced watermark",
			zap.Uint64("from", current),
			zap.Uint64("to", next),
		)
		watermarkMoved = true
	}

	// cached stats carry the watermark, so a moved watermark is a change too
	if (result.NewRecords > 0 || watermarkMoved) && s.invalidator != nil {
		if err := s.invalidator.InvalidateTransfers(ctx); err != nil {
			s.logger.Warn("Failed to invalidate cached responses", zap.Error(err))
		}
	}

	return result, nil
}

// initWatermark sets the first watermark. Without a start block the history
// before the current tip is not backfilled.
func (s *Scheduler) initWatermark(ctx context.Context, tip uint64) error {
	initial := tip
	if s.config.StartBlock >= 0 {
		initial = previousBlock(uint64(s.config.StartBlock))
	}

	if err := s.watermarkRepo.Set(ctx, entities.TransfersWatermark, initial); err != nil {
		return fmt.Errorf("failed to initialize watermark: %w", err)
	}
	s.metrics.LastIndexedBlock.Set(float64(initial))

	s.logger.Info("Initialized watermark",
		zap.Uint64("watermark", initial),
		zap.Uint64("tip", tip),
		zap.Int64("start_block", s.config.StartBlock),
	)
	return nil
}
