package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
	"github.com/bimakw/transfer-indexer/internal/domain/chain"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// DefaultLatestBlocks is the window used by IndexLatest when none is given
const DefaultLatestBlocks = 1000

// IndexService runs explicitly requested scans. It never touches the watermark.
type IndexService struct {
	reader       chain.Reader
	indexer      *RangeIndexer
	invalidator  CacheInvalidator
	latestBlocks uint64
	logger       *zap.Logger
}

// NewIndexService creates a new manual index service. invalidator may be nil.
func NewIndexService(
	reader chain.Reader,
	indexer *RangeIndexer,
	invalidator CacheInvalidator,
	latestBlocks uint64,
	logger *zap.Logger,
) *IndexService {
	if latestBlocks == 0 {
		latestBlocks = DefaultLatestBlocks
	}

	return &IndexService{
		reader:       reader,
		indexer:      indexer,
		invalidator:  invalidator,
		latestBlocks: latestBlocks,
		logger:       logger,
	}
}

// IndexRange indexes [fromBlock, toBlock], clamping toBlock to the chain tip
func (s *IndexService) IndexRange(ctx context.Context, fromBlock, toBlock uint64) (*entities.ScanResult, error) {
	const op = "index range"

	if fromBlock > toBlock {
		return nil, apperrors.Validation(op, "from_block %d is greater than to_block %d", fromBlock, toBlock)
	}

	tip, err := s.reader.GetChainTip(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain tip: %w", err)
	}

	if fromBlock > tip {
		return nil, apperrors.Validation(op, "from_block %d is beyond the chain tip %d", fromBlock, tip)
	}
	if toBlock > tip {
		s.logger.Info("Clamping requested range to chain tip",
			zap.Uint64("to_block", toBlock),
			zap.Uint64("tip", tip),
		)
		toBlock = tip
	}

	return s.run(ctx, fromBlock, toBlock)
}

// IndexLatest indexes the last n blocks up to the chain tip. n == 0 uses the configured default.
func (s *IndexService) IndexLatest(ctx context.Context, n uint64) (*entities.ScanResult, error) {
	if n == 0 {
		n = s.latestBlocks
	}

	tip, err := s.reader.GetChainTip(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain tip: %w", err)
	}

	var fromBlock uint64
	if tip+1 > n {
		fromBlock = tip + 1 - n
	}

	return s.run(ctx, fromBlock, tip)
}

func (s *IndexService) run(ctx context.Context, fromBlock, toBlock uint64) (*entities.ScanResult, error) {
	s.logger.Info("Manual indexing requested",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
	)

	result, err := s.indexer.IndexRange(ctx, fromBlock, toBlock)

	if result != nil && result.NewRecords > 0 && s.invalidator != nil {
		if invErr := s.invalidator.InvalidateTransfers(ctx); invErr != nil {
			s.logger.Warn("Failed to invalidate cached responses", zap.Error(invErr))
		}
	}

	if err != nil {
		return result, fmt.Errorf("indexing %d-%d interrupted: %w", fromBlock, toBlock, err)
	}
	return result, nil
}
