package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/chain"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
)

// Ensure Reader implements chain.Reader
var _ chain.Reader = (*Reader)(nil)

// Reader fetches and decodes Transfer logs from a node
type Reader struct {
	node              Node
	tokens            []common.Address
	confirmations     uint64
	workerCount       int
	timestampFallback bool
	now               func() time.Time
	logger            *zap.Logger
}

// NewReader creates a chain reader over the given node
func NewReader(node Node, cfg config.IndexerConfig, logger *zap.Logger) *Reader {
	tokens := make([]common.Address, 0, len(cfg.TokenAddresses))
	for _, addr := range cfg.TokenAddresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		tokens = append(tokens, common.HexToAddress(addr))
	}

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	return &Reader{
		node:              node,
		tokens:            tokens,
		confirmations:     cfg.BlockConfirmations,
		workerCount:       workers,
		timestampFallback: cfg.TimestampFallback,
		now:               time.Now,
		logger:            logger,
	}
}

// GetChainTip returns the latest block number minus the configured confirmations
func (r *Reader) GetChainTip(ctx context.Context) (uint64, error) {
	latest, err := r.node.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	if latest < r.confirmations {
		return 0, nil
	}
	return latest - r.confirmations, nil
}

// GetTransferLogs returns decoded Transfer events in [fromBlock, toBlock]
func (r *Reader) GetTransferLogs(ctx context.Context, fromBlock, toBlock uint64) ([]entities.TransferLog, error) {
	if fromBlock > toBlock {
		return []entities.TransferLog{}, nil
	}

	query := BuildFilterQuery(fromBlock, toBlock, r.tokens)

	r.logger.Debug("Fetching logs",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Int("token_count", len(r.tokens)),
	)

	logs, err := r.node.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(logs) == 0 {
		return []entities.TransferLog{}, nil
	}

	blockNumbers := make(map[uint64]struct{})
	for _, log := range logs {
		if IsTransferEvent(log) {
			blockNumbers[log.BlockNumber] = struct{}{}
		}
	}

	blockTimestamps, err := r.fetchBlockTimestamps(ctx, blockNumbers)
	if err != nil {
		return nil, err
	}

	transfers, failedIndices := ParseTransferLogs(logs, blockTimestamps)
	if len(failedIndices) > 0 {
		r.logger.Debug("Skipped logs that are not ERC-20 transfers",
			zap.Int("skipped", len(failedIndices)),
			zap.Int("total_logs", len(logs)),
		)
	}

	return transfers, nil
}

// fetchBlockTimestamps fetches header times for multiple blocks concurrently
func (r *Reader) fetchBlockTimestamps(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]int64, error) {
	timestamps := make(map[uint64]int64, len(blockNumbers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workerCount)

	for blockNum := range blockNumbers {
		blockNum := blockNum
		g.Go(func() error {
			ts, err := r.blockTimestamp(gctx, blockNum)
			if err != nil {
				return err
			}

			mu.Lock()
			timestamps[blockNum] = ts
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}

func (r *Reader) blockTimestamp(ctx context.Context, blockNum uint64) (int64, error) {
	header, err := r.node.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
	if err == nil && header == nil {
		err = fmt.Errorf("block %d not found", blockNum)
	}
	if err == nil {
		return int64(header.Time), nil
	}

	if !r.timestampFallback {
		return 0, fmt.Errorf("failed to get timestamp for block %d: %w", blockNum, err)
	}

	r.logger.Warn("Using observation time for block",
		zap.Uint64("block", blockNum),
		zap.Error(err),
	)
	return r.now().Unix(), nil
}
