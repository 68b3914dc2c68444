package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/domain/repositories"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/cache"
)

// ResponseCache stores query responses. Failures never fail a query.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
}

// QueryService is the read facade used by the API layer
type QueryService struct {
	transferRepo  repositories.TransferRepository
	watermarkRepo repositories.WatermarkRepository
	cache         ResponseCache
	defaultLimit  int
	maxLimit      int
	logger        *zap.Logger
}

// NewQueryService creates a new query service. responseCache may be nil.
func NewQueryService(
	transferRepo repositories.TransferRepository,
	watermarkRepo repositories.WatermarkRepository,
	responseCache ResponseCache,
	cfg config.APIConfig,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		transferRepo:  transferRepo,
		watermarkRepo: watermarkRepo,
		cache:         responseCache,
		defaultLimit:  cfg.DefaultLimit,
		maxLimit:      cfg.MaxLimit,
		logger:        logger,
	}
}

// TransferDTO is the API representation of a transfer
type TransferDTO struct {
	TransactionHash string `json:"transaction_hash"`
	LogIndex        uint   `json:"log_index"`
	BlockNumber     uint64 `json:"block_number"`
	Timestamp       int64  `json:"timestamp"`
	TokenAddress    string `json:"token_address"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	Amount          string `json:"amount"`
	CreatedAt       string `json:"created_at"`
}

// TransfersResponse is the API response for transfer queries
type TransfersResponse struct {
	Transfers []TransferDTO `json:"transfers"`
	Count     int           `json:"count"`
	Limit     int           `json:"limit"`
}

// StatsResponse is the API response for aggregate statistics
type StatsResponse struct {
	TotalRecords     uint64  `json:"total_records"`
	MaxBlockNumber   uint64  `json:"max_block_number"`
	LastIndexedBlock *uint64 `json:"last_indexed_block"`
}

// GetTransfersByAddress returns transfers sent or received by address, newest first
func (s *QueryService) GetTransfersByAddress(ctx context.Context, address string, limit int) (*TransfersResponse, error) {
	address, err := canonicalAddress("query transfers by address", "address", address)
	if err != nil {
		return nil, err
	}
	limit = s.clampLimit(limit)

	cacheKey := fmt.Sprintf("%saddress:%s:%d", cache.TransfersPrefix, address, limit)
	return s.cachedTransfers(ctx, cacheKey, limit, func() ([]entities.TransferRecord, error) {
		return s.transferRepo.QueryByAddress(ctx, address, limit)
	})
}

// GetTransfersByToken returns transfers emitted by a token contract, newest first
func (s *QueryService) GetTransfersByToken(ctx context.Context, tokenAddress string, limit int) (*TransfersResponse, error) {
	tokenAddress, err := canonicalAddress("query transfers by token", "token address", tokenAddress)
	if err != nil {
		return nil, err
	}
	limit = s.clampLimit(limit)

	cacheKey := fmt.Sprintf("%stoken:%s:%d", cache.TransfersPrefix, tokenAddress, limit)
	return s.cachedTransfers(ctx, cacheKey, limit, func() ([]entities.TransferRecord, error) {
		return s.transferRepo.QueryByToken(ctx, tokenAddress, limit)
	})
}

// GetRecentTransfers returns the newest transfers across all tokens and addresses
func (s *QueryService) GetRecentTransfers(ctx context.Context, limit int) (*TransfersResponse, error) {
	limit = s.clampLimit(limit)

	cacheKey := fmt.Sprintf("%srecent:%d", cache.TransfersPrefix, limit)
	return s.cachedTransfers(ctx, cacheKey, limit, func() ([]entities.TransferRecord, error) {
		return s.transferRepo.QueryRecent(ctx, limit)
	})
}

// GetStats returns the record count, the highest stored block and the watermark
func (s *QueryService) GetStats(ctx context.Context) (*StatsResponse, error) {
	var cached StatsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cache.StatsKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cache.StatsKey))
			return &cached, nil
		}
	}

	stats, err := s.transferRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer stats: %w", err)
	}

	response := &StatsResponse{
		TotalRecords:   stats.TotalRecords,
		MaxBlockNumber: stats.MaxBlockNumber,
	}

	if s.watermarkRepo != nil {
		wm, err := s.watermarkRepo.Get(ctx, entities.TransfersWatermark)
		if err != nil {
			return nil, fmt.Errorf("failed to get watermark: %w", err)
		}
		if wm != nil {
			block := wm.BlockNumber
			response.LastIndexedBlock = &block
		}
	}

	s.store(ctx, cache.StatsKey, response)
	return response, nil
}

func (s *QueryService) cachedTransfers(
	ctx context.Context,
	cacheKey string,
	limit int,
	query func() ([]entities.TransferRecord, error),
) (*TransfersResponse, error) {
	var cached TransfersResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	records, err := query()
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}

	dtos := make([]TransferDTO, len(records))
	for i, r := range records {
		dtos[i] = toTransferDTO(r)
	}

	response := &TransfersResponse{
		Transfers: dtos,
		Count:     len(dtos),
		Limit:     limit,
	}

	s.store(ctx, cacheKey, response)
	return response, nil
}

func (s *QueryService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}

func (s *QueryService) clampLimit(limit int) int {
	return entities.ClampLimit(limit, s.defaultLimit, s.maxLimit)
}

func canonicalAddress(op, field, address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", apperrors.Validation(op, "invalid %s: %q", field, address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

func toTransferDTO(r entities.TransferRecord) TransferDTO {
	amount := r.AmountString
	if r.Amount != nil {
		amount = r.Amount.Dec()
	}

	createdAt := ""
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}

	return TransferDTO{
		TransactionHash: r.TransactionHash,
		LogIndex:        r.LogIndex,
		BlockNumber:     r.BlockNumber,
		Timestamp:       r.Timestamp,
		TokenAddress:    r.TokenAddress,
		FromAddress:     r.FromAddress,
		ToAddress:       r.ToAddress,
		Amount:          amount,
		CreatedAt:       createdAt,
	}
}
