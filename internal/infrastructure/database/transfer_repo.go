package database

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/domain/repositories"
)

// Ensure TransferRepo implements TransferRepository
var _ repositories.TransferRepository = (*TransferRepo)(nil)

// TransferRepo implements TransferRepository on postgres or sqlite
type TransferRepo struct {
	db *DB
}

// NewTransferRepo creates a new transfer repository
func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

const transferColumns = `id, token_address, from_address, to_address, amount, block_number,
	transaction_hash, log_index, block_timestamp, created_at`

// Insert stores a record, absorbing duplicates of (transaction_hash, log_index)
func (r *TransferRepo) Insert(ctx context.Context, record *entities.TransferRecord) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	amount := record.AmountString
	if record.Amount != nil {
		amount = record.Amount.Dec()
	}
	if amount == "" {
		return false, apperrors.Storage("insert transfer", fmt.Errorf("missing amount for %s", record.TransactionHash))
	}

	query := `
		INSERT INTO transfers (token_address, from_address, to_address, amount, block_number,
							   transaction_hash, log_index, block_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_hash, log_index) DO NOTHING
	`

	result, err := r.db.db.ExecContext(ctx, query,
		record.TokenAddress,
		record.FromAddress,
		record.ToAddress,
		amount,
		record.BlockNumber,
		record.TransactionHash,
		record.LogIndex,
		record.Timestamp,
	)
	if err != nil {
		return false, apperrors.Storage("insert transfer", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Storage("insert transfer", fmt.Errorf("failed to get rows affected: %w", err))
	}

	return rows == 1, nil
}

// QueryByAddress returns records where address is sender or recipient
func (r *TransferRepo) QueryByAddress(ctx context.Context, address string, limit int) ([]entities.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transfers
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_timestamp DESC, block_number DESC, log_index DESC
		LIMIT $2
	`, transferColumns)

	return r.selectRecords(ctx, "query transfers by address", query, limit, address)
}

// QueryByToken returns records emitted by a token contract
func (r *TransferRepo) QueryByToken(ctx context.Context, tokenAddress string, limit int) ([]entities.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transfers
		WHERE token_address = $1
		ORDER BY block_timestamp DESC, block_number DESC, log_index DESC
		LIMIT $2
	`, transferColumns)

	return r.selectRecords(ctx, "query transfers by token", query, limit, tokenAddress)
}

// QueryRecent returns the newest records regardless of token or address
func (r *TransferRepo) QueryRecent(ctx context.Context, limit int) ([]entities.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transfers
		ORDER BY block_timestamp DESC, block_number DESC, log_index DESC
		LIMIT $1
	`, transferColumns)

	return r.selectRecords(ctx, "query recent transfers", query, limit)
}

// selectRecords runs query with args followed by the clamped limit
func (r *TransferRepo) selectRecords(ctx context.Context, op, query string, limit int, args ...interface{}) ([]entities.TransferRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	limit = entities.ClampLimit(limit, entities.DefaultQueryLimit, entities.MaxQueryLimit)

	records := make([]entities.TransferRecord, 0)
	args = append(args, limit)
	if err := r.db.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, apperrors.Storage(op, err)
	}

	for i := range records {
		amount, err := uint256.FromDecimal(records[i].AmountString)
		if err != nil {
			return nil, apperrors.Storage(op, fmt.Errorf("invalid stored amount %q for %s: %w",
				records[i].AmountString, records[i].TransactionHash, err))
		}
		records[i].Amount = amount
	}

	return records, nil
}

// Stats returns the total record count and highest stored block
func (r *TransferRepo) Stats(ctx context.Context) (*entities.TransferStats, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*) AS total_records,
			   COALESCE(MAX(block_number), 0) AS max_block_number
		FROM transfers
	`

	var stats entities.TransferStats
	if err := r.db.db.GetContext(ctx, &stats, query); err != nil {
		return nil, apperrors.Storage("transfer stats", err)
	}

	return &stats, nil
}
