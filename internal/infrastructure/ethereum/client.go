package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
)

// Node is the subset of the JSON-RPC API the reader depends on
type Node interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Ensure Client implements Node
var _ Node = (*Client)(nil)

// Client wraps the go-ethereum client with per-call timeouts.
// Calls are not retried here; failures surface as TransientNode errors.
type Client struct {
	client  *ethclient.Client
	timeout time.Duration
	logger  *zap.Logger
	chainID *big.Int
}

// NewClient dials the node and, when a chain ID is configured, verifies it
func NewClient(cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, apperrors.Configuration("dial node", "failed to connect to Ethereum node: %v", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, apperrors.TransientNode("chain id", fmt.Errorf("failed to get chain ID: %w", err))
	}

	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, apperrors.Configuration("chain id", "chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}

	logger.Info("Connected to Ethereum node",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int64("chain_id", chainID.Int64()),
	)

	return &Client{
		client:  client,
		timeout: timeout,
		logger:  logger,
		chainID: chainID,
	}, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	c.client.Close()
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, apperrors.TransientNode("block number", err)
	}
	return n, nil
}

// HeaderByNumber returns the header of a block
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, apperrors.TransientNode("header by number", fmt.Errorf("block %s: %w", number, err))
	}
	return header, nil
}

// FilterLogs retrieves logs matching the filter query
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logs, err := c.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, apperrors.TransientNode("filter logs", err)
	}
	return logs, nil
}

// ChainID returns the chain ID reported by the node
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// HealthCheck reports whether the node answers
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// BuildFilterQuery builds a filter query for ERC-20 Transfer events
func BuildFilterQuery(fromBlock, toBlock uint64, addresses []common.Address) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics: [][]common.Hash{
			{TransferEventSignature},
		},
	}
}
