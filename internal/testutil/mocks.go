package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bimakw/transfer-indexer/internal/domain/chain"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/domain/repositories"
)

var (
	_ repositories.TransferRepository  = (*MockTransferRepository)(nil)
	_ repositories.WatermarkRepository = (*MockWatermarkRepository)(nil)
	_ chain.Reader                     = (*MockChainReader)(nil)
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockTransferRepository is an in-memory TransferRepository keyed by (hash, log index)
type MockTransferRepository struct {
	mu      sync.RWMutex
	records []entities.TransferRecord
	keys    map[string]struct{}
	nextID  int64

	// Function hooks for custom behavior
	InsertFunc         func(ctx context.Context, record *entities.TransferRecord) (bool, error)
	QueryByAddressFunc func(ctx context.Context, address string, limit int) ([]entities.TransferRecord, error)
	QueryByTokenFunc   func(ctx context.Context, tokenAddress string, limit int) ([]entities.TransferRecord, error)
	QueryRecentFunc    func(ctx context.Context, limit int) ([]entities.TransferRecord, error)
	StatsFunc          func(ctx context.Context) (*entities.TransferStats, error)

	// Call tracking
	Calls []MockCall
}

func NewMockTransferRepository() *MockTransferRepository {
	return &MockTransferRepository{
		records: make([]entities.TransferRecord, 0),
		keys:    make(map[string]struct{}),
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockTransferRepository) track(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *MockTransferRepository) Insert(ctx context.Context, record *entities.TransferRecord) (bool, error) {
	m.track("Insert", record)

	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, record)
	}

	return m.Store(*record), nil
}

// Store inserts a record bypassing hooks, reporting whether it was new
func (m *MockTransferRepository) Store(record entities.TransferRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(record)
	if _, ok := m.keys[key]; ok {
		return false
	}

	m.nextID++
	record.ID = m.nextID
	if record.AmountString == "" && record.Amount != nil {
		record.AmountString = record.Amount.Dec()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	m.keys[key] = struct{}{}
	m.records = append(m.records, record)
	return true
}

func (m *MockTransferRepository) QueryByAddress(ctx context.Context, address string, limit int) ([]entities.TransferRecord, error) {
	m.track("QueryByAddress", address, limit)

	if m.QueryByAddressFunc != nil {
		return m.QueryByAddressFunc(ctx, address, limit)
	}

	return m.query(limit, func(r entities.TransferRecord) bool {
		return r.FromAddress == address || r.ToAddress == address
	}), nil
}

func (m *MockTransferRepository) QueryByToken(ctx context.Context, tokenAddress string, limit int) ([]entities.TransferRecord, error) {
	m.track("QueryByToken", tokenAddress, limit)

	if m.QueryByTokenFunc != nil {
		return m.QueryByTokenFunc(ctx, tokenAddress, limit)
	}

	return m.query(limit, func(r entities.TransferRecord) bool {
		return r.TokenAddress == tokenAddress
	}), nil
}

func (m *MockTransferRepository) QueryRecent(ctx context.Context, limit int) ([]entities.TransferRecord, error) {
	m.track("QueryRecent", limit)

	if m.QueryRecentFunc != nil {
		return m.QueryRecentFunc(ctx, limit)
	}

	return m.query(limit, func(entities.TransferRecord) bool { return true }), nil
}

func (m *MockTransferRepository) query(limit int, match func(entities.TransferRecord) bool) []entities.TransferRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.TransferRecord, 0)
	for _, r := range m.records {
		if match(r) {
			result = append(result, r)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		return a.LogIndex > b.LogIndex
	})

	limit = entities.ClampLimit(limit, entities.DefaultQueryLimit, entities.MaxQueryLimit)
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (m *MockTransferRepository) Stats(ctx context.Context) (*entities.TransferStats, error) {
	m.track("Stats")

	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &entities.TransferStats{TotalRecords: uint64(len(m.records))}
	for _, r := range m.records {
		if r.BlockNumber > stats.MaxBlockNumber {
			stats.MaxBlockNumber = r.BlockNumber
		}
	}
	return stats, nil
}

// AddRecords seeds the repository, skipping duplicates
func (m *MockTransferRepository) AddRecords(records ...entities.TransferRecord) {
	for _, r := range records {
		m.Store(r)
	}
}

// Records returns a copy of the stored records in insertion order
func (m *MockTransferRepository) Records() []entities.TransferRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]entities.TransferRecord, len(m.records))
	copy(out, m.records)
	return out
}

// CallCount returns how many times method was called
func (m *MockTransferRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockTransferRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make([]entities.TransferRecord, 0)
	m.keys = make(map[string]struct{})
	m.nextID = 0
	m.Calls = make([]MockCall, 0)
	m.InsertFunc = nil
	m.QueryByAddressFunc = nil
	m.QueryByTokenFunc = nil
	m.StatsFunc = nil
}

func recordKey(r entities.TransferRecord) string {
	return fmt.Sprintf("%s:%d", r.TransactionHash, r.LogIndex)
}

// MockWatermarkRepository is an in-memory WatermarkRepository
type MockWatermarkRepository struct {
	mu     sync.RWMutex
	values map[string]uint64

	GetFunc func(ctx context.Context, name string) (*entities.Watermark, error)
	SetFunc func(ctx context.Context, name string, blockNumber uint64) error

	// History of successful Set calls
	SetCalls []uint64
}

func NewMockWatermarkRepository() *MockWatermarkRepository {
	return &MockWatermarkRepository{
		values:   make(map[string]uint64),
		SetCalls: make([]uint64, 0),
	}
}

func (m *MockWatermarkRepository) Get(ctx context.Context, name string) (*entities.Watermark, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, name)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	block, ok := m.values[name]
	if !ok {
		return nil, nil
	}
	return &entities.Watermark{Name: name, BlockNumber: block, UpdatedAt: time.Now().UTC()}, nil
}

func (m *MockWatermarkRepository) Set(ctx context.Context, name string, blockNumber uint64) error {
	if m.SetFunc != nil {
		if err := m.SetFunc(ctx, name, blockNumber); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[name] = blockNumber
	m.SetCalls = append(m.SetCalls, blockNumber)
	return nil
}

// SetWatermark seeds a watermark without recording a call
func (m *MockWatermarkRepository) SetWatermark(name string, blockNumber uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = blockNumber
}

// Value returns the stored watermark and whether it is set
func (m *MockWatermarkRepository) Value(name string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// MockChainReader serves a fixed set of logs and a settable tip
type MockChainReader struct {
	mu   sync.Mutex
	tip  uint64
	logs []entities.TransferLog

	GetChainTipFunc     func(ctx context.Context) (uint64, error)
	GetTransferLogsFunc func(ctx context.Context, fromBlock, toBlock uint64) ([]entities.TransferLog, error)

	// Requested ranges in call order
	Requests []entities.BlockRange
}

func NewMockChainReader(tip uint64, logs ...entities.TransferLog) *MockChainReader {
	return &MockChainReader{
		tip:      tip,
		logs:     logs,
		Requests: make([]entities.BlockRange, 0),
	}
}

func (m *MockChainReader) GetChainTip(ctx context.Context) (uint64, error) {
	if m.GetChainTipFunc != nil {
		return m.GetChainTipFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

func (m *MockChainReader) GetTransferLogs(ctx context.Context, fromBlock, toBlock uint64) ([]entities.TransferLog, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, entities.BlockRange{From: fromBlock, To: toBlock})
	m.mu.Unlock()

	if m.GetTransferLogsFunc != nil {
		return m.GetTransferLogsFunc(ctx, fromBlock, toBlock)
	}

	return m.LogsIn(fromBlock, toBlock), nil
}

// LogsIn returns the configured logs within [fromBlock, toBlock]
func (m *MockChainReader) LogsIn(fromBlock, toBlock uint64) []entities.TransferLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entities.TransferLog, 0)
	for _, l := range m.logs {
		if l.BlockNumber >= fromBlock && l.BlockNumber <= toBlock {
			out = append(out, l)
		}
	}
	return out
}

// SetTip moves the chain tip
func (m *MockChainReader) SetTip(tip uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tip = tip
}

// AddLogs appends logs to the simulated chain
func (m *MockChainReader) AddLogs(logs ...entities.TransferLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
}

// RequestCount returns how many times the range was requested
func (m *MockChainReader) RequestCount(fromBlock, toBlock uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.Requests {
		if r.From == fromBlock && r.To == toBlock {
			n++
		}
	}
	return n
}

// MockCache is an in-memory response cache
type MockCache struct {
	mu      sync.Mutex
	entries map[string][]byte

	GetErr        error
	SetErr        error
	InvalidateErr error

	Invalidations int
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string][]byte)}
}

// ErrMockCacheMiss is returned by MockCache.Get for unknown keys
var ErrMockCacheMiss = errors.New("cache miss")

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return m.GetErr
	}
	data, ok := m.entries[key]
	if !ok {
		return ErrMockCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = data
	return nil
}

func (m *MockCache) InvalidateTransfers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Invalidations++
	if m.InvalidateErr != nil {
		return m.InvalidateErr
	}
	m.entries = make(map[string][]byte)
	return nil
}

// Has reports whether key is cached
func (m *MockCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Len returns the number of cached entries
func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MockHealthChecker is a mock health checker
type MockHealthChecker struct {
	mu      sync.RWMutex
	healthy bool
	err     error
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	var err error
	if !healthy {
		err = errors.New("unhealthy")
	}
	return &MockHealthChecker{
		healthy: healthy,
		err:     err,
	}
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	if healthy {
		m.err = nil
	} else {
		m.err = errors.New("unhealthy")
	}
}
