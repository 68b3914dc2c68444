package ethereum

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	testToken = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	testFrom  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTo    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestTransferEventSignature(t *testing.T) {
	expected := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	if TransferEventSignature != expected {
		t.Errorf("TransferEventSignature mismatch: expected %s, got %s", expected.Hex(), TransferEventSignature.Hex())
	}
}

func TestParseTransferLog_Success(t *testing.T) {
	txHash := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	amount := uint256.NewInt(1_000_000)

	log := transferLog(12345678, 5, amount)
	log.TxHash = txHash

	transfer, err := ParseTransferLog(log, 1_705_314_600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if transfer.TransactionHash != txHash {
		t.Errorf("TransactionHash mismatch: expected %s, got %s", txHash.Hex(), transfer.TransactionHash.Hex())
	}
	if transfer.LogIndex != 5 {
		t.Errorf("LogIndex mismatch: expected 5, got %d", transfer.LogIndex)
	}
	if transfer.BlockNumber != 12345678 {
		t.Errorf("BlockNumber mismatch: expected 12345678, got %d", transfer.BlockNumber)
	}
	if transfer.BlockTimestamp != 1_705_314_600 {
		t.Errorf("BlockTimestamp mismatch: got %d", transfer.BlockTimestamp)
	}
	if transfer.TokenAddress != testToken {
		t.Errorf("TokenAddress mismatch: got %s", transfer.TokenAddress.Hex())
	}
	if transfer.FromAddress != testFrom {
		t.Errorf("FromAddress mismatch: got %s", transfer.FromAddress.Hex())
	}
	if transfer.ToAddress != testTo {
		t.Errorf("ToAddress mismatch: got %s", transfer.ToAddress.Hex())
	}
	if !transfer.Amount.Eq(amount) {
		t.Errorf("Amount mismatch: expected %s, got %s", amount.Dec(), transfer.Amount.Dec())
	}
}

func TestParseTransferLog_FullWidthAmount(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	transfer, err := ParseTransferLog(transferLog(1, 0, max), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if transfer.Amount.Dec() != "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
		t.Errorf("amount truncated: got %s", transfer.Amount.Dec())
	}
}

func TestParseTransferLog_ZeroAmount(t *testing.T) {
	transfer, err := ParseTransferLog(transferLog(1, 0, uint256.NewInt(0)), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transfer.Amount.IsZero() {
		t.Errorf("expected zero amount, got %s", transfer.Amount.Dec())
	}
}

func TestParseTransferLog_InvalidTopicsCount(t *testing.T) {
	tests := []struct {
		name      string
		topicsLen int
	}{
		{"no topics", 0},
		{"one topic", 1},
		{"two topics", 2},
		{"erc721 style", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := transferLog(1, 0, uint256.NewInt(1))
			log.Topics = make([]common.Hash, tt.topicsLen)
			if tt.topicsLen > 0 {
				log.Topics[0] = TransferEventSignature
			}

			_, err := ParseTransferLog(log, 0)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), "invalid number of topics") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseTransferLog_WrongEventSignature(t *testing.T) {
	log := transferLog(1, 0, uint256.NewInt(1))
	log.Topics[0] = common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925") // Approval

	_, err := ParseTransferLog(log, 0)
	if err == nil {
		t.Fatal("expected error for wrong event signature")
	}
	if !strings.Contains(err.Error(), "not a Transfer event") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseTransferLog_InvalidDataLength(t *testing.T) {
	for _, n := range []int{0, 16, 64} {
		log := transferLog(1, 0, uint256.NewInt(1))
		log.Data = make([]byte, n)

		_, err := ParseTransferLog(log, 0)
		if err == nil {
			t.Fatalf("expected error for data length %d", n)
		}
		if !strings.Contains(err.Error(), "invalid data length") {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

func TestParseTransferLogs_MissingTimestamp(t *testing.T) {
	timestamps := map[uint64]int64{100: 1000, 102: 1002}

	logs := []types.Log{
		transferLog(100, 0, uint256.NewInt(1)),
		transferLog(101, 1, uint256.NewInt(1)),
		transferLog(102, 2, uint256.NewInt(1)),
	}

	transfers, failed := ParseTransferLogs(logs, timestamps)

	if len(transfers) != 2 {
		t.Errorf("expected 2 transfers, got %d", len(transfers))
	}
	if len(failed) != 1 || failed[0] != 1 {
		t.Errorf("expected failed index [1], got %v", failed)
	}
	if transfers[1].BlockTimestamp != 1002 {
		t.Errorf("timestamp mismatch: got %d", transfers[1].BlockTimestamp)
	}
}

func TestParseTransferLogs_SkipsRemoved(t *testing.T) {
	removed := transferLog(100, 1, uint256.NewInt(1))
	removed.Removed = true

	logs := []types.Log{transferLog(100, 0, uint256.NewInt(1)), removed}

	transfers, failed := ParseTransferLogs(logs, map[uint64]int64{100: 1})
	if len(transfers) != 1 {
		t.Errorf("expected 1 transfer, got %d", len(transfers))
	}
	if len(failed) != 0 {
		t.Errorf("removed logs are not failures, got %v", failed)
	}
}

func TestIsTransferEvent(t *testing.T) {
	if !IsTransferEvent(transferLog(100, 0, uint256.NewInt(1))) {
		t.Error("expected valid Transfer log to match")
	}

	approval := transferLog(100, 0, uint256.NewInt(1))
	approval.Topics[0] = common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")
	if IsTransferEvent(approval) {
		t.Error("expected Approval log not to match")
	}

	nft := transferLog(100, 0, uint256.NewInt(1))
	nft.Topics = append(nft.Topics, common.Hash{})
	if IsTransferEvent(nft) {
		t.Error("expected four-topic log not to match")
	}
}

// Helper functions

func transferLog(blockNumber uint64, index uint, amount *uint256.Int) types.Log {
	data := amount.Bytes32()
	return types.Log{
		Address: testToken,
		Topics: []common.Hash{
			TransferEventSignature,
			common.BytesToHash(testFrom.Bytes()),
			common.BytesToHash(testTo.Bytes()),
		},
		Data:        data[:],
		BlockNumber: blockNumber,
		TxHash:      common.HexToHash("0x3333333333333333333333333333333333333333333333333333333333333333"),
		Index:       index,
	}
}
