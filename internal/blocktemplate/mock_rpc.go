package blocktemplate

import (
	"context"
	"sync"
)

// MockRPC implements BitcoinRPC for testing.
type MockRPC struct {
	mu sync.Mutex

	BlockTemplate *BlockTemplate

	// Error overrides
	GetBlockTemplateErr error
}

// NewMockRPC creates a new mock Bitcoin RPC client with sensible defaults.
func NewMockRPC() *MockRPC {
	return &MockRPC{
		BlockTemplate: &BlockTemplate{
			Version:           536870912,
			PreviousBlockHash: "0000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39",
			Transactions:      []TemplateTransaction{},
			CoinbaseValue:     5000000000,
			Target:            "00000000ffff0000000000000000000000000000000000000000000000000000",
			CurTime:           1700000000,
			Bits:              "1d00ffff",
			Height:            800000,
		},
	}
}

func (m *MockRPC) GetBlockTemplate(_ context.Context) (*BlockTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockTemplateErr != nil {
		return nil, m.GetBlockTemplateErr
	}
	return m.BlockTemplate, nil
}
