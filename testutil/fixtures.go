package testutil

import "github.com/btcindex/txstratum/pkg/bitcoin"

// SampleTransaction returns a minimal two-output transaction for testing,
// spending a single synthetic outpoint.
func SampleTransaction() *bitcoin.Transaction {
	return &bitcoin.Transaction{
		Version: 1,
		Inputs: []bitcoin.Input{
			{
				Prevout:   bitcoin.OutPoint{Hash: [32]byte{0x01}, Index: 0},
				ScriptSig: []byte{0x01, 0x02},
				Sequence:  0xffffffff,
			},
		},
		Outputs: []bitcoin.Output{
			{Value: 500, ScriptPubkey: []byte("script-a")},
			{Value: 5000, ScriptPubkey: []byte("script-b")},
		},
		LockTime: 0,
	}
}

// SampleBlock returns a single-transaction block wrapping SampleTransaction.
func SampleBlock() *bitcoin.Block {
	return &bitcoin.Block{
		Header: bitcoin.BlockHeader{
			Version:   1,
			Timestamp: 1700000000,
			Bits:      0x1d00ffff,
		},
		Transactions: []bitcoin.Transaction{*SampleTransaction()},
	}
}

// SampleBlockHash returns a stable, non-zero block hash for testing.
func SampleBlockHash() [32]byte {
	var h [32]byte
	h[0] = 0xAB
	h[31] = 0xCD
	return h
}
