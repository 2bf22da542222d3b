package txindex

import (
	"path/filepath"
	"testing"

	"github.com/btcindex/txstratum/internal/kvstore"
	"github.com/btcindex/txstratum/pkg/bitcoin"
)

func newTestIndex(t *testing.T, enableAddress, enableValue bool) *TxIndex {
	t.Helper()
	db, err := kvstore.NewBoltDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	idx, err := WithIndexing(db, enableAddress, enableValue)
	if err != nil {
		t.Fatalf("WithIndexing: %v", err)
	}
	return idx
}

func makeTx(lockTime uint32, outputs ...bitcoin.Output) *bitcoin.Transaction {
	return &bitcoin.Transaction{
		Version: 1,
		Inputs: []bitcoin.Input{
			{Prevout: bitcoin.OutPoint{Index: 0}, ScriptSig: []byte{0x01}, Sequence: 0xffffffff},
		},
		Outputs:  outputs,
		LockTime: lockTime,
	}
}

// Property 2: index round-trip.
func TestIndexRoundTrip(t *testing.T) {
	idx := newTestIndex(t, false, false)

	tx := makeTx(0, bitcoin.Output{Value: 1000, ScriptPubkey: []byte{0xaa}})
	var blockHash [32]byte
	blockHash[0] = 0x01

	if err := idx.IndexTransaction(tx, blockHash, 100, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}

	txHash := bitcoin.CalculateTxID(tx)
	got, ok, err := idx.GetTransaction(txHash)
	if err != nil || !ok {
		t.Fatalf("GetTransaction: ok=%v err=%v", ok, err)
	}
	if got.LockTime != tx.LockTime || len(got.Outputs) != len(tx.Outputs) {
		t.Errorf("round-tripped transaction mismatch: %+v != %+v", got, tx)
	}

	meta, ok, err := idx.GetMetadata(txHash)
	if err != nil || !ok {
		t.Fatalf("GetMetadata: ok=%v err=%v", ok, err)
	}
	if meta.BlockHash != blockHash || meta.BlockHeight != 100 || meta.TxIndex != 0 {
		t.Errorf("metadata mismatch: %+v", meta)
	}
	if meta.Size != tx.Size() || meta.Weight != tx.Weight() {
		t.Errorf("metadata size/weight mismatch: got %d/%d, want %d/%d", meta.Size, meta.Weight, tx.Size(), tx.Weight())
	}
}

// Property 3: idempotence.
func TestIndexIdempotence(t *testing.T) {
	idx := newTestIndex(t, true, true)

	tx := makeTx(0, bitcoin.Output{Value: 1000, ScriptPubkey: []byte{0xbb}})
	var blockHash [32]byte
	blockHash[0] = 0x02

	if err := idx.IndexTransaction(tx, blockHash, 5, 0); err != nil {
		t.Fatalf("first IndexTransaction: %v", err)
	}
	if err := idx.IndexTransaction(tx, blockHash, 5, 0); err != nil {
		t.Fatalf("second IndexTransaction: %v", err)
	}

	n, err := idx.Count()
	if err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v, want 1", n, err)
	}

	addressHash := bitcoin.SHA256([]byte{0xbb})
	hashes, err := idx.readHashList(idx.addressTxIndex, addressHash[:])
	if err != nil {
		t.Fatalf("readHashList: %v", err)
	}
	if len(hashes) != 1 {
		t.Errorf("address_tx_index has %d entries after idempotent reindex, want 1", len(hashes))
	}
}

// Property 4: block enumeration.
func TestBlockEnumeration(t *testing.T) {
	idx := newTestIndex(t, false, false)
	var blockHash [32]byte
	blockHash[0] = 0x03

	const n = 5
	for i := uint32(0); i < n; i++ {
		tx := makeTx(i, bitcoin.Output{Value: uint64(i + 1), ScriptPubkey: []byte{byte(i)}})
		if err := idx.IndexTransaction(tx, blockHash, 10, i); err != nil {
			t.Fatalf("IndexTransaction %d: %v", i, err)
		}
	}

	txs, err := idx.GetBlockTransactions(blockHash)
	if err != nil {
		t.Fatalf("GetBlockTransactions: %v", err)
	}
	if len(txs) != n {
		t.Fatalf("GetBlockTransactions returned %d txs, want %d", len(txs), n)
	}
	for i, tx := range txs {
		if tx.LockTime != uint32(i) {
			t.Errorf("tx %d out of order: LockTime=%d", i, tx.LockTime)
		}
	}

	count, ok, err := idx.BlockTransactionCount(blockHash)
	if err != nil || !ok || count != n {
		t.Fatalf("BlockTransactionCount = %d, %v, %v, want %d", count, ok, err, n)
	}
}

func TestBlockEnumerationStopsAtGap(t *testing.T) {
	idx := newTestIndex(t, false, false)
	var blockHash [32]byte
	blockHash[0] = 0x04

	tx0 := makeTx(0, bitcoin.Output{Value: 1, ScriptPubkey: []byte{0x01}})
	tx2 := makeTx(2, bitcoin.Output{Value: 2, ScriptPubkey: []byte{0x02}})
	if err := idx.IndexTransaction(tx0, blockHash, 1, 0); err != nil {
		t.Fatalf("index tx0: %v", err)
	}
	// Skip tx_index 1 entirely: this creates the gap BlockTransactionCount
	// exists to surface.
	if err := idx.IndexTransaction(tx2, blockHash, 1, 2); err != nil {
		t.Fatalf("index tx2: %v", err)
	}

	txs, err := idx.GetBlockTransactions(blockHash)
	if err != nil {
		t.Fatalf("GetBlockTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("GetBlockTransactions returned %d, want 1 (gap should stop enumeration)", len(txs))
	}

	count, ok, err := idx.BlockTransactionCount(blockHash)
	if err != nil || !ok {
		t.Fatalf("BlockTransactionCount: ok=%v err=%v", ok, err)
	}
	if count != 3 {
		t.Fatalf("BlockTransactionCount = %d, want 3 (reveals the gap enumeration hid)", count)
	}
}

// Property 5: address dedup.
func TestAddressDedup(t *testing.T) {
	idx := newTestIndex(t, true, false)
	tx := makeTx(0, bitcoin.Output{Value: 1, ScriptPubkey: []byte{0xcc}})
	var blockHash [32]byte

	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("index 1: %v", err)
	}
	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("index 2: %v", err)
	}

	txs, err := idx.GetTransactionsByAddress([]byte{0xcc})
	if err != nil {
		t.Fatalf("GetTransactionsByAddress: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("GetTransactionsByAddress returned %d entries, want 1 (dedup)", len(txs))
	}
}

func TestAddressIndexDisabledReturnsEmpty(t *testing.T) {
	idx := newTestIndex(t, false, false)
	txs, err := idx.GetTransactionsByAddress([]byte{0xdd})
	if err != nil {
		t.Fatalf("GetTransactionsByAddress should not error when disabled: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected empty result with address index disabled, got %d", len(txs))
	}
}

// Property 6 / Scenario S6: value bucket coverage.
func TestValueBucketCoverage(t *testing.T) {
	idx := newTestIndex(t, false, true)
	tx := makeTx(0,
		bitcoin.Output{Value: 500, ScriptPubkey: []byte{0x01}},
		bitcoin.Output{Value: 5000, ScriptPubkey: []byte{0x02}},
	)
	var blockHash [32]byte
	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}

	txs, err := idx.GetTransactionsByValueRange(100, 10000)
	if err != nil {
		t.Fatalf("GetTransactionsByValueRange: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("GetTransactionsByValueRange returned %d txs, want 1 (S6)", len(txs))
	}
}

func TestValueRangeExactSingleton(t *testing.T) {
	idx := newTestIndex(t, false, true)
	tx := makeTx(0, bitcoin.Output{Value: 42, ScriptPubkey: []byte{0x09}})
	var blockHash [32]byte
	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}

	txs, err := idx.GetTransactionsByValueRange(42, 42)
	if err != nil {
		t.Fatalf("GetTransactionsByValueRange: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("exact-value range returned %d, want 1", len(txs))
	}
}

func TestValueIndexDisabledReturnsEmpty(t *testing.T) {
	idx := newTestIndex(t, false, false)
	txs, err := idx.GetTransactionsByValueRange(0, 1_000_000)
	if err != nil {
		t.Fatalf("GetTransactionsByValueRange should not error when disabled: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected empty result with value index disabled, got %d", len(txs))
	}
}

func TestRemoveTransaction(t *testing.T) {
	idx := newTestIndex(t, false, false)
	tx := makeTx(0, bitcoin.Output{Value: 1, ScriptPubkey: []byte{0x01}})
	var blockHash [32]byte

	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}
	txHash := bitcoin.CalculateTxID(tx)

	if err := idx.RemoveTransaction(txHash); err != nil {
		t.Fatalf("RemoveTransaction: %v", err)
	}

	if has, err := idx.Has(txHash); err != nil || has {
		t.Errorf("Has() after remove: %v, %v, want false", has, err)
	}
	if _, ok, _ := idx.GetMetadata(txHash); ok {
		t.Error("metadata still present after RemoveTransaction")
	}
	txs, err := idx.GetBlockTransactions(blockHash)
	if err != nil {
		t.Fatalf("GetBlockTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("tx_by_block entry survived RemoveTransaction")
	}
}

func TestClear(t *testing.T) {
	idx := newTestIndex(t, true, true)
	tx := makeTx(0, bitcoin.Output{Value: 1, ScriptPubkey: []byte{0x01}})
	var blockHash [32]byte
	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}

	if err := idx.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, err := idx.Count()
	if err != nil || n != 0 {
		t.Fatalf("Count() after Clear = %d, %v, want 0", n, err)
	}
}

func TestRebuildRestoresDerivedViews(t *testing.T) {
	idx := newTestIndex(t, true, true)
	tx := makeTx(0,
		bitcoin.Output{Value: 500, ScriptPubkey: []byte{0x07}},
		bitcoin.Output{Value: 5000, ScriptPubkey: []byte{0x08}},
	)
	var blockHash [32]byte
	blockHash[0] = 0x09
	if err := idx.IndexTransaction(tx, blockHash, 1, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}

	// Simulate a crash that left derived views empty.
	if err := idx.addressTxIndex.Clear(); err != nil {
		t.Fatalf("clear address_tx_index: %v", err)
	}
	if err := idx.valueIndex.Clear(); err != nil {
		t.Fatalf("clear value_index: %v", err)
	}
	if err := idx.blockTxCount.Clear(); err != nil {
		t.Fatalf("clear block_tx_count: %v", err)
	}

	if err := idx.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	txs, err := idx.GetTransactionsByAddress([]byte{0x07})
	if err != nil || len(txs) != 1 {
		t.Errorf("GetTransactionsByAddress after Rebuild: %d, %v, want 1", len(txs), err)
	}

	valueTxs, err := idx.GetTransactionsByValueRange(100, 10000)
	if err != nil || len(valueTxs) != 1 {
		t.Errorf("GetTransactionsByValueRange after Rebuild: %d, %v, want 1", len(valueTxs), err)
	}

	count, ok, err := idx.BlockTransactionCount(blockHash)
	if err != nil || !ok || count != 1 {
		t.Errorf("BlockTransactionCount after Rebuild: %d, %v, %v, want 1", count, ok, err)
	}
}

func TestHeightRangeGapTolerant(t *testing.T) {
	idx := newTestIndex(t, false, false)
	var blockHash10 [32]byte
	blockHash10[0] = 0x10
	tx := makeTx(0, bitcoin.Output{Value: 1, ScriptPubkey: []byte{0x01}})
	if err := idx.IndexTransaction(tx, blockHash10, 10, 0); err != nil {
		t.Fatalf("IndexTransaction: %v", err)
	}

	bs := fakeBlockStore{10: blockHash10}
	txs, err := idx.GetTransactionsByHeightRange(9, 11, bs)
	if err != nil {
		t.Fatalf("GetTransactionsByHeightRange: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("GetTransactionsByHeightRange returned %d, want 1 (gaps at 9,11 tolerated)", len(txs))
	}
}

type fakeBlockStore map[uint64][32]byte

func (f fakeBlockStore) HashByHeight(height uint64) ([32]byte, bool, error) {
	h, ok := f[height]
	return h, ok, nil
}

func TestValueBucketMath(t *testing.T) {
	cases := []struct {
		value uint64
		want  uint64
	}{
		{0, 0},
		{1, 1000},
		{9, 1000},
		{10, 2000},
		{99, 2000},
		{100, 3000},
		{999, 3000},
		{1000, 4000},
	}
	for _, c := range cases {
		if got := valueToBucket(c.value); got != c.want {
			t.Errorf("valueToBucket(%d) = %d, want %d", c.value, got, c.want)
		}
	}
}
