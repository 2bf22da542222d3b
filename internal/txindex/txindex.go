// Package txindex implements the persistent, multi-view transaction
// index: lookup by txid, by block membership, by address, and by
// output-value bucket, over the kvstore abstraction.
package txindex

import (
	"github.com/btcindex/txstratum/internal/apperr"
	"github.com/btcindex/txstratum/internal/kvstore"
	"github.com/btcindex/txstratum/internal/metrics"
	"github.com/btcindex/txstratum/pkg/bitcoin"
)

// Tree names are part of the durable on-disk schema (§6); changing any
// of them is a breaking format change.
const (
	treeTxByHash           = "tx_by_hash"
	treeTxMetadata         = "tx_metadata"
	treeTxByBlock          = "tx_by_block"
	treeAddressTxIndex     = "address_tx_index"
	treeAddressOutputIndex = "address_output_index"
	treeAddressInputIndex  = "address_input_index"
	treeValueIndex         = "value_index"
	// treeBlockTxCount is additive: it backs BlockTransactionCount, which
	// resolves the gap-hiding open question in get_block_transactions
	// without changing that operation's existing (gap-terminating) behavior.
	treeBlockTxCount = "block_tx_count"
)

// TxMetadata is the derived, never-authoritative record kept alongside
// every indexed transaction.
type TxMetadata struct {
	TxHash      [32]byte
	BlockHash   [32]byte
	BlockHeight uint64
	TxIndex     uint32
	Size        uint32
	Weight      uint32
}

// BlockStore resolves a block height to its canonical hash. It is an
// external collaborator the height-range query delegates to; the index
// itself has no notion of chain height.
type BlockStore interface {
	HashByHeight(height uint64) (hash [32]byte, ok bool, err error)
}

// TxIndex is the persistent, multi-view transaction index.
type TxIndex struct {
	txByHash           kvstore.Tree
	txMetadata         kvstore.Tree
	txByBlock          kvstore.Tree
	addressTxIndex     kvstore.Tree
	addressOutputIndex kvstore.Tree
	addressInputIndex  kvstore.Tree
	valueIndex         kvstore.Tree
	blockTxCount       kvstore.Tree

	enableAddressIndex bool
	enableValueIndex   bool

	optionalViewLocks stripeLock
}

// New opens a transaction index with both optional views disabled.
func New(db kvstore.Database) (*TxIndex, error) {
	return WithIndexing(db, false, false)
}

// WithIndexing opens a transaction index with the given optional views.
// All tree names are opened unconditionally (§4.C) so that enabling an
// index later requires no schema migration; the flags only gate writes
// and reads.
func WithIndexing(db kvstore.Database, enableAddressIndex, enableValueIndex bool) (*TxIndex, error) {
	trees := make(map[string]kvstore.Tree, 8)
	for _, name := range []string{
		treeTxByHash, treeTxMetadata, treeTxByBlock,
		treeAddressTxIndex, treeAddressOutputIndex, treeAddressInputIndex,
		treeValueIndex, treeBlockTxCount,
	} {
		tree, err := db.OpenTree(name)
		if err != nil {
			return nil, apperr.KvIoErrorf("open tree %q: %v", name, err)
		}
		trees[name] = tree
	}

	return &TxIndex{
		txByHash:           trees[treeTxByHash],
		txMetadata:         trees[treeTxMetadata],
		txByBlock:          trees[treeTxByBlock],
		addressTxIndex:     trees[treeAddressTxIndex],
		addressOutputIndex: trees[treeAddressOutputIndex],
		addressInputIndex:  trees[treeAddressInputIndex],
		valueIndex:         trees[treeValueIndex],
		blockTxCount:       trees[treeBlockTxCount],
		enableAddressIndex: enableAddressIndex,
		enableValueIndex:   enableValueIndex,
	}, nil
}

// IndexTransaction writes every view for tx in the order primary
// views (body, metadata, block membership) before derived views
// (address, value), so a crash between steps leaves the authoritative
// body recoverable and derived views reconstructible via Rebuild.
func (idx *TxIndex) IndexTransaction(tx *bitcoin.Transaction, blockHash [32]byte, blockHeight uint64, txIndex uint32) error {
	txHash := bitcoin.CalculateTxID(tx)

	txData, err := encodeTransaction(tx)
	if err != nil {
		return apperr.SerializationErrorf("encode transaction %x: %v", txHash, err)
	}
	if err := idx.txByHash.Insert(txHash[:], txData); err != nil {
		return apperr.KvIoErrorf("insert tx_by_hash: %v", err)
	}

	metadata := &TxMetadata{
		TxHash:      txHash,
		BlockHash:   blockHash,
		BlockHeight: blockHeight,
		TxIndex:     txIndex,
		Size:        tx.Size(),
		Weight:      tx.Weight(),
	}
	metaData, err := encodeMetadata(metadata)
	if err != nil {
		return apperr.SerializationErrorf("encode metadata %x: %v", txHash, err)
	}
	if err := idx.txMetadata.Insert(txHash[:], metaData); err != nil {
		return apperr.KvIoErrorf("insert tx_metadata: %v", err)
	}

	blockKey := blockTxKey(blockHash, txIndex)
	if err := idx.txByBlock.Insert(blockKey, txHash[:]); err != nil {
		return apperr.KvIoErrorf("insert tx_by_block: %v", err)
	}
	if err := idx.bumpBlockTxCount(blockHash, txIndex); err != nil {
		return err
	}

	if idx.enableAddressIndex {
		if err := idx.indexAddresses(tx, txHash); err != nil {
			return err
		}
	}
	if idx.enableValueIndex {
		if err := idx.indexValues(tx, txHash); err != nil {
			return err
		}
	}

	if n, err := idx.txByHash.Len(); err == nil {
		metrics.IndexedTransactions.Set(float64(n))
	}

	return nil
}

func (idx *TxIndex) bumpBlockTxCount(blockHash [32]byte, txIndex uint32) error {
	idx.optionalViewLocks.lock(blockHash[:])
	defer idx.optionalViewLocks.unlock(blockHash[:])

	want := txIndex + 1
	existing, ok, err := idx.blockTxCount.Get(blockHash[:])
	if err != nil {
		return apperr.KvIoErrorf("read block_tx_count: %v", err)
	}
	if ok && decodeUint32(existing) >= want {
		return nil
	}
	if err := idx.blockTxCount.Insert(blockHash[:], encodeUint32(want)); err != nil {
		return apperr.KvIoErrorf("insert block_tx_count: %v", err)
	}
	if !ok {
		if n, err := idx.blockTxCount.Len(); err == nil {
			metrics.IndexedBlocks.Set(float64(n))
		}
	}
	return nil
}

func (idx *TxIndex) indexAddresses(tx *bitcoin.Transaction, txHash [32]byte) error {
	for outputIndex, out := range tx.Outputs {
		addressHash := bitcoin.SHA256(out.ScriptPubkey)

		if err := idx.appendAddressTx(addressHash, txHash); err != nil {
			return err
		}
		if err := idx.appendAddressOutput(addressHash, txHash, uint32(outputIndex)); err != nil {
			return err
		}
	}
	return nil
}

func (idx *TxIndex) appendAddressTx(addressHash, txHash [32]byte) error {
	idx.optionalViewLocks.lock(addressHash[:])
	defer idx.optionalViewLocks.unlock(addressHash[:])

	existing, err := idx.readHashList(idx.addressTxIndex, addressHash[:])
	if err != nil {
		return err
	}
	for _, h := range existing {
		if h == txHash {
			return nil // already present: property 5, address dedup.
		}
	}
	existing = append(existing, txHash)
	data, err := encodeHashList(existing)
	if err != nil {
		return apperr.SerializationErrorf("encode address_tx_index entry: %v", err)
	}
	if err := idx.addressTxIndex.Insert(addressHash[:], data); err != nil {
		return apperr.KvIoErrorf("insert address_tx_index: %v", err)
	}
	return nil
}

func (idx *TxIndex) appendAddressOutput(addressHash, txHash [32]byte, outputIndex uint32) error {
	idx.optionalViewLocks.lock(addressHash[:])
	defer idx.optionalViewLocks.unlock(addressHash[:])

	existing, err := idx.readOutputRefs(addressHash[:])
	if err != nil {
		return err
	}
	for _, ref := range existing {
		if ref.TxHash == txHash && ref.OutputIndex == outputIndex {
			return nil
		}
	}
	existing = append(existing, outputRefWire{TxHash: txHash, OutputIndex: outputIndex})
	data, err := encodeOutputRefs(existing)
	if err != nil {
		return apperr.SerializationErrorf("encode address_output_index entry: %v", err)
	}
	if err := idx.addressOutputIndex.Insert(addressHash[:], data); err != nil {
		return apperr.KvIoErrorf("insert address_output_index: %v", err)
	}
	return nil
}

func (idx *TxIndex) indexValues(tx *bitcoin.Transaction, txHash [32]byte) error {
	for outputIndex, out := range tx.Outputs {
		bucket := valueToBucket(out.Value)
		if err := idx.appendValueEntry(bucket, txHash, uint32(outputIndex), out.Value); err != nil {
			return err
		}
	}
	return nil
}

func (idx *TxIndex) appendValueEntry(bucket uint64, txHash [32]byte, outputIndex uint32, value uint64) error {
	key := bucketKey(bucket)
	idx.optionalViewLocks.lock(key)
	defer idx.optionalViewLocks.unlock(key)

	existing, err := idx.readValueEntries(key)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.TxHash == txHash && e.OutputIndex == outputIndex {
			return nil
		}
	}
	existing = append(existing, valueEntryWire{TxHash: txHash, OutputIndex: outputIndex, Value: value})
	data, err := encodeValueEntries(existing)
	if err != nil {
		return apperr.SerializationErrorf("encode value_index entry: %v", err)
	}
	if err := idx.valueIndex.Insert(key, data); err != nil {
		return apperr.KvIoErrorf("insert value_index: %v", err)
	}
	return nil
}

func (idx *TxIndex) readHashList(tree kvstore.Tree, key []byte) ([][32]byte, error) {
	data, ok, err := tree.Get(key)
	if err != nil {
		return nil, apperr.KvIoErrorf("read %v: %v", key, err)
	}
	if !ok {
		return nil, nil
	}
	hashes, err := decodeHashList(data)
	if err != nil {
		return nil, apperr.CorruptEntryf("decode hash list: %v", err)
	}
	return hashes, nil
}

func (idx *TxIndex) readOutputRefs(addressHash []byte) ([]outputRefWire, error) {
	data, ok, err := idx.addressOutputIndex.Get(addressHash)
	if err != nil {
		return nil, apperr.KvIoErrorf("read address_output_index: %v", err)
	}
	if !ok {
		return nil, nil
	}
	refs, err := decodeOutputRefs(data)
	if err != nil {
		return nil, apperr.CorruptEntryf("decode output refs: %v", err)
	}
	return refs, nil
}

func (idx *TxIndex) readValueEntries(bucketKey []byte) ([]valueEntryWire, error) {
	data, ok, err := idx.valueIndex.Get(bucketKey)
	if err != nil {
		return nil, apperr.KvIoErrorf("read value_index: %v", err)
	}
	if !ok {
		return nil, nil
	}
	entries, err := decodeValueEntries(data)
	if err != nil {
		return nil, apperr.CorruptEntryf("decode value entries: %v", err)
	}
	return entries, nil
}

// GetTransaction returns the indexed transaction for txHash.
func (idx *TxIndex) GetTransaction(txHash [32]byte) (*bitcoin.Transaction, bool, error) {
	data, ok, err := idx.txByHash.Get(txHash[:])
	if err != nil {
		return nil, false, apperr.KvIoErrorf("read tx_by_hash: %v", err)
	}
	if !ok {
		return nil, false, nil
	}
	tx, err := decodeTransaction(data)
	if err != nil {
		return nil, false, apperr.CorruptEntryf("decode transaction %x: %v", txHash, err)
	}
	return tx, true, nil
}

// GetMetadata returns the metadata record for txHash.
func (idx *TxIndex) GetMetadata(txHash [32]byte) (*TxMetadata, bool, error) {
	data, ok, err := idx.txMetadata.Get(txHash[:])
	if err != nil {
		return nil, false, apperr.KvIoErrorf("read tx_metadata: %v", err)
	}
	if !ok {
		return nil, false, nil
	}
	metadata, err := decodeMetadata(data)
	if err != nil {
		return nil, false, apperr.CorruptEntryf("decode metadata %x: %v", txHash, err)
	}
	return metadata, true, nil
}

// GetBlockTransactions enumerates tx_by_block starting at tx_index=0,
// stopping at the first missing key. Gaps terminate enumeration
// silently (§4.C); BlockTransactionCount exists precisely so a caller
// who needs to detect that can cross-check the count it got.
func (idx *TxIndex) GetBlockTransactions(blockHash [32]byte) ([]bitcoin.Transaction, error) {
	var out []bitcoin.Transaction
	for txIndex := uint32(0); ; txIndex++ {
		key := blockTxKey(blockHash, txIndex)
		data, ok, err := idx.txByBlock.Get(key)
		if err != nil {
			return nil, apperr.KvIoErrorf("read tx_by_block: %v", err)
		}
		if !ok {
			break
		}
		var txHash [32]byte
		copy(txHash[:], data)
		tx, found, err := idx.GetTransaction(txHash)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		out = append(out, *tx)
	}
	return out, nil
}

// BlockTransactionCount returns one more than the highest tx_index
// IndexTransaction has recorded for blockHash, independent of any gaps in
// tx_by_block (indexing tx_index 0 and 2 gives 3). RemoveTransaction does
// not lower it. Comparing this against len(GetBlockTransactions(blockHash))
// reveals the gap-hiding condition §9's open question warns about.
func (idx *TxIndex) BlockTransactionCount(blockHash [32]byte) (uint32, bool, error) {
	data, ok, err := idx.blockTxCount.Get(blockHash[:])
	if err != nil {
		return 0, false, apperr.KvIoErrorf("read block_tx_count: %v", err)
	}
	if !ok {
		return 0, false, nil
	}
	return decodeUint32(data), true, nil
}

// GetTransactionsByAddress returns every transaction touching the given
// script_pubkey, or an empty slice if address indexing is disabled
// (§7: IndexDisabled is silently coerced to empty results, not an error).
func (idx *TxIndex) GetTransactionsByAddress(scriptPubkey []byte) ([]bitcoin.Transaction, error) {
	if !idx.enableAddressIndex {
		return nil, nil
	}
	addressHash := bitcoin.SHA256(scriptPubkey)
	hashes, err := idx.readHashList(idx.addressTxIndex, addressHash[:])
	if err != nil {
		return nil, err
	}
	out := make([]bitcoin.Transaction, 0, len(hashes))
	for _, h := range hashes {
		tx, ok, err := idx.GetTransaction(h)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *tx)
		}
	}
	return out, nil
}

// GetTransactionsByValueRange enumerates buckets from bucket(min)
// through bucket(max) inclusive (bucket is monotone non-decreasing in
// value, so every candidate lies in this range), filters by
// min <= value <= max, de-duplicates tx_hashes, and fetches
// transactions.
func (idx *TxIndex) GetTransactionsByValueRange(min, max uint64) ([]bitcoin.Transaction, error) {
	if !idx.enableValueIndex {
		return nil, nil
	}

	minBucket := valueToBucket(min)
	maxBucket := valueToBucket(max)

	seen := make(map[[32]byte]bool)
	var out []bitcoin.Transaction

	for bucket := minBucket; bucket <= maxBucket; bucket += 1000 {
		entries, err := idx.readValueEntries(bucketKey(bucket))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Value < min || e.Value > max {
				continue
			}
			if seen[e.TxHash] {
				continue
			}
			tx, ok, err := idx.GetTransaction(e.TxHash)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			seen[e.TxHash] = true
			out = append(out, *tx)
		}
		if bucket == 0 && maxBucket == 0 {
			break
		}
	}

	return out, nil
}

// GetTransactionsByHeightRange resolves each height in [lo, hi] to a
// block hash via blockstore, then enumerates that block's transactions.
// Missing heights and missing blocks are skipped without error.
func (idx *TxIndex) GetTransactionsByHeightRange(lo, hi uint64, blockstore BlockStore) ([]bitcoin.Transaction, error) {
	var out []bitcoin.Transaction
	for height := lo; height <= hi; height++ {
		blockHash, ok, err := blockstore.HashByHeight(height)
		if err != nil || !ok {
			continue
		}
		txs, err := idx.GetBlockTransactions(blockHash)
		if err != nil {
			continue
		}
		out = append(out, txs...)
	}
	return out, nil
}

// RemoveTransaction removes the primary body, metadata, and the
// tx_by_block entry for tx_hash. Optional view entries are left as
// tombstones (§4.C): cleaning them up requires Rebuild or Clear.
func (idx *TxIndex) RemoveTransaction(txHash [32]byte) error {
	metadata, ok, err := idx.GetMetadata(txHash)
	if err != nil {
		return err
	}
	if ok {
		blockKey := blockTxKey(metadata.BlockHash, metadata.TxIndex)
		if err := idx.txByBlock.Remove(blockKey); err != nil {
			return apperr.KvIoErrorf("remove tx_by_block: %v", err)
		}
	}
	if err := idx.txByHash.Remove(txHash[:]); err != nil {
		return apperr.KvIoErrorf("remove tx_by_hash: %v", err)
	}
	if err := idx.txMetadata.Remove(txHash[:]); err != nil {
		return apperr.KvIoErrorf("remove tx_metadata: %v", err)
	}
	return nil
}

// Clear removes every view, including optional views regardless of
// whether they're currently enabled (a previously-enabled index may
// still carry data).
func (idx *TxIndex) Clear() error {
	for _, tree := range []kvstore.Tree{
		idx.txByHash, idx.txMetadata, idx.txByBlock,
		idx.addressTxIndex, idx.addressOutputIndex, idx.addressInputIndex,
		idx.valueIndex, idx.blockTxCount,
	} {
		if err := tree.Clear(); err != nil {
			return apperr.KvIoErrorf("clear tree: %v", err)
		}
	}
	return nil
}

// Has reports whether tx_hash is indexed.
func (idx *TxIndex) Has(txHash [32]byte) (bool, error) {
	ok, err := idx.txByHash.ContainsKey(txHash[:])
	if err != nil {
		return false, apperr.KvIoErrorf("contains_key tx_by_hash: %v", err)
	}
	return ok, nil
}

// Count returns the number of indexed transactions.
func (idx *TxIndex) Count() (int, error) {
	n, err := idx.txByHash.Len()
	if err != nil {
		return 0, apperr.KvIoErrorf("len tx_by_hash: %v", err)
	}
	return n, nil
}

// Rebuild recomputes every derived view (address_tx_index,
// address_output_index, value_index, block_tx_count) from the
// authoritative tx_by_hash/tx_metadata views via a full scan. This is
// the recovery path §9 and §4.C's ordering rationale anticipate: a
// crash between a primary write and a derived write leaves the body
// recoverable, and Rebuild reconstructs everything derived from it.
func (idx *TxIndex) Rebuild() error {
	metrics.RebuildsTotal.Inc()
	for _, tree := range []kvstore.Tree{
		idx.addressTxIndex, idx.addressOutputIndex, idx.valueIndex, idx.blockTxCount,
	} {
		if err := tree.Clear(); err != nil {
			return apperr.KvIoErrorf("clear derived tree: %v", err)
		}
	}

	var rebuildErr error
	err := idx.txMetadata.Scan(nil, func(key, value []byte) (bool, error) {
		metadata, err := decodeMetadata(value)
		if err != nil {
			return false, apperr.CorruptEntryf("decode metadata during rebuild: %v", err)
		}

		tx, ok, err := idx.GetTransaction(metadata.TxHash)
		if err != nil {
			return false, err
		}
		if !ok {
			// Metadata without a body: skip, primary view is authoritative.
			return true, nil
		}

		if idx.enableAddressIndex {
			if err := idx.indexAddresses(tx, metadata.TxHash); err != nil {
				rebuildErr = err
				return false, err
			}
		}
		if idx.enableValueIndex {
			if err := idx.indexValues(tx, metadata.TxHash); err != nil {
				rebuildErr = err
				return false, err
			}
		}
		if err := idx.bumpBlockTxCount(metadata.BlockHash, metadata.TxIndex); err != nil {
			rebuildErr = err
			return false, err
		}
		return true, nil
	})
	if err != nil {
		if rebuildErr != nil {
			return rebuildErr
		}
		return apperr.KvIoErrorf("scan tx_metadata during rebuild: %v", err)
	}
	return nil
}
