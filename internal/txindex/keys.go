package txindex

import "encoding/binary"

// blockTxKey builds the tx_by_block key: block_hash ‖ tx_index_be_u32.
// Big-endian index keeps a block's entries lexicographically ordered,
// so a prefix scan over block_hash yields transactions in block order.
func blockTxKey(blockHash [32]byte, txIndex uint32) []byte {
	key := make([]byte, 32+4)
	copy(key, blockHash[:])
	binary.BigEndian.PutUint32(key[32:], txIndex)
	return key
}

// bucketKey encodes a value bucket as a big-endian u64 for lexicographic
// bucket ordering in value_index.
func bucketKey(bucket uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, bucket)
	return key
}

// valueToBucket implements the logarithmic bucketing scheme from §3:
// bucket(v) = 0 if v == 0, else (floor(log10(v)) + 1) * 1000.
func valueToBucket(value uint64) uint64 {
	if value == 0 {
		return 0
	}
	digits := uint64(0)
	for v := value; v > 0; v /= 10 {
		digits++
	}
	// digits == floor(log10(value)) + 1 already.
	return digits * 1000
}
