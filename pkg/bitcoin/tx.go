package bitcoin

import (
	"bytes"
	"encoding/binary"
)

// OutPoint identifies a previous transaction output being spent.
type OutPoint struct {
	Hash  [32]byte
	Index uint32
}

// Input is a transaction input.
type Input struct {
	Prevout   OutPoint
	ScriptSig []byte
	Sequence  uint32
}

// Output is a transaction output.
type Output struct {
	Value        uint64
	ScriptPubkey []byte
}

// Transaction is the canonical Bitcoin-like transaction shape: an ordered
// sequence of inputs and outputs plus a version and lock time.
type Transaction struct {
	Version  int32
	Inputs   []Input
	Outputs  []Output
	LockTime uint32
}

// BlockHeader is the 80-byte Bitcoin block header.
type BlockHeader struct {
	Version       int32
	PrevBlockHash [32]byte
	MerkleRoot    [32]byte
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32
}

// Block is a header plus its ordered transactions. Transactions within a
// block have a stable 0-based index (their position in Transactions).
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// Serialize produces the canonical encoding used to compute a txid:
//
//	version_le(4) || varint(n_in) ||
//	  for each input: prevout.hash(32) || prevout.index_le(4) ||
//	    varint(len(script_sig)) || script_sig || sequence_le(4)
//	varint(n_out) ||
//	  for each output: value_le(8) || varint(len(script_pubkey)) || script_pubkey
//	lock_time_le(4)
//
// This is a pure function of tx: identical inputs always serialize
// identically, which is what makes CalculateTxID a pure function too.
func (tx *Transaction) Serialize() []byte {
	var buf bytes.Buffer
	buf.Grow(tx.serializedSize())

	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(tx.Version))
	buf.Write(tmp[:])

	buf.Write(WriteVarInt(uint64(len(tx.Inputs))))
	for _, in := range tx.Inputs {
		buf.Write(in.Prevout.Hash[:])
		binary.LittleEndian.PutUint32(tmp[:], in.Prevout.Index)
		buf.Write(tmp[:])
		buf.Write(WriteVarInt(uint64(len(in.ScriptSig))))
		buf.Write(in.ScriptSig)
		binary.LittleEndian.PutUint32(tmp[:], in.Sequence)
		buf.Write(tmp[:])
	}

	buf.Write(WriteVarInt(uint64(len(tx.Outputs))))
	for _, out := range tx.Outputs {
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], out.Value)
		buf.Write(v[:])
		buf.Write(WriteVarInt(uint64(len(out.ScriptPubkey))))
		buf.Write(out.ScriptPubkey)
	}

	binary.LittleEndian.PutUint32(tmp[:], tx.LockTime)
	buf.Write(tmp[:])

	return buf.Bytes()
}

// CalculateTxID computes the double-SHA256 of the canonical serialization.
// It is a pure function of tx (property 1 of the index spec): serializing
// and deserializing a transaction and recomputing the id must yield the
// same hash.
func CalculateTxID(tx *Transaction) [32]byte {
	return DoubleSHA256(tx.Serialize())
}

// Size returns the varint-accurate serialized transaction size. Unlike a
// naive implementation that charges a flat 1 byte for every length prefix,
// this accounts for the actual varint width at each length field —
// required so that a script_sig or script_pubkey crossing a varint size
// boundary (253, 65536, 2^32 bytes) doesn't under-report size.
func (tx *Transaction) Size() uint32 {
	return uint32(tx.serializedSize())
}

// Weight returns the witness-collapsed weight approximation: size * 4.
func (tx *Transaction) Weight() uint32 {
	return tx.Size() * 4
}

func (tx *Transaction) serializedSize() int {
	size := 4 // version
	size += VarIntLen(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		size += 32 + 4 // prevout hash + index
		size += VarIntLen(uint64(len(in.ScriptSig)))
		size += len(in.ScriptSig)
		size += 4 // sequence
	}
	size += VarIntLen(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		size += 8 // value
		size += VarIntLen(uint64(len(out.ScriptPubkey)))
		size += len(out.ScriptPubkey)
	}
	size += 4 // lock time
	return size
}

// Serialize encodes the 80-byte block header.
func (h *BlockHeader) Serialize() []byte {
	buf := make([]byte, 80)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlockHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Hash computes the double-SHA256 block header hash.
func (h *BlockHeader) Hash() [32]byte {
	return DoubleSHA256(h.Serialize())
}
