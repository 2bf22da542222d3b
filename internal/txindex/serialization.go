package txindex

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"

	"github.com/btcindex/txstratum/pkg/bitcoin"
)

// Wire DTOs for everything persisted in a tree. Mirrors the teacher's
// p2p message shape (stable int keys via keyasint) rather than
// attaching wire tags directly to the domain types in pkg/bitcoin,
// which are shared by callers that have nothing to do with storage.

type txInputWire struct {
	PrevoutHash  [32]byte `cbor:"1,keyasint"`
	PrevoutIndex uint32   `cbor:"2,keyasint"`
	ScriptSig    []byte   `cbor:"3,keyasint"`
	Sequence     uint32   `cbor:"4,keyasint"`
}

type txOutputWire struct {
	Value        uint64 `cbor:"1,keyasint"`
	ScriptPubkey []byte `cbor:"2,keyasint"`
}

type txWire struct {
	Version  int32          `cbor:"1,keyasint"`
	Inputs   []txInputWire  `cbor:"2,keyasint"`
	Outputs  []txOutputWire `cbor:"3,keyasint"`
	LockTime uint32         `cbor:"4,keyasint"`
}

func toTxWire(tx *bitcoin.Transaction) txWire {
	w := txWire{
		Version:  tx.Version,
		Inputs:   make([]txInputWire, len(tx.Inputs)),
		Outputs:  make([]txOutputWire, len(tx.Outputs)),
		LockTime: tx.LockTime,
	}
	for i, in := range tx.Inputs {
		w.Inputs[i] = txInputWire{
			PrevoutHash:  in.Prevout.Hash,
			PrevoutIndex: in.Prevout.Index,
			ScriptSig:    in.ScriptSig,
			Sequence:     in.Sequence,
		}
	}
	for i, out := range tx.Outputs {
		w.Outputs[i] = txOutputWire{Value: out.Value, ScriptPubkey: out.ScriptPubkey}
	}
	return w
}

func fromTxWire(w txWire) *bitcoin.Transaction {
	tx := &bitcoin.Transaction{
		Version:  w.Version,
		Inputs:   make([]bitcoin.Input, len(w.Inputs)),
		Outputs:  make([]bitcoin.Output, len(w.Outputs)),
		LockTime: w.LockTime,
	}
	for i, in := range w.Inputs {
		tx.Inputs[i] = bitcoin.Input{
			Prevout:   bitcoin.OutPoint{Hash: in.PrevoutHash, Index: in.PrevoutIndex},
			ScriptSig: in.ScriptSig,
			Sequence:  in.Sequence,
		}
	}
	for i, out := range w.Outputs {
		tx.Outputs[i] = bitcoin.Output{Value: out.Value, ScriptPubkey: out.ScriptPubkey}
	}
	return tx
}

func encodeTransaction(tx *bitcoin.Transaction) ([]byte, error) {
	return cbor.Marshal(toTxWire(tx))
}

func decodeTransaction(data []byte) (*bitcoin.Transaction, error) {
	var w txWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromTxWire(w), nil
}

type metadataWire struct {
	TxHash      [32]byte `cbor:"1,keyasint"`
	BlockHash   [32]byte `cbor:"2,keyasint"`
	BlockHeight uint64   `cbor:"3,keyasint"`
	TxIndex     uint32   `cbor:"4,keyasint"`
	Size        uint32   `cbor:"5,keyasint"`
	Weight      uint32   `cbor:"6,keyasint"`
}

func encodeMetadata(m *TxMetadata) ([]byte, error) {
	return cbor.Marshal(metadataWire{
		TxHash:      m.TxHash,
		BlockHash:   m.BlockHash,
		BlockHeight: m.BlockHeight,
		TxIndex:     m.TxIndex,
		Size:        m.Size,
		Weight:      m.Weight,
	})
}

func decodeMetadata(data []byte) (*TxMetadata, error) {
	var w metadataWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &TxMetadata{
		TxHash:      w.TxHash,
		BlockHash:   w.BlockHash,
		BlockHeight: w.BlockHeight,
		TxIndex:     w.TxIndex,
		Size:        w.Size,
		Weight:      w.Weight,
	}, nil
}

func encodeHashList(hashes [][32]byte) ([]byte, error) {
	return cbor.Marshal(hashes)
}

func decodeHashList(data []byte) ([][32]byte, error) {
	var hashes [][32]byte
	if err := cbor.Unmarshal(data, &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

type outputRefWire struct {
	TxHash      [32]byte `cbor:"1,keyasint"`
	OutputIndex uint32   `cbor:"2,keyasint"`
}

func encodeOutputRefs(refs []outputRefWire) ([]byte, error) {
	return cbor.Marshal(refs)
}

func decodeOutputRefs(data []byte) ([]outputRefWire, error) {
	var refs []outputRefWire
	if err := cbor.Unmarshal(data, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

type valueEntryWire struct {
	TxHash      [32]byte `cbor:"1,keyasint"`
	OutputIndex uint32   `cbor:"2,keyasint"`
	Value       uint64   `cbor:"3,keyasint"`
}

func encodeValueEntries(entries []valueEntryWire) ([]byte, error) {
	return cbor.Marshal(entries)
}

func decodeValueEntries(data []byte) ([]valueEntryWire, error) {
	var entries []valueEntryWire
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
