// Package facade implements the read-only query surface (§4.G) that a
// REST/JSON-RPC transport would forward into. It wraps *txindex.TxIndex's
// read methods and translates results into the typed response/error
// envelopes defined in §4.G/§9 ("dynamic typing of query results" — here
// replaced with concrete Go DTOs, grounded on the original
// ApiResponse/ApiError shape), instead of the untyped blobs the source
// returns.
//
// No net/http mux is wired up here; per §1, the REST surface itself is an
// external collaborator. This package is what that surface would call.
package facade

import (
	"strconv"
	"time"

	"github.com/btcindex/txstratum/internal/apperr"
	"github.com/btcindex/txstratum/internal/txindex"
	"github.com/btcindex/txstratum/pkg/bitcoin"
)

const apiVersion = "1.0"

// ResponseMeta carries envelope bookkeeping shared by success and error
// responses.
type ResponseMeta struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	RequestID string `json:"request_id,omitempty"`
}

func newMeta(requestID string) ResponseMeta {
	return ResponseMeta{
		Timestamp: strconv.FormatInt(time.Now().Unix(), 10),
		Version:   apiVersion,
		RequestID: requestID,
	}
}

// Response[T] is the success envelope returned by every façade operation.
type Response[T any] struct {
	Data  T                 `json:"data"`
	Meta  ResponseMeta      `json:"meta"`
	Links map[string]string `json:"links,omitempty"`
}

// ErrorDetails is the machine-readable body of an error envelope.
type ErrorDetails struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ErrorResponse is the error envelope returned when a façade operation
// fails, including when the requested transaction or metadata is not
// found.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

func newError(code apperr.Code, message string, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetails{Code: string(code), Message: message},
		Meta:  newMeta(requestID),
	}
}

// TransactionDTO is the wire shape of a transaction returned by the
// façade: the canonical transaction plus its derived metadata, the two
// always travel together over this boundary.
type TransactionDTO struct {
	TxID        string              `json:"txid"`
	Transaction bitcoin.Transaction `json:"transaction"`
	Metadata    *MetadataDTO        `json:"metadata,omitempty"`
}

// MetadataDTO is the wire shape of TxMetadata, with hashes rendered as
// display-order hex instead of raw byte arrays.
type MetadataDTO struct {
	BlockHash   string `json:"block_hash"`
	BlockHeight uint64 `json:"block_height"`
	TxIndex     uint32 `json:"tx_index"`
	Size        uint32 `json:"size"`
	Weight      uint32 `json:"weight"`
}

func metadataDTO(m *txindex.TxMetadata) *MetadataDTO {
	if m == nil {
		return nil
	}
	return &MetadataDTO{
		BlockHash:   bitcoin.HashToHex(m.BlockHash),
		BlockHeight: m.BlockHeight,
		TxIndex:     m.TxIndex,
		Size:        m.Size,
		Weight:      m.Weight,
	}
}

// Facade is the stateless read-only query surface over a *txindex.TxIndex.
// "Stateless" refers to request handling: it holds no session state of
// its own, only a reference to the shared, concurrently-read index.
type Facade struct {
	index *txindex.TxIndex
}

// New wraps idx in a query façade.
func New(idx *txindex.TxIndex) *Facade {
	return &Facade{index: idx}
}

// GetTransaction looks up a transaction by txid, wrapping it with its
// metadata. Returns a NotFound error envelope if absent.
func (f *Facade) GetTransaction(txHash [32]byte, requestID string) (*Response[TransactionDTO], *ErrorResponse) {
	tx, ok, err := f.index.GetTransaction(txHash)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	if !ok {
		return nil, newError(apperr.NotFound, "transaction not found", requestID)
	}
	meta, _, err := f.index.GetMetadata(txHash)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	return &Response[TransactionDTO]{
		Data: TransactionDTO{
			TxID:        bitcoin.HashToHex(txHash),
			Transaction: *tx,
			Metadata:    metadataDTO(meta),
		},
		Meta: newMeta(requestID),
	}, nil
}

// GetMetadata looks up a transaction's metadata without its body.
func (f *Facade) GetMetadata(txHash [32]byte, requestID string) (*Response[MetadataDTO], *ErrorResponse) {
	meta, ok, err := f.index.GetMetadata(txHash)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	if !ok {
		return nil, newError(apperr.NotFound, "metadata not found", requestID)
	}
	return &Response[MetadataDTO]{Data: *metadataDTO(meta), Meta: newMeta(requestID)}, nil
}

// GetBlockTransactions enumerates every transaction indexed for blockHash,
// in block order.
func (f *Facade) GetBlockTransactions(blockHash [32]byte, requestID string) (*Response[[]bitcoin.Transaction], *ErrorResponse) {
	txs, err := f.index.GetBlockTransactions(blockHash)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	return &Response[[]bitcoin.Transaction]{Data: txs, Meta: newMeta(requestID)}, nil
}

// GetTransactionsByAddress returns every transaction touching
// scriptPubkey. Returns an empty, non-error result if address indexing is
// disabled (§7: IndexDisabled coerces silently to empty).
func (f *Facade) GetTransactionsByAddress(scriptPubkey []byte, requestID string) (*Response[[]bitcoin.Transaction], *ErrorResponse) {
	txs, err := f.index.GetTransactionsByAddress(scriptPubkey)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	return &Response[[]bitcoin.Transaction]{Data: txs, Meta: newMeta(requestID)}, nil
}

// GetTransactionsByValueRange returns every transaction with at least one
// output whose value falls in [min, max].
func (f *Facade) GetTransactionsByValueRange(min, max uint64, requestID string) (*Response[[]bitcoin.Transaction], *ErrorResponse) {
	txs, err := f.index.GetTransactionsByValueRange(min, max)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	return &Response[[]bitcoin.Transaction]{Data: txs, Meta: newMeta(requestID)}, nil
}

// GetTransactionsByHeightRange resolves each height in [lo, hi] to a block
// hash via blockstore and enumerates its transactions. Missing heights or
// blocks are skipped without error (gap-tolerant, §4.C).
func (f *Facade) GetTransactionsByHeightRange(lo, hi uint64, blockstore txindex.BlockStore, requestID string) (*Response[[]bitcoin.Transaction], *ErrorResponse) {
	txs, err := f.index.GetTransactionsByHeightRange(lo, hi, blockstore)
	if err != nil {
		return nil, f.storageError(err, requestID)
	}
	return &Response[[]bitcoin.Transaction]{Data: txs, Meta: newMeta(requestID)}, nil
}

// storageError maps a propagated index error onto the façade's error
// envelope. apperr.NotFound/CorruptEntry become plain NotFound responses
// (§7: CorruptEntry is fatal for that key, not the process); anything
// else is a KvIoError.
func (f *Facade) storageError(err error, requestID string) *ErrorResponse {
	if apperr.Is(err, apperr.NotFound) || apperr.Is(err, apperr.CorruptEntry) {
		return newError(apperr.NotFound, err.Error(), requestID)
	}
	return newError(apperr.KvIoError, err.Error(), requestID)
}
