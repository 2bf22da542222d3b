package blocktemplate

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcindex/txstratum/pkg/bitcoin"
)

// BlockTemplate represents the response from getblocktemplate RPC.
type BlockTemplate struct {
	Version                  int32                 `json:"version"`
	PreviousBlockHash        string                `json:"previousblockhash"`
	Transactions             []TemplateTransaction `json:"transactions"`
	CoinbaseAux              *CoinbaseAux          `json:"coinbaseaux"`
	CoinbaseValue            int64                 `json:"coinbasevalue"`
	Target                   string                `json:"target"`
	MinTime                  int64                 `json:"mintime"`
	Mutable                  []string              `json:"mutable"`
	NonceRange               string                `json:"noncerange"`
	SigOpLimit               int                   `json:"sigoplimit"`
	SizeLimit                int                   `json:"sizelimit"`
	WeightLimit              int                   `json:"weightlimit"`
	CurTime                  int64                 `json:"curtime"`
	Bits                     string                `json:"bits"`
	Height                   int64                 `json:"height"`
	DefaultWitnessCommitment string                `json:"default_witness_commitment"`
}

// TemplateTransaction represents a transaction in a block template.
type TemplateTransaction struct {
	Data   string `json:"data"`
	TxID   string `json:"txid"`
	Hash   string `json:"hash"`
	Fee    int64  `json:"fee"`
	SigOps int    `json:"sigops"`
	Weight int    `json:"weight"`
}

// CoinbaseAux contains auxiliary data for the coinbase.
type CoinbaseAux struct {
	Flags string `json:"flags"`
}

// RPCRequest represents a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ToJobBlock builds the coarse *bitcoin.Block the Stratum V2 pool core
// dispatches as a job (§2: "jobs are sourced from a block-template
// provider"). Only the header fields the pool needs to build a
// NewMiningJob are populated; the template's transactions are not
// carried into the returned block, which has no Transactions.
func (t *BlockTemplate) ToJobBlock() (*bitcoin.Block, error) {
	prevHash, err := bitcoin.HexToHash(t.PreviousBlockHash)
	if err != nil {
		return nil, fmt.Errorf("parse previousblockhash: %w", err)
	}

	bitsBytes, err := hex.DecodeString(t.Bits)
	if err != nil || len(bitsBytes) != 4 {
		return nil, fmt.Errorf("parse bits %q", t.Bits)
	}
	bits := binary.BigEndian.Uint32(bitsBytes)

	return &bitcoin.Block{
		Header: bitcoin.BlockHeader{
			Version:       t.Version,
			PrevBlockHash: prevHash,
			Timestamp:     uint32(t.CurTime),
			Bits:          bits,
		},
	}, nil
}
