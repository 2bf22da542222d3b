// Package blocktemplate is the external block-template provider §2's data
// flow describes feeding the Stratum V2 pool core: it fetches templates
// from a bitcoind-compatible JSON-RPC node, the consensus engine this
// core assumes is correct and upstream (§1). It does not validate blocks
// or run consensus itself.
package blocktemplate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// BitcoinRPC defines the interface for communicating with bitcoind. It is
// trimmed to the one call this core's job dispatch actually needs
// (§2: "jobs are sourced from a block-template provider"); it does not
// submit mined blocks or query chain tip, both of which belong to the
// consensus/mining side §1 places out of scope.
type BitcoinRPC interface {
	GetBlockTemplate(ctx context.Context) (*BlockTemplate, error)
}

// RPCClient implements BitcoinRPC using JSON-RPC over HTTP.
type RPCClient struct {
	url      string
	user     string
	password string
	client   *http.Client
	idSeq    atomic.Int64
}

// NewRPCClient creates a new Bitcoin JSON-RPC client.
func NewRPCClient(url, user, password string) *RPCClient {
	return &RPCClient{
		url:      url,
		user:     user,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// call makes a JSON-RPC call and returns the raw result.
func (c *RPCClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := c.idSeq.Add(1)

	req := RPCRequest{
		JSONRPC: "1.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.user, c.password)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w (body: %s)", err, string(respBody))
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetBlockTemplate returns a new block template from bitcoind.
func (c *RPCClient) GetBlockTemplate(ctx context.Context) (*BlockTemplate, error) {
	// getblocktemplate requires a template request parameter
	templateReq := map[string]interface{}{
		"rules": []string{"segwit"},
	}

	result, err := c.call(ctx, "getblocktemplate", templateReq)
	if err != nil {
		return nil, fmt.Errorf("getblocktemplate: %w", err)
	}

	var tmpl BlockTemplate
	if err := json.Unmarshal(result, &tmpl); err != nil {
		return nil, fmt.Errorf("unmarshal block template: %w", err)
	}

	return &tmpl, nil
}
