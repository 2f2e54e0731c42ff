package node

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
)

// RPCClient is the subset of the Solana JSON-RPC surface the worker
// needs: reading the current slot and recent blockhash, scanning an
// oracle's queue accounts, and submitting/confirming fulfillment
// transactions. A real deployment talks to a validator's RPC port; tests
// substitute an in-memory fake satisfying the same interface.
type RPCClient interface {
	GetSlot(ctx context.Context) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (hash [32]byte, lastValidSlot uint64, err error)
	GetAccountInfo(ctx context.Context, addr [32]byte) ([]byte, error)
	GetProgramAccounts(ctx context.Context, programID [32]byte, filterSize int) (map[[32]byte][]byte, error)
	SendTransaction(ctx context.Context, raw []byte) (signature string, err error)
	GetSignatureStatus(ctx context.Context, signature string) (confirmed bool, err error)
}

// httpRPCClient is a minimal JSON-RPC 2.0 client over the standard
// library's net/http; no library in the reference corpus speaks the
// Solana RPC wire protocol, so this one component is hand-rolled
// against stdlib rather than borrowed (see DESIGN.md).
type httpRPCClient struct {
	endpoint string
	http     *http.Client
}

// NewHTTPRPCClient returns an RPCClient backed by the validator JSON-RPC
// endpoint at url.
func NewHTTPRPCClient(url string) RPCClient {
	return &httpRPCClient{endpoint: url, http: &http.Client{Timeout: 15 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *httpRPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s: %d %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func (c *httpRPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (c *httpRPCClient) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	var result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return [32]byte{}, 0, err
	}
	decoded, err := base58.Decode(result.Value.Blockhash)
	if err != nil || len(decoded) != 32 {
		return [32]byte{}, 0, fmt.Errorf("rpc getLatestBlockhash: malformed blockhash %q", result.Value.Blockhash)
	}
	var hash [32]byte
	copy(hash[:], decoded)
	return hash, result.Value.LastValidBlockHeight, nil
}

func (c *httpRPCClient) GetAccountInfo(ctx context.Context, addr [32]byte) ([]byte, error) {
	var result struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	params := []interface{}{base58.Encode(addr[:]), map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("rpc getAccountInfo: account %x not found", addr)
	}
	return decodeBase64Blob(result.Value.Data)
}

func (c *httpRPCClient) GetProgramAccounts(ctx context.Context, programID [32]byte, filterSize int) (map[[32]byte][]byte, error) {
	var result []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data []string `json:"data"`
		} `json:"account"`
	}
	params := []interface{}{
		base58.Encode(programID[:]),
		map[string]interface{}{
			"encoding": "base64",
			"filters":  []interface{}{map[string]interface{}{"dataSize": filterSize}},
		},
	}
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}
	out := make(map[[32]byte][]byte, len(result))
	for _, r := range result {
		decoded, err := base58.Decode(r.Pubkey)
		if err != nil || len(decoded) != 32 {
			continue
		}
		var addr [32]byte
		copy(addr[:], decoded)
		blob, err := decodeBase64Blob(r.Account.Data)
		if err != nil {
			continue
		}
		out[addr] = blob
	}
	return out, nil
}

func (c *httpRPCClient) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	var sig string
	params := []interface{}{base58.Encode(raw), map[string]string{"encoding": "base58"}}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (c *httpRPCClient) GetSignatureStatus(ctx context.Context, signature string) (bool, error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                interface{}
		} `json:"value"`
	}
	params := []interface{}{[]string{signature}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return false, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("transaction %s failed on-chain", signature)
	}
	return status.ConfirmationStatus == "processed" || status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
}

func decodeBase64Blob(data []string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty account data")
	}
	return base64.StdEncoding.DecodeString(data[0])
}
