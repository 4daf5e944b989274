package rpc

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is a minimal JSON-RPC client for the listing service.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Uint64
	nowFn    func() time.Time
}

// NewClient builds a client for endpoint. A nil httpClient uses a client with
// a 30 second timeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: strings.TrimRight(endpoint, "/") + "/rpc", http: httpClient, nowFn: time.Now}
}

// Call invokes a read-only method. params may be nil.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	var list []json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("rpc: encode params: %w", err)
		}
		list = append(list, raw)
	}
	return c.do(ctx, method, list, out)
}

// Submit signs payload with key and invokes a mutating method. A payload given
// as a map without a deadline gets one a minute ahead of now.
func (c *Client) Submit(ctx context.Context, key *ecdsa.PrivateKey, method string, payload interface{}, out interface{}) error {
	if m, ok := payload.(map[string]interface{}); ok {
		if _, set := m["deadline"]; !set {
			m["deadline"] = c.nowFn().Add(time.Minute).Unix()
		}
	}
	env, err := SignRequest(key, method, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("rpc: encode envelope: %w", err)
	}
	return c.do(ctx, method, []json.RawMessage{raw}, out)
}

func (c *Client) do(ctx context.Context, method string, params []json.RawMessage, out interface{}) error {
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: params, ID: c.nextID.Add(1)})
	if err != nil {
		return fmt.Errorf("rpc: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes*8))
	if err != nil {
		return err
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("rpc: decode response (status %d): %w", resp.StatusCode, err)
	}
	if envelope.Error != nil {
		envelope.Error.status = resp.StatusCode
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// ErrorCode extracts the JSON-RPC code from err, or zero when err is not an
// RPC error.
func ErrorCode(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}
