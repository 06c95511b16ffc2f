package solana

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

// Default configuration values.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 50 * time.Millisecond
	DefaultMaxDelay    = 500 * time.Millisecond
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
// Transport errors, 429 and non-200 responses are retried with backoff; RPC errors are not.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	headers     map[string]string
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithHeader adds a header sent with every request (e.g. provider auth).
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

var _ RPCClient = (*HTTPClient)(nil)

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context, commitment Commitment) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", commitmentParams(commitment), &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetBlockHeight retrieves the current block height.
func (c *HTTPClient) GetBlockHeight(ctx context.Context, commitment Commitment) (int64, error) {
	var result int64
	if err := c.call(ctx, "getBlockHeight", commitmentParams(commitment), &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetLatestBlockhash retrieves the latest blockhash together with the context slot.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error) {
	var result getLatestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", commitmentParams(commitment), &result); err != nil {
		return nil, err
	}
	if result.Value.Blockhash == "" {
		return nil, fmt.Errorf("getLatestBlockhash: empty blockhash")
	}
	return &LatestBlockhash{
		Slot:                 result.Context.Slot,
		Blockhash:            result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}, nil
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

type getLatestBlockhashResult struct {
	Context rpcContext `json:"context"`
	Value   struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight int64  `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// SendTransaction broadcasts a base64-encoded signed transaction.
func (c *HTTPClient) SendTransaction(ctx context.Context, encoded string, opts SendOptions) (string, error) {
	config := map[string]interface{}{
		"encoding":      "base64",
		"skipPreflight": opts.SkipPreflight,
	}
	if opts.PreflightCommitment != "" {
		config["preflightCommitment"] = opts.PreflightCommitment
	}
	if opts.MaxRetries != nil {
		config["maxRetries"] = *opts.MaxRetries
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", []interface{}{encoded, config}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// GetSignatureStatuses retrieves statuses for up to 256 signatures.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": false},
	}

	var result getSignatureStatusesResult
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(result.Value))
	for i, v := range result.Value {
		if v == nil {
			continue
		}
		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			Err:                v.Err,
			ConfirmationStatus: Commitment(v.ConfirmationStatus),
		}
	}
	return statuses, nil
}

type getSignatureStatusesResult struct {
	Context rpcContext             `json:"context"`
	Value   []*signatureStatusItem `json:"value"`
}

type signatureStatusItem struct {
	Slot               int64       `json:"slot"`
	Confirmations      *int64      `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// GetRecentPrioritizationFees retrieves recent prioritization fees paid by transactions locking the accounts.
func (c *HTTPClient) GetRecentPrioritizationFees(ctx context.Context, accounts []string) ([]PrioritizationFee, error) {
	var params []interface{}
	if len(accounts) > 0 {
		params = []interface{}{accounts}
	}

	var result []PrioritizationFee
	if err := c.call(ctx, "getRecentPrioritizationFees", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func commitmentParams(commitment Commitment) []interface{} {
	if commitment == "" {
		return nil
	}
	return []interface{}{map[string]interface{}{"commitment": commitment}}
}
