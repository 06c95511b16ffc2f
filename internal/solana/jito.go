package solana

import (
	"context"
	"fmt"
	"strings"
)

// DefaultJitoTipAccount is one of the block engine's published tip accounts.
const DefaultJitoTipAccount = "Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"

// JitoClient talks to a Jito block-engine JSON-RPC endpoint.
type JitoClient struct {
	rpc *HTTPClient
}

// NewJitoClient creates a block-engine client. baseURL may be the engine root
// (https://mainnet.block-engine.jito.wtf) or the full bundles path.
// Relay calls are not retried by default: a slow relay is handled by falling back to direct broadcast.
func NewJitoClient(baseURL string, opts ...ClientOption) *JitoClient {
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/api/v1/bundles") {
		endpoint += "/api/v1/bundles"
	}
	opts = append([]ClientOption{WithMaxRetries(0)}, opts...)
	return &JitoClient{rpc: NewHTTPClient(endpoint, opts...)}
}

// SendBundle submits base64-encoded signed transactions as one atomic bundle.
func (c *JitoClient) SendBundle(ctx context.Context, encoded []string) (string, error) {
	if len(encoded) == 0 || len(encoded) > 5 {
		return "", fmt.Errorf("bundle must hold 1-5 transactions, got %d", len(encoded))
	}

	params := []interface{}{
		encoded,
		map[string]string{"encoding": "base64"},
	}

	var bundleID string
	if err := c.rpc.call(ctx, "sendBundle", params, &bundleID); err != nil {
		return "", err
	}
	return bundleID, nil
}

// GetTipAccounts returns the tip accounts currently accepted by the block engine.
func (c *JitoClient) GetTipAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.rpc.call(ctx, "getTipAccounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}
