// Package qubic is a read-only client for the Qubic RPC API and a wallet
// analyzer built on it.
package qubic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Qubic RPC endpoint.
const DefaultBaseURL = "https://rpc.qubic.org"

// AddressLength is the length of a Qubic identity.
const AddressLength = 60

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// ValidateAddress checks the identity format without any I/O.
func ValidateAddress(addr string) error {
	if len(addr) != AddressLength {
		return ErrInvalidAddress
	}
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return ErrInvalidAddress
		}
	}
	return nil
}

// Client is the REST client for the Qubic RPC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Balance returns the account state of addr.
func (c *Client) Balance(ctx context.Context, addr string) (Balance, error) {
	if err := ValidateAddress(addr); err != nil {
		return Balance{}, err
	}
	var resp balanceResponse
	if err := c.getJSON(ctx, "/v1/balances/"+url.PathEscape(addr), &resp); err != nil {
		return Balance{}, fmt.Errorf("qubic: balance %s: %w", addr, err)
	}
	return resp.Balance, nil
}

// LatestTick returns the network's current tick.
func (c *Client) LatestTick(ctx context.Context) (int64, error) {
	var resp latestTickResponse
	if err := c.getJSON(ctx, "/v1/latestTick", &resp); err != nil {
		return 0, fmt.Errorf("qubic: latest tick: %w", err)
	}
	return resp.LatestTick, nil
}

// OwnedAssets returns the assets owned by addr.
func (c *Client) OwnedAssets(ctx context.Context, addr string) ([]Asset, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}
	var resp ownedAssetsResponse
	if err := c.getJSON(ctx, assetsPath(addr, "owned"), &resp); err != nil {
		return nil, fmt.Errorf("qubic: owned assets %s: %w", addr, err)
	}
	out := make([]Asset, 0, len(resp.OwnedAssets))
	for _, w := range resp.OwnedAssets {
		out = append(out, w.toAsset())
	}
	return out, nil
}

// PossessedAssets returns the assets possessed by addr.
func (c *Client) PossessedAssets(ctx context.Context, addr string) ([]Asset, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}
	var resp possessedAssetsResponse
	if err := c.getJSON(ctx, assetsPath(addr, "possessed"), &resp); err != nil {
		return nil, fmt.Errorf("qubic: possessed assets %s: %w", addr, err)
	}
	out := make([]Asset, 0, len(resp.PossessedAssets))
	for _, w := range resp.PossessedAssets {
		out = append(out, w.toAsset())
	}
	return out, nil
}

// IssuedAssets returns the assets issued by addr.
func (c *Client) IssuedAssets(ctx context.Context, addr string) ([]Asset, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}
	var resp issuedAssetsResponse
	if err := c.getJSON(ctx, assetsPath(addr, "issued"), &resp); err != nil {
		return nil, fmt.Errorf("qubic: issued assets %s: %w", addr, err)
	}
	out := make([]Asset, 0, len(resp.IssuedAssets))
	for _, w := range resp.IssuedAssets {
		out = append(out, w.toAsset())
	}
	return out, nil
}

func assetsPath(addr, kind string) string {
	return "/v1/assets/" + url.PathEscape(addr) + "/" + kind
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// getJSON sends a GET request and decodes a 2xx JSON body into dst.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return classifyTransport(c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(c.baseURL, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
