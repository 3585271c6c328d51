// Package client provides a Go client for a deploycheck sandbox or any
// Ethereum JSON-RPC endpoint.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is a service handle: a JSON-RPC connection plus the sandbox's
// REST inspection API on the same base URL.
type Client struct {
	endpoint   string
	httpClient *http.Client

	rpc *rpc.Client
	eth *ethclient.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// Dial creates a client for endpoint. HTTP endpoints are connected lazily,
// so an unreachable service is reported by the first call, not by Dial.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", endpoint)
	}

	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	rc, err := rpc.DialOptions(ctx, c.endpoint, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.endpoint, err)
	}
	c.rpc = rc
	c.eth = ethclient.NewClient(rc)
	return c, nil
}

// Endpoint returns the base URL the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Deployment is a contract the sandbox factory has created.
type Deployment struct {
	Address      string `json:"address"`
	Factory      string `json:"factory"`
	Deployer     string `json:"deployer"`
	GuardedSalt  string `json:"guardedSalt"`
	InitCodeHash string `json:"initCodeHash"`
	TxHash       string `json:"txHash"`
	BlockNumber  uint64 `json:"blockNumber"`
	CreatedAt    string `json:"createdAt"`
}

// ListDeploymentsResponse is the response for listing sandbox deployments
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ListDeployments lists contracts created by the sandbox factory
func (c *Client) ListDeployments(ctx context.Context, limit int, cursor string) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/api/v1/deployments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeployment gets a sandbox deployment by address
func (c *Client) GetDeployment(ctx context.Context, address string) (*Deployment, error) {
	var resp Deployment
	if err := c.get(ctx, "/api/v1/deployments/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: resp.Status}
	}
	return &errResp.Error
}
