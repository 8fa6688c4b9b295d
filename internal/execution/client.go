// Package execution implements the HTTP client for the external
// order-execution service. It is the only component that crosses the
// execution boundary: price lookup, order placement, stop-loss updates.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"asset-manager/config"
	"asset-manager/internal/executor"
)

// Client talks to the execution service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an execution-service client from configuration.
func NewClient(cfg config.ExecutionConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ackResponse struct {
	Ack bool `json:"ack"`
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// PlaceOrder submits a market order and returns the service's order id.
// An empty id in the response means the order was not accepted.
func (c *Client) PlaceOrder(ctx context.Context, req executor.OrderRequest) (string, error) {
	var resp orderResponse
	if err := c.post(ctx, "/api/v1/orders", req, &resp); err != nil {
		return "", fmt.Errorf("error placing order: %w", err)
	}
	return resp.OrderID, nil
}

// UpdateStopLoss moves the stop on an open position.
func (c *Client) UpdateStopLoss(ctx context.Context, symbol string, newStop float64, source, reason string) error {
	payload := map[string]interface{}{
		"symbol":    symbol,
		"stop_loss": newStop,
		"source":    source,
		"reason":    reason,
	}

	var resp ackResponse
	if err := c.post(ctx, "/api/v1/stop-loss", payload, &resp); err != nil {
		return fmt.Errorf("error updating stop loss: %w", err)
	}
	if !resp.Ack {
		return fmt.Errorf("stop loss update for %s not acknowledged", symbol)
	}
	return nil
}

// GetCurrentPrice fetches the latest price for a symbol.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	endpoint := fmt.Sprintf("%s/api/v1/price?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("error building price request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("execution service error: %s", string(body))
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	if pr.Price <= 0 {
		return 0, fmt.Errorf("execution service returned price %v for %s", pr.Price, symbol)
	}
	return pr.Price, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("execution service error: %s", string(body))
	}

	return json.Unmarshal(body, out)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
