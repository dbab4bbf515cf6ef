// Package client is a small SDK over the tariffd HTTP API, shared by the
// operator CLI and the MCP adapter.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tariffwise/tariffwise/pkg/api"
	"github.com/tariffwise/tariffwise/pkg/recommend"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// DefaultEndpoint is the daemon's default listen address.
const DefaultEndpoint = "http://127.0.0.1:8085"

// Client talks to a running tariffd.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  *ExponentialBackoff
	retries  int
}

// NewClient creates a client. endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		backoff:  DefaultBackoff(),
		retries:  3,
	}
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.get(ctx, "/v1/health", nil, &out)
	return out, err
}

// Recommend asks for a recommendation from a raw feature vector.
func (c *Client) Recommend(ctx context.Context, req api.RecommendRequest) (recommend.Prediction, error) {
	var out recommend.Prediction
	err := c.post(ctx, "/v1/recommend", req, &out)
	return out, err
}

// RecommendCustomer asks for a recommendation from a customer's stored usage.
func (c *Client) RecommendCustomer(ctx context.Context, customerID int64) (recommend.Prediction, error) {
	var out recommend.Prediction
	err := c.get(ctx, "/v1/recommend/"+strconv.FormatInt(customerID, 10), nil, &out)
	return out, err
}

// IngestEvents appends a batch of usage events.
func (c *Client) IngestEvents(ctx context.Context, events []usage.Event) (int, error) {
	var out api.IngestResponse
	if err := c.post(ctx, "/v1/events", api.IngestRequest{Events: events}, &out); err != nil {
		return 0, err
	}
	return out.Accepted, nil
}

// Customers lists customers active in the aggregation window.
func (c *Client) Customers(ctx context.Context, limit int) (api.CustomersResponse, error) {
	var out api.CustomersResponse
	err := c.get(ctx, "/v1/customers", url.Values{"limit": {strconv.Itoa(limit)}}, &out)
	return out, err
}

// TopSavings reports customers with positive estimated savings.
func (c *Client) TopSavings(ctx context.Context, limit int, region string) (api.OpportunitiesResponse, error) {
	return c.opportunities(ctx, "/v1/top_savings", limit, region)
}

// TopUpsell reports customers whose best plan costs more than they pay.
func (c *Client) TopUpsell(ctx context.Context, limit int, region string) (api.OpportunitiesResponse, error) {
	return c.opportunities(ctx, "/v1/top_upsell", limit, region)
}

func (c *Client) opportunities(ctx context.Context, path string, limit int, region string) (api.OpportunitiesResponse, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if region != "" {
		query.Set("region", region)
	}
	var out api.OpportunitiesResponse
	err := c.get(ctx, path, query, &out)
	return out, err
}

// SummaryStats fetches the aggregate spend report.
func (c *Client) SummaryStats(ctx context.Context, region string) (api.SummaryStatsResponse, error) {
	query := url.Values{}
	if region != "" {
		query.Set("region", region)
	}
	var out api.SummaryStatsResponse
	err := c.get(ctx, "/v1/summary_stats", query, &out)
	return out, err
}

// Models lists published model versions.
func (c *Client) Models(ctx context.Context) (api.ModelsResponse, error) {
	var out api.ModelsResponse
	err := c.get(ctx, "/v1/models", nil, &out)
	return out, err
}

// Train triggers an on-demand training run.
func (c *Client) Train(ctx context.Context) (api.TrainResponse, error) {
	var out api.TrainResponse
	err := c.post(ctx, "/v1/train", nil, &out)
	return out, err
}

// get issues an idempotent GET, retrying transient failures with backoff.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff.Next(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("daemon returned %d", resp.StatusCode)
			continue
		}
		return decodeResponse(resp, out)
	}
	return fmt.Errorf("request failed after %d attempts: %w", c.retries+1, lastErr)
}

// post issues a non-idempotent POST exactly once.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
