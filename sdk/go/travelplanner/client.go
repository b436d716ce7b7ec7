// Package travelplanner provides a small Go client for the TravelPlanner
// REST API. It covers the synchronous search endpoint as well as the
// asynchronous job surface (submit, fetch, list, stats).
package travelplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the TravelPlanner REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// SearchRequest is the payload for both synchronous and asynchronous searches.
type SearchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// Flight mirrors a single flight offer returned by the API.
type Flight struct {
	Airline      string  `json:"airline"`
	FlightNumber string  `json:"flightNumber"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Price        float64 `json:"price"`
}

// Hotel mirrors a single hotel offer returned by the API.
type Hotel struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	PricePerNight float64 `json:"pricePerNight"`
}

// SearchResults is the combined payload of a completed search.
type SearchResults struct {
	Flights []Flight `json:"flights"`
	Hotels  []Hotel  `json:"hotels"`
}

// SearchJob describes an asynchronous search job and its lifecycle state.
type SearchJob struct {
	ID         string         `json:"id"`
	Query      string         `json:"query"`
	Mode       string         `json:"mode"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *SearchResults `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j SearchJob) Terminal() bool {
	return j.Status == "succeeded" || j.Status == "failed"
}

// JobStats aggregates job counts by status.
type JobStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListOptions narrows down the jobs returned by ListSearches.
type ListOptions struct {
	Limit     int
	Offset    int
	Statuses  []string
	HasResult *bool
	Order     string
	Query     string
}

// APIError represents server side validation or internal errors. RawOutput is
// populated when the pipeline failed to parse the model output and the server
// returned the raw text alongside the error.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	RawOutput  string `json:"raw_output,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("travelplanner api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the TravelPlanner API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Search runs the pipeline synchronously and returns the combined results.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResults, error) {
	var results SearchResults
	if err := c.post(ctx, "/api/v1/search", req, &results); err != nil {
		return SearchResults{}, err
	}
	return results, nil
}

// SubmitSearch enqueues an asynchronous search job.
func (c *Client) SubmitSearch(ctx context.Context, req SearchRequest) (SearchJob, error) {
	var submitted SearchJob
	if err := c.post(ctx, "/api/v1/searches", req, &submitted); err != nil {
		return SearchJob{}, err
	}
	return submitted, nil
}

// GetSearch fetches a single job by identifier.
func (c *Client) GetSearch(ctx context.Context, jobID string) (SearchJob, error) {
	var found SearchJob
	endpoint := "/api/v1/searches/" + url.PathEscape(jobID)
	if err := c.get(ctx, endpoint, nil, &found); err != nil {
		return SearchJob{}, err
	}
	return found, nil
}

// ListSearches returns jobs matching the given filters.
func (c *Client) ListSearches(ctx context.Context, opts ListOptions) ([]SearchJob, error) {
	var jobs []SearchJob
	if err := c.get(ctx, "/api/v1/searches", opts.values(), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SearchStats returns aggregate counts for jobs matching the given filters.
func (c *Client) SearchStats(ctx context.Context, opts ListOptions) (JobStats, error) {
	var stats JobStats
	if err := c.get(ctx, "/api/v1/searches/stats", opts.values(), &stats); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// WaitForSearch polls a job until it reaches a terminal state or the context
// is cancelled.
func (c *Client) WaitForSearch(ctx context.Context, jobID string, interval time.Duration) (SearchJob, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		found, err := c.GetSearch(ctx, jobID)
		if err != nil {
			return SearchJob{}, err
		}
		if found.Terminal() {
			return found, nil
		}

		select {
		case <-ctx.Done():
			return SearchJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o ListOptions) values() url.Values {
	values := url.Values{}
	if o.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", o.Limit))
	}
	if o.Offset > 0 {
		values.Set("offset", fmt.Sprintf("%d", o.Offset))
	}
	if len(o.Statuses) > 0 {
		values.Set("status", strings.Join(o.Statuses, ","))
	}
	if o.HasResult != nil {
		values.Set("has_result", fmt.Sprintf("%t", *o.HasResult))
	}
	if o.Order != "" {
		values.Set("order", o.Order)
	}
	if o.Query != "" {
		values.Set("q", o.Query)
	}
	return values
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		// Error bodies are either plain text or a JSON object with an
		// "error" field and optionally the raw model output.
		if len(data) > 0 && data[0] == '{' {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
