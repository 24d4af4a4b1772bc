// Package sparql is a minimal SPARQL 1.1 protocol client for the knowledge
// store: form-encoded query/update over HTTP with JSON result parsing.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redpencilio/virus-scanner-service/internal/resilience"
)

// Term is a single binding value in a SPARQL JSON result.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
}

// Binding maps a projected variable to its bound term.
type Binding map[string]Term

// QueryResult is the SPARQL JSON results envelope.
type QueryResult struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// Client talks to one SPARQL endpoint pair. It is stateless and safe for
// concurrent use.
type Client struct {
	queryEndpoint  string
	updateEndpoint string
	http           *http.Client
	attempts       int
	delay          time.Duration
}

func New(queryEndpoint, updateEndpoint string, timeout time.Duration, attempts int, delay time.Duration) *Client {
	return &Client{
		queryEndpoint:  queryEndpoint,
		updateEndpoint: updateEndpoint,
		http:           &http.Client{Timeout: timeout},
		attempts:       attempts,
		delay:          delay,
	}
}

// Query runs a SELECT/ASK query and parses the JSON results.
func (c *Client) Query(ctx context.Context, query string) (*QueryResult, error) {
	return resilience.Retry(ctx, c.attempts, c.delay, func() (*QueryResult, error) {
		body, err := c.post(ctx, c.queryEndpoint, url.Values{"query": {query}})
		if err != nil {
			return nil, err
		}
		var result QueryResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse sparql results: %w", err)
		}
		return &result, nil
	})
}

// Update runs a SPARQL update and returns the store's raw acknowledgment,
// which may be empty.
func (c *Client) Update(ctx context.Context, update string) ([]byte, error) {
	return resilience.Retry(ctx, c.attempts, c.delay, func() ([]byte, error) {
		return c.post(ctx, c.updateEndpoint, url.Values{"update": {update}})
	})
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql endpoint: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read sparql response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sparql endpoint returned %d: %s", resp.StatusCode, snippet(body))
	}
	return body, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
