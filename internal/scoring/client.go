// Package scoring is the client for the external CVS scoring service.
//
// The service exposes POST /compute_cvs. The request body is the full node
// JSON and the response is {"cvs": <0..1>, "status": "green|yellow|red"}.
// Every request runs under its own timeout and failures wrap
// domain.ErrScoringUnavailable so callers can fall back to the last score.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cvswatch/internal/domain"
)

// ComputePath is the scoring endpoint relative to the service base URL
const ComputePath = "/compute_cvs"

// Scorer computes a score for one node
type Scorer interface {
	Score(ctx context.Context, node domain.Node) (domain.Score, error)
}

// Client calls the scoring service over HTTP
type Client struct {
	endpoint string
	timeout  time.Duration
	h        *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.h = h }
}

// NewClient creates a client for the service at baseURL. A baseURL that
// already ends in /compute_cvs is used as is.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, ComputePath) {
		endpoint += ComputePath
	}

	c := &Client{
		endpoint: endpoint,
		timeout:  timeout,
		h:        &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the full scoring URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Score requests a score for node. The returned error wraps
// domain.ErrScoringUnavailable on transport failure, timeout, non-200
// status or an invalid response body.
func (c *Client) Score(ctx context.Context, node domain.Node) (domain.Score, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(node)
	if err != nil {
		return domain.Score{}, fmt.Errorf("%w: encode node %s: %v", domain.ErrScoringUnavailable, node.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Score{}, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.h.Do(req)
	if err != nil {
		return domain.Score{}, fmt.Errorf("%w: node %s: %v", domain.ErrScoringUnavailable, node.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Score{}, fmt.Errorf("%w: node %s: status %d: %s",
			domain.ErrScoringUnavailable, node.ID, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Score{}, fmt.Errorf("%w: node %s: decode response: %v", domain.ErrScoringUnavailable, node.ID, err)
	}

	score, err := payload.validate()
	if err != nil {
		return domain.Score{}, fmt.Errorf("%w: node %s: %v", domain.ErrScoringUnavailable, node.ID, err)
	}
	return score, nil
}

type response struct {
	CVS    *float64 `json:"cvs"`
	Status string   `json:"status"`
}

func (r response) validate() (domain.Score, error) {
	if r.CVS == nil {
		return domain.Score{}, fmt.Errorf("response missing cvs")
	}
	if *r.CVS < 0 || *r.CVS > 1 {
		return domain.Score{}, fmt.Errorf("cvs %v out of range [0,1]", *r.CVS)
	}
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.Score{}, err
	}
	return domain.Score{Value: *r.CVS, Status: status}, nil
}
