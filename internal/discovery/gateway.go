package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cvswatch/internal/domain"
)

// Gateway is a source of device readings
type Gateway interface {
	// Name identifies the transport in logs and status output
	Name() string

	// Start prepares the transport (called once before the first Fetch)
	Start(ctx context.Context) error

	// Stop releases transport resources
	Stop() error

	// Fetch returns the current readings. Errors wrap domain.ErrDiscoveryUnavailable.
	Fetch(ctx context.Context) (*domain.GatewayReport, error)
}

// HTTPGateway polls the gateway's GET /data endpoint
type HTTPGateway struct {
	endpoint string
	h        *http.Client
	now      func() time.Time
}

// NewHTTPGateway creates a gateway client for baseURL. The timeout bounds
// each request.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/data") {
		endpoint += "/data"
	}
	return &HTTPGateway{
		endpoint: endpoint,
		h:        &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// Name implements Gateway
func (g *HTTPGateway) Name() string { return "http " + g.endpoint }

// Start implements Gateway
func (g *HTTPGateway) Start(ctx context.Context) error { return nil }

// Stop implements Gateway
func (g *HTTPGateway) Stop() error {
	g.h.CloseIdleConnections()
	return nil
}

// Fetch implements Gateway
func (g *HTTPGateway) Fetch(ctx context.Context) (*domain.GatewayReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s",
			domain.ErrDiscoveryUnavailable, g.endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	report, err := DecodeReport(resp.Body, g.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
	}
	return report, nil
}

// DecodeReport parses a gateway payload of the form
// {"<class>": {"connected": bool, "value": number}, ...}
func DecodeReport(r io.Reader, at time.Time) (*domain.GatewayReport, error) {
	var sensors map[string]domain.SensorReading
	if err := json.NewDecoder(r).Decode(&sensors); err != nil {
		return nil, fmt.Errorf("decode gateway payload: %w", err)
	}

	report := domain.NewGatewayReport(at)
	for class, reading := range sensors {
		report.Sensors[class] = reading
	}
	return report, nil
}
