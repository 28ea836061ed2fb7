// Package discovery turns device gateway readings into device nodes.
//
// A Gateway fetches the latest readings (HTTP polling or MQTT subscription).
// The Poller merges them into the working node set by id, synthesizing a
// device node for every connected sensor class.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cvswatch/internal/domain"
)

// Result is the outcome of one successful poll
type Result struct {
	Nodes   []domain.Node
	Devices []domain.DeviceReading
	Report  *domain.GatewayReport
	Stats   MergeStats
}

// Poller fetches gateway reports and merges them into a node set
type Poller struct {
	gateway Gateway
	sensors []domain.SensorClass
	policy  Policy
	now     func() time.Time
}

// NewPoller creates a poller for the given sensor classes
func NewPoller(gateway Gateway, sensors []domain.SensorClass, policy Policy) *Poller {
	return &Poller{
		gateway: gateway,
		sensors: append([]domain.SensorClass(nil), sensors...),
		policy:  policy,
		now:     time.Now,
	}
}

// Gateway returns the underlying transport
func (p *Poller) Gateway() Gateway {
	return p.gateway
}

// Sensors returns the configured sensor classes
func (p *Poller) Sensors() []domain.SensorClass {
	return p.sensors
}

// Poll fetches the current report and merges it into working. On gateway
// failure the returned Result carries working unchanged and the error wraps
// domain.ErrDiscoveryUnavailable.
func (p *Poller) Poll(ctx context.Context, working []domain.Node) (Result, error) {
	report, err := p.gateway.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrDiscoveryUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
		}
		return Result{Nodes: working}, fmt.Errorf("poll %s: %w", p.gateway.Name(), err)
	}

	nodes, stats := Merge(working, report, p.sensors, p.policy, p.now())
	return Result{
		Nodes:   nodes,
		Devices: domain.DeviceReadings(report, p.sensors),
		Report:  report,
		Stats:   stats,
	}, nil
}
