package domain

import (
	"math"
	"sort"
	"time"
)

// SensorReading is one sensor class entry of a gateway response
type SensorReading struct {
	Connected bool    `json:"connected"`
	Value     float64 `json:"value"`
}

// GatewayReport is the decoded device gateway payload, keyed by sensor class
type GatewayReport struct {
	Sensors   map[string]SensorReading `json:"sensors"`
	FetchedAt time.Time                `json:"fetched_at"`
}

// NewGatewayReport creates an empty report stamped with at
func NewGatewayReport(at time.Time) *GatewayReport {
	return &GatewayReport{
		Sensors:   make(map[string]SensorReading),
		FetchedAt: at,
	}
}

// Reading returns the entry for a class. Absent classes report ok=false.
func (r *GatewayReport) Reading(class string) (SensorReading, bool) {
	if r == nil || r.Sensors == nil {
		return SensorReading{}, false
	}
	reading, ok := r.Sensors[class]
	return reading, ok
}

// Connected reports whether a class is present and connected
func (r *GatewayReport) Connected(class string) bool {
	reading, ok := r.Reading(class)
	return ok && reading.Connected
}

// Classes returns the reported classes in sorted order
func (r *GatewayReport) Classes() []string {
	if r == nil {
		return nil
	}
	classes := make([]string, 0, len(r.Sensors))
	for class := range r.Sensors {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// SensorClass describes a known physical sensor and the node it becomes
type SensorClass struct {
	Class       string      `json:"class"`
	NodeID      string      `json:"node_id"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coords"`
	Attribute   Attribute   `json:"attribute"`
	Unit        string      `json:"unit"`
}

// Synthesize builds the device node for a reported value.
// Only the mapped attribute carries the value; every other attribute is zero.
func (c SensorClass) Synthesize(value float64) Node {
	return Node{
		ID:          c.NodeID,
		Kind:        NodeKindDevice,
		Name:        c.Name,
		Coordinates: c.Coordinates,
		Features:    OnlyAttribute(c.Attribute, value),
	}
}

// DeviceReading is what the device panel shows for one sensor class
type DeviceReading struct {
	Class     string  `json:"class"`
	NodeID    string  `json:"node_id"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Connected bool    `json:"connected"`
	Value     float64 `json:"value"`
	Percent   float64 `json:"percent"`
}

// DeviceReadings converts a report into panel rows, one per known class, in class order
func DeviceReadings(report *GatewayReport, classes []SensorClass) []DeviceReading {
	out := make([]DeviceReading, 0, len(classes))
	for _, c := range classes {
		reading, _ := report.Reading(c.Class)
		out = append(out, DeviceReading{
			Class:     c.Class,
			NodeID:    c.NodeID,
			Name:      c.Name,
			Unit:      c.Unit,
			Connected: reading.Connected,
			Value:     reading.Value,
			Percent:   math.Max(0, math.Min(reading.Value, 100)),
		})
	}
	return out
}
