package domain

import (
	"fmt"
	"time"
)

// NodeKind tags where a node came from
type NodeKind string

const (
	NodeKindConfigured NodeKind = "configured" // Seeded from static configuration
	NodeKindDevice     NodeKind = "device"     // Synthesized from a connected physical sensor
)

// Status is the risk band derived from a CVS value by the scoring service
type Status string

const (
	StatusUnknown Status = "" // Not scored yet
	StatusGreen   Status = "green"
	StatusYellow  Status = "yellow"
	StatusRed     Status = "red"
)

// ParseStatus converts a wire string to a Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusGreen, StatusYellow, StatusRed:
		return Status(s), nil
	default:
		return StatusUnknown, fmt.Errorf("unknown status %q", s)
	}
}

// Valid reports whether s is one of the scored bands
func (s Status) Valid() bool {
	return s == StatusGreen || s == StatusYellow || s == StatusRed
}

// Coordinates is a (longitude, latitude) pair
type Coordinates [2]float64

// NewCoordinates builds a coordinate pair
func NewCoordinates(lon, lat float64) Coordinates {
	return Coordinates{lon, lat}
}

// Lon returns the longitude
func (c Coordinates) Lon() float64 { return c[0] }

// Lat returns the latitude
func (c Coordinates) Lat() float64 { return c[1] }

// Valid reports whether the pair is a plausible WGS84 position
func (c Coordinates) Valid() bool {
	return c[0] >= -180 && c[0] <= 180 && c[1] >= -90 && c[1] <= 90
}

// Node is a monitored location or physical sensor
type Node struct {
	ID          string      `json:"id" yaml:"id"`
	Kind        NodeKind    `json:"kind" yaml:"kind,omitempty"`
	Name        string      `json:"name" yaml:"name"`
	Coordinates Coordinates `json:"coords" yaml:"coords"`

	Features `yaml:",inline"`

	// Scoring fields, only ever written from a scoring response
	Score    *float64   `json:"cvs,omitempty" yaml:"-"`
	Status   Status     `json:"status,omitempty" yaml:"-"`
	ScoredAt *time.Time `json:"scored_at,omitempty" yaml:"-"`

	LastUpdate *time.Time `json:"last_update,omitempty" yaml:"-"`
}

// NewConfiguredNode creates a node seeded from configuration
func NewConfiguredNode(id, name string, coords Coordinates, features Features) Node {
	return Node{
		ID:          id,
		Kind:        NodeKindConfigured,
		Name:        name,
		Coordinates: coords,
		Features:    features,
	}
}

// IsDevice reports whether the node was synthesized by device discovery
func (n Node) IsDevice() bool {
	return n.Kind == NodeKindDevice
}

// Scored reports whether the node carries a score
func (n Node) Scored() bool {
	return n.Score != nil
}

// ScoreValue returns the score, or 0 when unscored
func (n Node) ScoreValue() float64 {
	if n.Score == nil {
		return 0
	}
	return *n.Score
}

// WithScore returns a copy of n carrying the given scoring result
func (n Node) WithScore(s Score, at time.Time) Node {
	value := s.Value
	n.Score = &value
	n.Status = s.Status
	n.ScoredAt = &at
	return n
}

// SameReadings reports whether two nodes have identical identity, placement and features.
// Scoring fields and timestamps are ignored.
func (n Node) SameReadings(other Node) bool {
	return n.ID == other.ID &&
		n.Kind == other.Kind &&
		n.Name == other.Name &&
		n.Coordinates == other.Coordinates &&
		n.Features == other.Features
}

// Equal reports whether two nodes are observably identical
func (n Node) Equal(other Node) bool {
	return n.SameReadings(other) &&
		floatPtrEqual(n.Score, other.Score) &&
		n.Status == other.Status &&
		timePtrEqual(n.ScoredAt, other.ScoredAt) &&
		timePtrEqual(n.LastUpdate, other.LastUpdate)
}

// Freshest returns the most recent of LastUpdate and ScoredAt, or nil
func (n Node) Freshest() *time.Time {
	switch {
	case n.LastUpdate == nil:
		return n.ScoredAt
	case n.ScoredAt == nil:
		return n.LastUpdate
	case n.ScoredAt.After(*n.LastUpdate):
		return n.ScoredAt
	default:
		return n.LastUpdate
	}
}

// Validate checks the fields every node must carry
func (n Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if n.Name == "" {
		return fmt.Errorf("node %s: name is required", n.ID)
	}
	if n.Kind != NodeKindConfigured && n.Kind != NodeKindDevice {
		return fmt.Errorf("node %s: invalid kind %q", n.ID, n.Kind)
	}
	if !n.Coordinates.Valid() {
		return fmt.Errorf("node %s: coordinates out of range: %v", n.ID, n.Coordinates)
	}
	return nil
}

// Score is a scoring service result for one node
type Score struct {
	Value  float64 `json:"cvs"`
	Status Status  `json:"status"`
}

// CloneNodes returns a copy of nodes that shares no slice backing array
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	copy(out, nodes)
	return out
}

// IndexByID returns the position of the node with the given id, or -1
func IndexByID(nodes []Node, id string) int {
	for i := range nodes {
		if nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// CheckUnique returns ErrDuplicateID if two nodes share an id
func CheckUnique(nodes []Node) error {
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
