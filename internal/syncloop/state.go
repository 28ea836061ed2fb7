package syncloop

import (
	"encoding/json"
	"time"
)

// State is the phase a tick is in. The loop is Idle between ticks.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateScoring
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateScoring:
		return "scoring"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Outcome describes how a tick ended
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeDiscarded Outcome = "discarded" // loop stopped or tick cancelled before commit
	OutcomeStale     Outcome = "stale"     // another writer committed first
	OutcomeFailed    Outcome = "failed"    // store rejected the node set
)

// TickReport summarizes one tick
type TickReport struct {
	Seq             uint64        `json:"seq"`
	Trigger         string        `json:"trigger"` // initial, timer or manual
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	BaseVersion     uint64        `json:"base_version"`
	Version         uint64        `json:"version,omitempty"`
	Outcome         Outcome       `json:"outcome"`
	Nodes           int           `json:"nodes"`
	Scored          int           `json:"scored"`
	ScoringFailures int           `json:"scoring_failures"`
	DiscoveryError  string        `json:"discovery_error,omitempty"`
	DevicesAdded    int           `json:"devices_added"`
	DevicesUpdated  int           `json:"devices_updated"`
	DevicesRemoved  int           `json:"devices_removed"`
	Error           string        `json:"error,omitempty"`
}

// Status is a point-in-time view of the loop for status endpoints
type Status struct {
	State             State       `json:"state"`
	Running           bool        `json:"running"`
	Ready             bool        `json:"ready"`
	Version           uint64      `json:"version"`
	Interval          string      `json:"interval"`
	Ticks             uint64      `json:"ticks"`
	Dropped           uint64      `json:"dropped"`
	Committed         uint64      `json:"committed"`
	Discarded         uint64      `json:"discarded"`
	Stale             uint64      `json:"stale"`
	ScoringFailures   uint64      `json:"scoring_failures"`
	DiscoveryFailures uint64      `json:"discovery_failures"`
	LastTick          *TickReport `json:"last_tick,omitempty"`
}
