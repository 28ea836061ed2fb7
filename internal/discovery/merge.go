package discovery

import (
	"fmt"
	"time"

	"cvswatch/internal/domain"
)

// Policy decides what happens to a device node whose sensor is no longer connected
type Policy string

const (
	// PolicyRemove drops the device node
	PolicyRemove Policy = "remove"
	// PolicyKeep leaves the last synthesized node in place
	PolicyKeep Policy = "keep"
)

// ParsePolicy converts a config string to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyRemove, PolicyKeep:
		return Policy(s), nil
	case "":
		return PolicyRemove, nil
	default:
		return "", fmt.Errorf("unknown disconnect policy %q", s)
	}
}

// MergeStats counts what a merge changed
type MergeStats struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Shadowed  int `json:"shadowed"` // sensor ids held by configured nodes
}

// Changed reports whether the merge altered the node set
func (s MergeStats) Changed() bool {
	return s.Added+s.Updated+s.Removed > 0
}

// Merge folds a gateway report into a working node set and returns the new set.
// The input slice is not modified.
//
// For each known sensor class, a connected reading is synthesized into a
// device node and replaces the node with the same id, or is appended. When the
// readings did not change the existing node is kept as is. When they did,
// the previous score, status and scoring time carry over until the next score
// arrives, and LastUpdate is set to now. A disconnected or absent class
// removes its device node under PolicyRemove. Configured nodes are never
// touched, even when their id matches a sensor id.
func Merge(working []domain.Node, report *domain.GatewayReport, sensors []domain.SensorClass, policy Policy, now time.Time) ([]domain.Node, MergeStats) {
	out := domain.CloneNodes(working)
	var stats MergeStats

	for _, class := range sensors {
		i := domain.IndexByID(out, class.NodeID)
		if i >= 0 && !out[i].IsDevice() {
			stats.Shadowed++
			continue
		}

		reading, ok := report.Reading(class.Class)
		if !ok || !reading.Connected {
			if i >= 0 && policy == PolicyRemove {
				out = append(out[:i], out[i+1:]...)
				stats.Removed++
			}
			continue
		}

		node := class.Synthesize(reading.Value)
		stamp := now
		switch {
		case i < 0:
			node.LastUpdate = &stamp
			out = append(out, node)
			stats.Added++
		case out[i].SameReadings(node):
			stats.Unchanged++
		default:
			prev := out[i]
			node.Score = prev.Score
			node.Status = prev.Status
			node.ScoredAt = prev.ScoredAt
			node.LastUpdate = &stamp
			out[i] = node
			stats.Updated++
		}
	}

	return out, stats
}
