package domain

import "time"

// Snapshot is one committed, immutable view of the node store.
// Version 0 is the seed snapshot built from configuration; every commit
// increments it. Holders must not modify Nodes or Devices.
type Snapshot struct {
	Version     uint64          `json:"version"`
	Nodes       []Node          `json:"nodes"`
	Devices     []DeviceReading `json:"devices"`
	CommittedAt time.Time       `json:"committed_at"`
}

// Committed reports whether at least one sync tick produced this snapshot
func (s *Snapshot) Committed() bool {
	return s != nil && s.Version > 0
}

// Node looks up a node by id
func (s *Snapshot) Node(id string) (Node, bool) {
	if s == nil {
		return Node{}, false
	}
	if i := IndexByID(s.Nodes, id); i >= 0 {
		return s.Nodes[i], true
	}
	return Node{}, false
}

// ScoredCount returns how many nodes carry a score
func (s *Snapshot) ScoredCount() int {
	if s == nil {
		return 0
	}
	count := 0
	for _, n := range s.Nodes {
		if n.Scored() {
			count++
		}
	}
	return count
}

// ScorePoint is one historical scoring result for a node
type ScorePoint struct {
	NodeID   string    `json:"node_id"`
	Version  uint64    `json:"version"`
	Value    float64   `json:"cvs"`
	Status   Status    `json:"status"`
	ScoredAt time.Time `json:"scored_at"`
}
