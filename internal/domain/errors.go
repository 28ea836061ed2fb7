package domain

import "errors"

var (
	// ErrScoringUnavailable marks a failed or timed out scoring request for one node
	ErrScoringUnavailable = errors.New("scoring unavailable")

	// ErrDiscoveryUnavailable marks an unreachable device gateway
	ErrDiscoveryUnavailable = errors.New("discovery unavailable")

	// ErrBackendNotReady marks a rendering backend that has not finished initializing
	ErrBackendNotReady = errors.New("rendering backend not ready")

	// ErrDuplicateID is returned when a node list contains the same id twice
	ErrDuplicateID = errors.New("duplicate node id")

	// ErrStaleSnapshot is returned when a commit is based on a superseded snapshot
	ErrStaleSnapshot = errors.New("stale snapshot")

	// ErrTickInFlight is returned when a tick is requested while another is running
	ErrTickInFlight = errors.New("sync tick already in flight")

	// ErrNodeNotFound is returned for lookups of unknown node ids
	ErrNodeNotFound = errors.New("node not found")
)
