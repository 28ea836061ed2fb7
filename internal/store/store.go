// Package store holds the canonical node list shared by every view.
//
// The store keeps exactly one immutable domain.Snapshot at a time. Writers
// replace it wholesale; readers get the pointer and never observe a partially
// applied update. Subscribers receive the latest snapshot on a buffered
// channel of size one, so a slow view skips intermediate versions instead of
// blocking the writer.
package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cvswatch/internal/domain"
)

// Store is the single source of truth for node state
type Store struct {
	current atomic.Pointer[domain.Snapshot]

	mu        sync.Mutex // serializes writers and guards subs
	subs      map[int]chan *domain.Snapshot
	nextSubID int
	floor     uint64 // last version committed by a previous run
	now       func() time.Time
}

// New creates a store seeded with version 0
func New(seed []domain.Node) (*Store, error) {
	if err := domain.CheckUnique(seed); err != nil {
		return nil, fmt.Errorf("seed nodes: %w", err)
	}

	s := &Store{
		subs: make(map[int]chan *domain.Snapshot),
		now:  time.Now,
	}
	s.current.Store(&domain.Snapshot{
		Version: 0,
		Nodes:   domain.CloneNodes(seed),
	})
	return s, nil
}

// Snapshot returns the current snapshot. Callers must treat it as read-only.
func (s *Store) Snapshot() *domain.Snapshot {
	return s.current.Load()
}

// Version returns the current snapshot version
func (s *Store) Version() uint64 {
	return s.current.Load().Version
}

// Ready reports whether any sync tick has committed yet
func (s *Store) Ready() bool {
	return s.current.Load().Committed()
}

// ReplaceAll atomically swaps the node list and device readings
func (s *Store) ReplaceAll(nodes []domain.Node, devices []domain.DeviceReading) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceLocked(nodes, devices)
}

// CompareAndReplace swaps the snapshot only if the current version is still
// version. It returns ErrStaleSnapshot when another writer got there first.
func (s *Store) CompareAndReplace(version uint64, nodes []domain.Node, devices []domain.DeviceReading) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load().Version; cur != version {
		return nil, fmt.Errorf("%w: based on version %d, current is %d", domain.ErrStaleSnapshot, version, cur)
	}
	return s.replaceLocked(nodes, devices)
}

// Restore overlays previously persisted scoring results onto the seed
// snapshot without committing a new version. It is a no-op once a tick has
// committed.
func (s *Store) Restore(scored []domain.Node) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur.Committed() {
		return 0
	}

	nodes := domain.CloneNodes(cur.Nodes)
	restored := 0
	for _, prev := range scored {
		i := domain.IndexByID(nodes, prev.ID)
		if i < 0 || !prev.Scored() || !nodes[i].SameReadings(prev) {
			continue
		}
		nodes[i].Score = prev.Score
		nodes[i].Status = prev.Status
		nodes[i].ScoredAt = prev.ScoredAt
		restored++
	}

	if restored > 0 {
		s.current.Store(&domain.Snapshot{
			Version: cur.Version,
			Nodes:   nodes,
			Devices: cur.Devices,
		})
	}
	return restored
}

// ResumeAfter makes the next commit use a version above version, so versions
// keep increasing across restarts against the same database. The seed
// snapshot stays uncommitted. It is a no-op once a tick has committed.
func (s *Store) ResumeAfter(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load().Committed() || version <= s.floor {
		return false
	}
	s.floor = version
	return true
}

// Subscribe returns a channel that always yields the most recent snapshot
// and a cancel function that closes it
func (s *Store) Subscribe() (<-chan *domain.Snapshot, func()) {
	ch := make(chan *domain.Snapshot, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) replaceLocked(nodes []domain.Node, devices []domain.DeviceReading) (*domain.Snapshot, error) {
	if err := domain.CheckUnique(nodes); err != nil {
		return nil, err
	}

	next := s.current.Load().Version
	if next < s.floor {
		next = s.floor
	}
	snap := &domain.Snapshot{
		Version:     next + 1,
		Nodes:       domain.CloneNodes(nodes),
		Devices:     append([]domain.DeviceReading(nil), devices...),
		CommittedAt: s.now(),
	}
	s.current.Store(snap)

	for _, ch := range s.subs {
		notify(ch, snap)
	}
	return snap, nil
}

// notify delivers snap, replacing any undelivered older snapshot
func notify(ch chan *domain.Snapshot, snap *domain.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
