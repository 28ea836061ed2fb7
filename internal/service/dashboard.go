package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cvswatch/internal/domain"
	"cvswatch/internal/repository"
	"cvswatch/internal/syncloop"
	"cvswatch/internal/view"
)

// persistTimeout bounds one snapshot write
const persistTimeout = 5 * time.Second

// pruneEvery limits how often history pruning runs
const pruneEvery = time.Minute

// Syncer is the part of the sync loop the dashboard drives
type Syncer interface {
	Trigger(ctx context.Context) (syncloop.TickReport, error)
	Status() syncloop.Status
}

// NodeStore provides the latest committed snapshot
type NodeStore interface {
	Snapshot() *domain.Snapshot
	Restore(scored []domain.Node) int
	ResumeAfter(version uint64) bool
}

// Options tunes the dashboard service
type Options struct {
	OfflineAfter  time.Duration
	HistoryRetain time.Duration // zero keeps history forever
}

// DashboardService serves the Map, Analytics and Devices views from the
// node store and records committed snapshots
type DashboardService struct {
	store    NodeStore
	loop     Syncer
	repo     repository.Repository
	eventBus *EventBus
	opts     Options
	now      func() time.Time

	pruneMu   sync.Mutex
	lastPrune time.Time
}

// NewDashboardService creates a dashboard service. repo may be nil, in which
// case nothing is persisted and history is empty.
func NewDashboardService(st NodeStore, loop Syncer, repo repository.Repository, eventBus *EventBus, opts Options) *DashboardService {
	if opts.OfflineAfter <= 0 {
		opts.OfflineAfter = view.DefaultOfflineAfter
	}
	return &DashboardService{
		store:    st,
		loop:     loop,
		repo:     repo,
		eventBus: eventBus,
		opts:     opts,
		now:      time.Now,
	}
}

// Snapshot returns the latest committed snapshot
func (s *DashboardService) Snapshot() *domain.Snapshot {
	return s.store.Snapshot()
}

// ListNodes returns the nodes of the latest snapshot, optionally filtered by kind
func (s *DashboardService) ListNodes(kind string) ([]domain.Node, error) {
	nodes := s.store.Snapshot().Nodes
	if kind == "" {
		return nodes, nil
	}

	k := domain.NodeKind(kind)
	if k != domain.NodeKindConfigured && k != domain.NodeKindDevice {
		return nil, fmt.Errorf("invalid kind %q, must be %q or %q", kind, domain.NodeKindConfigured, domain.NodeKindDevice)
	}

	filtered := make([]domain.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == k {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// GetNode returns a node of the latest snapshot
func (s *DashboardService) GetNode(id string) (domain.Node, error) {
	node, ok := s.store.Snapshot().Node(id)
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return node, nil
}

// History returns the most recent score points for a node, oldest first.
// Nodes that are neither current nor recorded are not found.
func (s *DashboardService) History(ctx context.Context, id string, limit int) ([]domain.ScorePoint, error) {
	_, current := s.store.Snapshot().Node(id)

	points := []domain.ScorePoint{}
	if s.repo != nil {
		stored, err := s.repo.ScoreHistory(ctx, id, limit)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			points = stored
		}
	}

	if !current && len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return points, nil
}

// Map returns the GeoJSON map source for the latest snapshot
func (s *DashboardService) Map() view.Collection {
	return view.FeatureCollection(s.store.Snapshot().Nodes)
}

// Analytics summarizes the latest snapshot
func (s *DashboardService) Analytics() view.Summary {
	return view.Summarize(s.store.Snapshot(), s.now(), s.opts.OfflineAfter)
}

// Devices returns the device panel for the latest snapshot
func (s *DashboardService) Devices() view.Panel {
	return view.DevicePanel(s.store.Snapshot())
}

// Status returns the sync loop status
func (s *DashboardService) Status() syncloop.Status {
	return s.loop.Status()
}

// Sync runs a tick now. It returns domain.ErrTickInFlight when one is running.
func (s *DashboardService) Sync(ctx context.Context) (syncloop.TickReport, error) {
	s.eventBus.Publish(Event{Type: EventSyncTriggered})
	return s.loop.Trigger(ctx)
}

// Payload builds the event payload for a snapshot
func (s *DashboardService) Payload(snap *domain.Snapshot) SnapshotPayload {
	return SnapshotPayload{
		Version:     snap.Version,
		CommittedAt: snap.CommittedAt,
		Map:         view.FeatureCollection(snap.Nodes),
		Analytics:   view.Summarize(snap, s.now(), s.opts.OfflineAfter),
		Devices:     view.DevicePanel(snap),
	}
}

// PublishHook returns a commit hook that publishes each committed snapshot
// and its tick report on the event bus
func (s *DashboardService) PublishHook() syncloop.CommitHook {
	return func(ctx context.Context, snap *domain.Snapshot, report syncloop.TickReport) {
		s.eventBus.Publish(Event{Type: EventSnapshotCommitted, Payload: s.Payload(snap)})
		s.eventBus.Publish(Event{Type: EventTickCompleted, Payload: TickPayload{Report: report}})
	}
}

// PersistHook returns a commit hook that saves each committed snapshot. The
// write outlives cancellation of the tick that committed it.
func (s *DashboardService) PersistHook() syncloop.CommitHook {
	return func(ctx context.Context, snap *domain.Snapshot, report syncloop.TickReport) {
		if s.repo == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
			log.Printf("Failed to persist snapshot %d: %v", snap.Version, err)
			return
		}
		s.maybePrune(ctx)
	}
}

// Restore overlays the last persisted scores onto the seed snapshot so the
// views have data before the first tick commits. Returns how many nodes
// were restored.
func (s *DashboardService) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	nodes, err := s.repo.ListNodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted nodes: %w", err)
	}
	return s.store.Restore(nodes), nil
}

// Resume continues snapshot versions after the last persisted one. Returns
// that version, zero when nothing was persisted.
func (s *DashboardService) Resume(ctx context.Context) (uint64, error) {
	if s.repo == nil {
		return 0, nil
	}

	latest, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load latest snapshot: %w", err)
	}
	if latest == nil {
		return 0, nil
	}
	s.store.ResumeAfter(latest.Version)
	return latest.Version, nil
}

func (s *DashboardService) maybePrune(ctx context.Context) {
	if s.opts.HistoryRetain <= 0 {
		return
	}

	s.pruneMu.Lock()
	now := s.now()
	if now.Sub(s.lastPrune) < pruneEvery {
		s.pruneMu.Unlock()
		return
	}
	s.lastPrune = now
	s.pruneMu.Unlock()

	removed, err := s.repo.PruneHistory(ctx, now.Add(-s.opts.HistoryRetain))
	if err != nil {
		log.Printf("Failed to prune score history: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("Pruned %d score history points older than %s", removed, s.opts.HistoryRetain)
	}
}
