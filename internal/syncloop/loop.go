// Package syncloop runs the poll-score-commit cycle that keeps the node
// store current.
//
// Each tick walks Idle -> Polling -> Scoring -> Committing -> Idle. A tick
// reads the latest store snapshot when it starts, merges device readings,
// scores every node concurrently and commits the result with one
// compare-and-replace. At most one tick is in flight; a timer tick that fires
// while another is running is dropped. The first tick runs synchronously in
// Start so the initial fetch and the periodic ticks share one writer.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cvswatch/internal/discovery"
	"cvswatch/internal/domain"
	"cvswatch/internal/scoring"
	"cvswatch/internal/store"
)

// ErrStopped is returned by Trigger after Stop
var ErrStopped = errors.New("sync loop stopped")

// Tick triggers
const (
	TriggerInitial = "initial"
	TriggerTimer   = "timer"
	TriggerManual  = "manual"
)

// Discoverer merges device readings into a working node set
type Discoverer interface {
	Poll(ctx context.Context, working []domain.Node) (discovery.Result, error)
}

// CommitHook runs after every committed snapshot, in registration order
type CommitHook func(ctx context.Context, snap *domain.Snapshot, report TickReport)

// Options tunes the loop
type Options struct {
	Interval      time.Duration
	MaxConcurrent int
}

// Loop owns the sync state machine
type Loop struct {
	store      *store.Store
	discoverer Discoverer
	scorer     scoring.Scorer
	opts       Options
	hooks      []CommitHook
	now        func() time.Time

	state    atomic.Int32
	inFlight chan struct{} // holds one token while a tick runs
	seq      atomic.Uint64
	lastTick atomic.Pointer[TickReport]

	ticks           atomic.Uint64
	dropped         atomic.Uint64
	committed       atomic.Uint64
	discarded       atomic.Uint64
	stale           atomic.Uint64
	scoringFailed   atomic.Uint64
	discoveryFailed atomic.Uint64

	// commitMu serializes commits against Stop
	commitMu sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a loop. discoverer may be nil, in which case ticks only rescore.
func New(st *store.Store, discoverer Discoverer, scorer scoring.Scorer, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}
	return &Loop{
		store:      st,
		discoverer: discoverer,
		scorer:     scorer,
		opts:       opts,
		inFlight:   make(chan struct{}, 1),
		now:        time.Now,
	}
}

// OnCommit registers a hook. Hooks must be registered before Start.
func (l *Loop) OnCommit(hook CommitHook) {
	l.hooks = append(l.hooks, hook)
}

// State returns the phase of the tick in flight, or StateIdle
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Start runs tick zero synchronously and then starts the ticker. It returns
// ErrStopped if Stop lands before tick zero finishes.
func (l *Loop) Start(ctx context.Context) error {
	l.commitMu.Lock()
	if l.stopped {
		l.commitMu.Unlock()
		return ErrStopped
	}
	if l.started {
		l.commitMu.Unlock()
		return fmt.Errorf("sync loop already started")
	}
	l.started = true
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	l.commitMu.Unlock()
	defer l.wg.Done()

	// Tick zero waits out a manual tick that got in first
	select {
	case l.inFlight <- struct{}{}:
	case <-l.ctx.Done():
		return ErrStopped
	}
	report := l.tick(l.ctx, TriggerInitial)
	<-l.inFlight
	if report.Outcome != OutcomeCommitted {
		log.Printf("Initial sync tick ended %s: %s", report.Outcome, report.Error)
	}

	l.commitMu.Lock()
	if l.stopped {
		l.commitMu.Unlock()
		return ErrStopped
	}
	l.wg.Add(1)
	l.commitMu.Unlock()
	go l.run()

	log.Printf("Started sync loop (interval=%s, max_concurrent=%d)", l.opts.Interval, l.opts.MaxConcurrent)
	return nil
}

// Run starts the loop and blocks until ctx is cancelled, then stops it
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	l.Stop()
	return ctx.Err()
}

// Stop cancels the ticker and any in-flight tick and waits for them.
// A tick that has not committed yet is discarded.
func (l *Loop) Stop() {
	l.commitMu.Lock()
	if l.stopped {
		l.commitMu.Unlock()
		return
	}
	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
	l.commitMu.Unlock()

	l.wg.Wait()
	log.Printf("Stopped sync loop")
}

// Trigger runs one tick now and returns its report. It returns
// domain.ErrTickInFlight if a tick is already running.
func (l *Loop) Trigger(ctx context.Context) (TickReport, error) {
	l.commitMu.Lock()
	if l.stopped {
		l.commitMu.Unlock()
		return TickReport{}, ErrStopped
	}
	base := l.ctx
	l.wg.Add(1)
	l.commitMu.Unlock()
	defer l.wg.Done()

	if base == nil {
		base = context.Background()
	}

	select {
	case l.inFlight <- struct{}{}:
	default:
		return TickReport{}, domain.ErrTickInFlight
	}
	defer func() { <-l.inFlight }()

	// Cancelled by either the loop or the caller
	tickCtx, cancel := context.WithCancel(base)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return l.tick(tickCtx, TriggerManual), nil
}

// Status returns counters and the last tick report
func (l *Loop) Status() Status {
	l.commitMu.Lock()
	running := l.started && !l.stopped
	l.commitMu.Unlock()

	return Status{
		State:             l.State(),
		Running:           running,
		Ready:             l.store.Ready(),
		Version:           l.store.Version(),
		Interval:          l.opts.Interval.String(),
		Ticks:             l.ticks.Load(),
		Dropped:           l.dropped.Load(),
		Committed:         l.committed.Load(),
		Discarded:         l.discarded.Load(),
		Stale:             l.stale.Load(),
		ScoringFailures:   l.scoringFailed.Load(),
		DiscoveryFailures: l.discoveryFailed.Load(),
		LastTick:          l.lastTick.Load(),
	}
}

// run fires timer ticks until the loop context is cancelled
func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.fire()
		}
	}
}

// fire starts a timer tick unless one is already in flight
func (l *Loop) fire() {
	select {
	case l.inFlight <- struct{}{}:
	default:
		l.dropped.Add(1)
		ticksDropped.Inc()
		log.Printf("Dropped sync tick: previous tick still %s", l.State())
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() { <-l.inFlight }()
		l.tick(l.ctx, TriggerTimer)
	}()
}

// tick runs one poll-score-commit cycle. The caller holds the in-flight slot.
func (l *Loop) tick(ctx context.Context, trigger string) (report TickReport) {
	start := l.now()
	base := l.store.Snapshot()
	report = TickReport{
		Seq:         l.seq.Add(1),
		Trigger:     trigger,
		StartedAt:   start,
		BaseVersion: base.Version,
	}
	l.ticks.Add(1)

	defer func() {
		l.setState(StateIdle)
		report.Duration = l.now().Sub(start)
		tickDuration.Observe(report.Duration.Seconds())
		ticksTotal.WithLabelValues(string(report.Outcome)).Inc()
		last := report
		l.lastTick.Store(&last)
	}()

	// Polling
	l.setState(StatePolling)
	working, devices := base.Nodes, base.Devices
	if l.discoverer != nil {
		res, err := l.discoverer.Poll(ctx, base.Nodes)
		if err != nil {
			l.discoveryFailed.Add(1)
			discoveryFailures.Inc()
			report.DiscoveryError = err.Error()
			log.Printf("Device discovery failed, keeping previous devices: %v", err)
		} else {
			working, devices = res.Nodes, res.Devices
			report.DevicesAdded = res.Stats.Added
			report.DevicesUpdated = res.Stats.Updated
			report.DevicesRemoved = res.Stats.Removed
		}
	}

	// Scoring
	l.setState(StateScoring)
	scored, failures := l.scoreAll(ctx, working)
	report.Nodes = len(scored)
	report.Scored = len(scored) - failures
	report.ScoringFailures = failures

	// Committing
	l.setState(StateCommitting)
	snap, ok := l.commit(ctx, base.Version, scored, devices, &report)
	if !ok {
		return report
	}

	// Hooks run outside commitMu; Stop still waits for them through wg
	for _, hook := range l.hooks {
		hook(ctx, snap, report)
	}
	return report
}

// commit replaces the store snapshot unless the loop stopped or the tick was
// cancelled, recording the outcome in report
func (l *Loop) commit(ctx context.Context, baseVersion uint64, scored []domain.Node, devices []domain.DeviceReading, report *TickReport) (*domain.Snapshot, bool) {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	if l.stopped || ctx.Err() != nil {
		l.discarded.Add(1)
		report.Outcome = OutcomeDiscarded
		report.Error = "tick cancelled before commit"
		return nil, false
	}

	snap, err := l.store.CompareAndReplace(baseVersion, scored, devices)
	if err != nil {
		report.Error = err.Error()
		if errors.Is(err, domain.ErrStaleSnapshot) {
			l.stale.Add(1)
			report.Outcome = OutcomeStale
		} else {
			report.Outcome = OutcomeFailed
		}
		log.Printf("Sync tick %d not committed: %v", report.Seq, err)
		return nil, false
	}

	l.committed.Add(1)
	report.Outcome = OutcomeCommitted
	report.Version = snap.Version
	recordSnapshot(snap)
	return snap, true
}

// scoreAll scores every node concurrently and waits for all of them. A node
// whose request fails keeps its previous score and status.
func (l *Loop) scoreAll(ctx context.Context, nodes []domain.Node) ([]domain.Node, int) {
	out := domain.CloneNodes(nodes)
	var failures atomic.Int64

	var g errgroup.Group
	g.SetLimit(l.opts.MaxConcurrent)

	for i := range out {
		g.Go(func() error {
			score, err := l.scorer.Score(ctx, out[i])
			if err != nil {
				failures.Add(1)
				scoringRequests.WithLabelValues("error").Inc()
				if ctx.Err() == nil {
					log.Printf("Scoring node %s failed, keeping last score: %v", out[i].ID, err)
				}
				return nil
			}
			scoringRequests.WithLabelValues("ok").Inc()
			out[i] = out[i].WithScore(score, l.now())
			return nil
		})
	}
	g.Wait()

	if n := failures.Load(); n > 0 {
		l.scoringFailed.Add(uint64(n))
	}
	return out, int(failures.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

func recordSnapshot(snap *domain.Snapshot) {
	snapshotVersion.Set(float64(snap.Version))
	var configured, devices int
	for _, n := range snap.Nodes {
		if n.IsDevice() {
			devices++
		} else {
			configured++
		}
	}
	nodesCommitted.WithLabelValues(string(domain.NodeKindConfigured)).Set(float64(configured))
	nodesCommitted.WithLabelValues(string(domain.NodeKindDevice)).Set(float64(devices))
}
