package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cvswatch/internal/domain"
	"cvswatch/internal/syncloop"
	"cvswatch/internal/view"
)

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Errorf("expected %v, got %v", expected, actual)
	}
}

type fakeSource struct {
	snap    *domain.Snapshot
	updates chan *domain.Snapshot
}

func (f *fakeSource) Snapshot() *domain.Snapshot { return f.snap }

func (f *fakeSource) Subscribe() (<-chan *domain.Snapshot, func()) {
	return f.updates, func() {}
}

type fakeSyncer struct {
	triggered int
	err       error
}

func (f *fakeSyncer) Trigger(ctx context.Context) (syncloop.TickReport, error) {
	f.triggered++
	return syncloop.TickReport{Seq: uint64(f.triggered), Outcome: syncloop.OutcomeCommitted}, f.err
}

func (f *fakeSyncer) Status() syncloop.Status {
	return syncloop.Status{State: syncloop.StateIdle}
}

func testSnapshot() *domain.Snapshot {
	center := view.DefaultViewport.Center
	a := domain.NewConfiguredNode("a", "Alpha", center, domain.Features{Temperature: 0.4, Humidity: 0.6})
	a = a.WithScore(domain.Score{Value: 0.3, Status: domain.StatusGreen}, time.Now())
	b := domain.NewConfiguredNode("b", "Bravo", domain.NewCoordinates(center.Lon()+0.02, center.Lat()), domain.Features{})
	return &domain.Snapshot{Version: 1, Nodes: []domain.Node{a, b}, CommittedAt: time.Now()}
}

func newTestModel(t *testing.T, snap *domain.Snapshot) (Model, *fakeSyncer) {
	t.Helper()
	src := &fakeSource{snap: snap, updates: make(chan *domain.Snapshot, 1)}
	syncer := &fakeSyncer{}
	updates, _ := src.Subscribe()
	return New(src, syncer, updates, 0), syncer
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// ============================================================================
// Canvas
// ============================================================================

func TestCanvasNotReadyUntilSized(t *testing.T) {
	c := NewCanvas()
	if c.Ready() {
		t.Fatal("expected unsized canvas to be not ready")
	}

	err := c.AddSource(view.SourceID, view.FeatureCollection(nil))
	if !errors.Is(err, domain.ErrBackendNotReady) {
		t.Errorf("expected ErrBackendNotReady, got %v", err)
	}
	if _, err := c.QueryFeaturesAt(view.ScreenPoint{}, view.LayerID); !errors.Is(err, domain.ErrBackendNotReady) {
		t.Errorf("expected ErrBackendNotReady, got %v", err)
	}
	if c.Render() != "" {
		t.Error("expected empty render before sizing")
	}

	c.Resize(80, 20)
	if !c.Ready() {
		t.Error("expected sized canvas to be ready")
	}
}

func TestCanvasSourcesAndLayers(t *testing.T) {
	c := NewCanvas()
	c.Resize(80, 20)

	if err := c.SetSourceData(view.SourceID, view.FeatureCollection(nil)); err == nil {
		t.Error("expected error for unknown source")
	}
	if err := c.AddLayer(view.Layer{ID: view.LayerID, Source: view.SourceID}); err == nil {
		t.Error("expected error for layer without source")
	}

	assertNoError(t, c.AddSource(view.SourceID, view.FeatureCollection(testSnapshot().Nodes)))
	if err := c.AddSource(view.SourceID, view.FeatureCollection(nil)); err == nil {
		t.Error("expected error for duplicate source")
	}

	layer := view.Layer{ID: view.LayerID, Source: view.SourceID, Radius: view.MarkerRadius}
	assertNoError(t, c.AddLayer(layer))
	if err := c.AddLayer(layer); err == nil {
		t.Error("expected error for duplicate layer")
	}
	assertNoError(t, c.RemoveLayer(view.LayerID))
	if err := c.RemoveLayer(view.LayerID); err == nil {
		t.Error("expected error removing a missing layer")
	}
}

func TestCanvasQueryFeaturesAt(t *testing.T) {
	c := NewCanvas()
	c.Resize(80, 20)
	assertNoError(t, c.AddSource(view.SourceID, view.FeatureCollection(testSnapshot().Nodes)))
	assertNoError(t, c.AddLayer(view.Layer{ID: view.LayerID, Source: view.SourceID, Radius: view.MarkerRadius}))

	hits, err := c.QueryFeaturesAt(view.ScreenPoint{X: 40, Y: 10}, view.LayerID)
	assertNoError(t, err)
	if len(hits) != 1 || hits[0].Properties.ID != "a" {
		t.Fatalf("expected node a under the center, got %+v", hits)
	}

	hits, err = c.QueryFeaturesAt(view.ScreenPoint{X: 0, Y: 0}, view.LayerID)
	assertNoError(t, err)
	if len(hits) != 0 {
		t.Errorf("expected no hits in the corner, got %+v", hits)
	}

	if _, err := c.QueryFeaturesAt(view.ScreenPoint{}, "missing"); err == nil {
		t.Error("expected error for unknown layer")
	}
}

func TestCanvasRender(t *testing.T) {
	c := NewCanvas()
	c.Resize(80, 20)
	assertNoError(t, c.AddSource(view.SourceID, view.FeatureCollection(testSnapshot().Nodes)))
	assertNoError(t, c.AddLayer(view.Layer{ID: view.LayerID, Source: view.SourceID, SelectedID: "a"}))

	out := c.Render()
	if lines := strings.Split(out, "\n"); len(lines) != 20 {
		t.Errorf("expected 20 rows, got %d", len(lines))
	}
	if !strings.Contains(out, selectedGlyph) {
		t.Error("expected selected marker glyph")
	}
	if !strings.Contains(out, markerGlyph) {
		t.Error("expected plain marker glyph")
	}
}

func TestMercatorY(t *testing.T) {
	if mercatorY(0) != 0 {
		t.Errorf("expected 0 at the equator, got %v", mercatorY(0))
	}
	if mercatorY(37.5) <= 37.5 {
		t.Error("expected mercator stretch away from the equator")
	}
}

// ============================================================================
// Model
// ============================================================================

func TestModelMountsOnWindowSize(t *testing.T) {
	m, _ := newTestModel(t, testSnapshot())
	if m.View() != "  Initializing..." {
		t.Errorf("expected initializing view, got %q", m.View())
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	if m.mapView.Pending() {
		t.Error("expected deferred update to be flushed once the canvas is sized")
	}
	if !strings.Contains(m.View(), "CVSWATCH") {
		t.Error("expected title bar")
	}
	if m.err != nil {
		t.Errorf("unexpected error: %v", m.err)
	}
}

func TestModelTabs(t *testing.T) {
	m, _ := newTestModel(t, testSnapshot())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, key("tab"))
	assertEqual(t, TabAnalytics, m.Tab())
	if !strings.Contains(m.View(), "Safety") {
		t.Error("expected analytics cards")
	}

	m, _ = update(t, m, key("3"))
	assertEqual(t, TabDevices, m.Tab())
	if !strings.Contains(m.View(), "No sensors connected") {
		t.Error("expected empty device panel")
	}

	m, _ = update(t, m, key("tab"))
	assertEqual(t, TabMap, m.Tab())
}

func TestModelWaitsForFirstCommit(t *testing.T) {
	m, _ := newTestModel(t, &domain.Snapshot{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, key("2"))

	if !strings.Contains(m.View(), "Waiting for the first sync") {
		t.Error("expected waiting message before the first commit")
	}
}

func TestModelSelection(t *testing.T) {
	m, _ := newTestModel(t, testSnapshot())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m, _ = update(t, m, key("j"))
	assertEqual(t, "a", m.Selected())
	if !strings.Contains(m.View(), "Alpha") {
		t.Error("expected popup for the selected node")
	}
	assertEqual(t, float64(view.SelectedZoom), m.canvas.Viewport().Zoom)

	m, _ = update(t, m, key("j"))
	assertEqual(t, "b", m.Selected())

	m, _ = update(t, m, key("j"))
	assertEqual(t, "a", m.Selected())

	m, _ = update(t, m, key("k"))
	assertEqual(t, "b", m.Selected())

	m, _ = update(t, m, key("esc"))
	assertEqual(t, "", m.Selected())
	assertEqual(t, view.DefaultViewport, m.canvas.Viewport())
}

func TestModelClick(t *testing.T) {
	m, _ := newTestModel(t, testSnapshot())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	// The canvas is 19 rows tall, so node a sits at row 9.5 below the chrome
	m, _ = update(t, m, tea.MouseMsg{X: 40, Y: mapTop + 9, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	assertEqual(t, "a", m.Selected())

	m, _ = update(t, m, tea.MouseMsg{X: 0, Y: mapTop, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	assertEqual(t, "", m.Selected())
}

func TestModelSnapshotKeepsSelection(t *testing.T) {
	m, _ := newTestModel(t, testSnapshot())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, key("j"))

	next := testSnapshot()
	next.Version = 2
	m, cmd := update(t, m, snapshotMsg{snap: next})
	if cmd == nil {
		t.Error("expected to keep waiting for snapshots")
	}
	assertEqual(t, uint64(2), m.snap.Version)
	assertEqual(t, "a", m.Selected())
}

func TestModelSync(t *testing.T) {
	m, syncer := newTestModel(t, testSnapshot())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m, cmd := update(t, m, key("s"))
	if cmd == nil {
		t.Fatal("expected sync command")
	}
	m, _ = update(t, m, cmd())
	assertEqual(t, 1, syncer.triggered)
	assertEqual(t, "tick 1 committed", m.notice)

	syncer.err = domain.ErrTickInFlight
	m, cmd = update(t, m, key("s"))
	m, _ = update(t, m, cmd())
	if !strings.HasPrefix(m.notice, "sync: ") {
		t.Errorf("expected sync error notice, got %q", m.notice)
	}
}

func TestWaitForSnapshotClosed(t *testing.T) {
	ch := make(chan *domain.Snapshot)
	close(ch)
	if msg := waitForSnapshot(ch)(); msg != nil {
		t.Errorf("expected nil message on closed channel, got %v", msg)
	}
}

func TestRenderDevices(t *testing.T) {
	panel := view.Panel{
		Ready: true,
		Cards: []domain.DeviceReading{
			{Class: "water", Name: "Water Level", Unit: "cm", Connected: true, Value: 42, Percent: 42},
		},
		Disconnected: []string{"temperature"},
	}
	out := renderDevices(panel, 80)
	if !strings.Contains(out, "Water Level") || !strings.Contains(out, "42.0 cm") {
		t.Errorf("expected water card, got %s", out)
	}
	if !strings.Contains(out, "disconnected: temperature") {
		t.Errorf("expected disconnected list, got %s", out)
	}

	if !strings.Contains(renderDevices(view.Panel{}, 80), "Loading devices") {
		t.Error("expected loading message before the first commit")
	}
}

func TestTruncate(t *testing.T) {
	assertEqual(t, "short", truncate("short", 10))
	assertEqual(t, "abcd…", truncate("abcdefgh", 5))
	assertEqual(t, "ab", truncate("abcdefgh", 2))
}
