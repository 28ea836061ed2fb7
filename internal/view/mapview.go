package view

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"cvswatch/internal/domain"
)

// Map source and layer identifiers
const (
	SourceID = "nodes"
	LayerID  = "node-circles"
)

// Marker radii
const (
	MarkerRadius         = 10
	SelectedMarkerRadius = 16
)

// SelectedZoom is the zoom used when flying to a selected node
const SelectedZoom = 14

// Viewport is the visible map area
type Viewport struct {
	Center domain.Coordinates `json:"center"`
	Zoom   float64            `json:"zoom"`
}

// DefaultViewport frames the seeded monitoring area
var DefaultViewport = Viewport{
	Center: domain.NewCoordinates(-121.9886, 37.5483),
	Zoom:   12,
}

// ScreenPoint is a position on the rendering surface
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Layer describes the marker layer drawn from a source
type Layer struct {
	ID             string
	Source         string
	Radius         float64
	SelectedID     string
	SelectedRadius float64
}

// Backend is the narrow adapter over a map rendering surface. Every method
// except Ready returns domain.ErrBackendNotReady while the surface is still
// initializing.
type Backend interface {
	AddSource(id string, data Collection) error
	SetSourceData(id string, data Collection) error
	AddLayer(layer Layer) error
	RemoveLayer(id string) error
	FlyTo(vp Viewport) error
	QueryFeaturesAt(p ScreenPoint, layerID string) ([]Feature, error)
	Ready() bool
}

// Popup is the detail shown for the selected node
type Popup struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Coordinates domain.Coordinates `json:"coords"`
	CVS         string             `json:"cvs"`
	Temperature float64            `json:"temperature"`
	Humidity    float64            `json:"humidity"`
}

// MapView holds the map's selection and viewport across snapshot updates
// and pushes data to a Backend. Snapshot updates never change the
// selection or viewport; only Select, Deselect and Click do.
type MapView struct {
	mu       sync.Mutex
	backend  Backend
	snapshot *domain.Snapshot
	selected string
	viewport Viewport
	mounted  bool
	pending  bool
}

// NewMapView creates a map view over backend
func NewMapView(backend Backend) *MapView {
	return &MapView{
		backend:  backend,
		viewport: DefaultViewport,
	}
}

// Update renders a new snapshot. If the backend is not ready the update is
// kept and applied by BackendReady.
func (m *MapView) Update(snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = snap
	if !m.mounted {
		m.pending = true
		return nil
	}

	err := m.backend.SetSourceData(SourceID, m.collection())
	if errors.Is(err, domain.ErrBackendNotReady) {
		m.pending = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("update map source: %w", err)
	}
	m.pending = false
	return nil
}

// BackendReady mounts the source and layer and flushes any deferred update.
// It is a no-op while the backend still reports not ready.
func (m *MapView) BackendReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.backend.Ready() {
		return nil
	}

	if !m.mounted {
		if err := m.backend.AddSource(SourceID, m.collection()); err != nil {
			return m.deferOn(err, "add map source")
		}
		if err := m.backend.AddLayer(m.layer()); err != nil {
			return m.deferOn(err, "add map layer")
		}
		m.mounted = true
		m.pending = false
		return m.flyTo()
	}

	if m.pending {
		if err := m.backend.SetSourceData(SourceID, m.collection()); err != nil {
			return m.deferOn(err, "flush map source")
		}
		m.pending = false
		return m.restyle()
	}
	return nil
}

// Select focuses a node: it becomes the highlighted marker and the viewport
// centers on it at SelectedZoom
func (m *MapView) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(id)
}

// Deselect clears the selection and returns to the default viewport
func (m *MapView) Deselect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deselectLocked()
}

// Click handles a click on the surface: a marker under the point is
// selected, an empty spot deselects
func (m *MapView) Click(p ScreenPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted {
		return nil
	}

	features, err := m.backend.QueryFeaturesAt(p, LayerID)
	if errors.Is(err, domain.ErrBackendNotReady) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query map features: %w", err)
	}
	if len(features) == 0 {
		if m.selected == "" {
			return nil
		}
		return m.deselectLocked()
	}
	return m.selectLocked(features[0].Properties.ID)
}

// Selected returns the selected node id, or "" when nothing is selected
func (m *MapView) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Viewport returns the current viewport
func (m *MapView) Viewport() Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewport
}

// Pending reports whether an update is waiting for the backend
func (m *MapView) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Popup returns the detail popup for the selected node. It reports false
// when nothing is selected or the selected node is not in the current
// snapshot.
func (m *MapView) Popup() (Popup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selected == "" {
		return Popup{}, false
	}
	node, ok := m.snapshot.Node(m.selected)
	if !ok {
		return Popup{}, false
	}
	return popupFor(node), true
}

func (m *MapView) selectLocked(id string) error {
	node, ok := m.snapshot.Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}

	m.selected = id
	m.viewport = Viewport{Center: node.Coordinates, Zoom: SelectedZoom}
	return m.restyle()
}

func (m *MapView) deselectLocked() error {
	m.selected = ""
	m.viewport = DefaultViewport
	return m.restyle()
}

// restyle redraws the marker layer for the current selection and moves the camera
func (m *MapView) restyle() error {
	if !m.mounted {
		return nil
	}
	if err := m.backend.RemoveLayer(LayerID); err != nil {
		return m.deferOn(err, "remove map layer")
	}
	if err := m.backend.AddLayer(m.layer()); err != nil {
		return m.deferOn(err, "add map layer")
	}
	return m.flyTo()
}

func (m *MapView) flyTo() error {
	if err := m.backend.FlyTo(m.viewport); err != nil {
		return m.deferOn(err, "fly to viewport")
	}
	return nil
}

// deferOn swallows a not-ready error, marking the view for a later flush
func (m *MapView) deferOn(err error, op string) error {
	if errors.Is(err, domain.ErrBackendNotReady) {
		log.Printf("Map backend not ready, deferring %s", op)
		m.pending = true
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (m *MapView) layer() Layer {
	return Layer{
		ID:             LayerID,
		Source:         SourceID,
		Radius:         MarkerRadius,
		SelectedID:     m.selected,
		SelectedRadius: SelectedMarkerRadius,
	}
}

func (m *MapView) collection() Collection {
	if m.snapshot == nil {
		return FeatureCollection(nil)
	}
	return FeatureCollection(m.snapshot.Nodes)
}

func popupFor(n domain.Node) Popup {
	cvs := "-"
	if n.Scored() {
		cvs = fmt.Sprintf("%.2f%%", n.ScoreValue()*100)
	}
	return Popup{
		ID:          n.ID,
		Name:        n.Name,
		Coordinates: n.Coordinates,
		CVS:         cvs,
		Temperature: n.Temperature,
		Humidity:    n.Humidity,
	}
}
