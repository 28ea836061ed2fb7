package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"cvswatch/internal/domain"
	"cvswatch/internal/view"
)

// A terminal cell covers roughly twice as many pixels vertically as it does
// horizontally. Marker radii are in pixels.
const (
	cellWidth  = 8
	cellHeight = 16
	tileSize   = 256
)

const (
	markerGlyph   = "●"
	selectedGlyph = "◉"
)

// Canvas is a character-grid map surface. It reports not ready until the
// terminal has told it its size.
type Canvas struct {
	mu       sync.Mutex
	width    int
	height   int
	sources  map[string]view.Collection
	layers   map[string]view.Layer
	viewport view.Viewport
}

// NewCanvas creates an unsized canvas
func NewCanvas() *Canvas {
	return &Canvas{
		sources:  make(map[string]view.Collection),
		layers:   make(map[string]view.Layer),
		viewport: view.DefaultViewport,
	}
}

// Resize sets the drawable area in cells
func (c *Canvas) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
	c.height = height
}

func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyLocked()
}

func (c *Canvas) AddSource(id string, data view.Collection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return domain.ErrBackendNotReady
	}
	if _, ok := c.sources[id]; ok {
		return fmt.Errorf("source %q already exists", id)
	}
	c.sources[id] = data
	return nil
}

func (c *Canvas) SetSourceData(id string, data view.Collection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return domain.ErrBackendNotReady
	}
	if _, ok := c.sources[id]; !ok {
		return fmt.Errorf("source %q not found", id)
	}
	c.sources[id] = data
	return nil
}

func (c *Canvas) AddLayer(layer view.Layer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return domain.ErrBackendNotReady
	}
	if _, ok := c.layers[layer.ID]; ok {
		return fmt.Errorf("layer %q already exists", layer.ID)
	}
	if _, ok := c.sources[layer.Source]; !ok {
		return fmt.Errorf("layer %q: source %q not found", layer.ID, layer.Source)
	}
	c.layers[layer.ID] = layer
	return nil
}

func (c *Canvas) RemoveLayer(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return domain.ErrBackendNotReady
	}
	if _, ok := c.layers[id]; !ok {
		return fmt.Errorf("layer %q not found", id)
	}
	delete(c.layers, id)
	return nil
}

func (c *Canvas) FlyTo(vp view.Viewport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return domain.ErrBackendNotReady
	}
	c.viewport = vp
	return nil
}

// QueryFeaturesAt returns the features of a layer whose marker covers the
// cell at p, nearest first
func (c *Canvas) QueryFeaturesAt(p view.ScreenPoint, layerID string) ([]view.Feature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return nil, domain.ErrBackendNotReady
	}
	layer, ok := c.layers[layerID]
	if !ok {
		return nil, fmt.Errorf("layer %q not found", layerID)
	}

	type hit struct {
		feature view.Feature
		dist    float64
	}
	var hits []hit
	for _, f := range c.sources[layer.Source].Features {
		col, row := c.project(f.Geometry.Coordinates)
		dist := math.Hypot((p.X-col)*cellWidth, (p.Y-row)*cellHeight)
		if dist <= radiusFor(layer, f.Properties.ID) {
			hits = append(hits, hit{feature: f, dist: dist})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	features := make([]view.Feature, len(hits))
	for i, h := range hits {
		features[i] = h.feature
	}
	return features, nil
}

// Viewport returns the camera position
func (c *Canvas) Viewport() view.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// Render draws every layer's markers onto the grid
func (c *Canvas) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return ""
	}

	grid := make([][]string, c.height)
	for r := range grid {
		grid[r] = make([]string, c.width)
		for col := range grid[r] {
			grid[r][col] = " "
		}
	}

	ids := make([]string, 0, len(c.layers))
	for id := range c.layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		layer := c.layers[id]
		var selected *view.Feature
		for _, f := range c.sources[layer.Source].Features {
			if f.Properties.ID == layer.SelectedID {
				f := f
				selected = &f
				continue
			}
			c.plot(grid, f, markerGlyph, false)
		}
		// Drawn last so it stays on top
		if selected != nil {
			c.plot(grid, *selected, selectedGlyph, true)
		}
	}

	lines := make([]string, c.height)
	for r, row := range grid {
		lines[r] = strings.Join(row, "")
	}
	return strings.Join(lines, "\n")
}

func (c *Canvas) plot(grid [][]string, f view.Feature, glyph string, bold bool) {
	col, row := c.project(f.Geometry.Coordinates)
	x, y := int(math.Round(col)), int(math.Round(row))
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	grid[y][x] = lipgloss.NewStyle().
		Foreground(lipgloss.Color(f.Properties.Color)).
		Bold(bold).
		Render(glyph)
}

// project maps coordinates to a fractional cell position using web mercator
// around the viewport center
func (c *Canvas) project(coords domain.Coordinates) (col, row float64) {
	scale := tileSize * math.Exp2(c.viewport.Zoom) / 360
	dx := (coords.Lon() - c.viewport.Center.Lon()) * scale
	dy := (mercatorY(coords.Lat()) - mercatorY(c.viewport.Center.Lat())) * scale
	return float64(c.width)/2 + dx/cellWidth, float64(c.height)/2 - dy/cellHeight
}

func (c *Canvas) readyLocked() bool {
	return c.width > 0 && c.height > 0
}

func mercatorY(lat float64) float64 {
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4+rad/2)) * 180 / math.Pi
}

func radiusFor(layer view.Layer, id string) float64 {
	if id != "" && id == layer.SelectedID {
		return layer.SelectedRadius
	}
	return layer.Radius
}
