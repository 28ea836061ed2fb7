// Package view renders committed snapshots for the Map, Analytics and
// Devices views.
//
// The renderers are pure functions of a snapshot. MapView is the one
// stateful piece: it owns the selected node and viewport and drives a
// rendering Backend, deferring updates until the backend reports ready.
package view

import "cvswatch/internal/domain"

// Marker colors
const (
	ColorDevice   = "#3b82f6"
	ColorGreen    = "#22c55e"
	ColorYellow   = "#facc15"
	ColorRed      = "#ff3b30"
	ColorUnscored = "#999"
)

// Color returns the marker color for a node. Device nodes are always blue.
func Color(n domain.Node) string {
	if n.IsDevice() {
		return ColorDevice
	}
	switch n.Status {
	case domain.StatusGreen:
		return ColorGreen
	case domain.StatusYellow:
		return ColorYellow
	case domain.StatusRed:
		return ColorRed
	default:
		return ColorUnscored
	}
}

// Geometry is a GeoJSON point
type Geometry struct {
	Type        string             `json:"type"`
	Coordinates domain.Coordinates `json:"coordinates"`
}

// Properties are the per-feature values the map layer styles on
type Properties struct {
	ID    string   `json:"id"`
	Color string   `json:"color"`
	CVS   *float64 `json:"cvs"`
}

// Feature is one node on the map
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// Collection is a GeoJSON FeatureCollection
type Collection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// FeatureCollection converts nodes to a GeoJSON feature collection in store order
func FeatureCollection(nodes []domain.Node) Collection {
	features := make([]Feature, 0, len(nodes))
	for _, n := range nodes {
		features = append(features, Feature{
			Type: "Feature",
			Properties: Properties{
				ID:    n.ID,
				Color: Color(n),
				CVS:   n.Score,
			},
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: n.Coordinates,
			},
		})
	}
	return Collection{Type: "FeatureCollection", Features: features}
}

// Feature looks up a feature by node id
func (c Collection) Feature(id string) (Feature, bool) {
	for _, f := range c.Features {
		if f.Properties.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}
