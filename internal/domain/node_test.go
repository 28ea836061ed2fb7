package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"green", StatusGreen, false},
		{"yellow", StatusYellow, false},
		{"red", StatusRed, false},
		{"", StatusUnknown, true},
		{"blue", StatusUnknown, true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNodeWithScore(t *testing.T) {
	node := NewConfiguredNode("1", "Node 1", NewCoordinates(-121.987, 37.55), Features{Temperature: 0.7})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	scored := node.WithScore(Score{Value: 0.75, Status: StatusYellow}, at)

	if node.Scored() {
		t.Error("WithScore must not modify the receiver")
	}
	if !scored.Scored() || scored.ScoreValue() != 0.75 {
		t.Errorf("expected score 0.75, got %v", scored.Score)
	}
	if scored.Status != StatusYellow {
		t.Errorf("expected status yellow, got %s", scored.Status)
	}
	if scored.ScoredAt == nil || !scored.ScoredAt.Equal(at) {
		t.Errorf("expected ScoredAt %v, got %v", at, scored.ScoredAt)
	}
	if !scored.SameReadings(node) {
		t.Error("scoring must not change readings")
	}
}

func TestNodeEqual(t *testing.T) {
	base := NewConfiguredNode("1", "Node 1", NewCoordinates(-121.987, 37.55), Features{Humidity: 0.4})
	score := 0.5
	otherScore := 0.5

	t.Run("identical nodes", func(t *testing.T) {
		a, b := base, base
		a.Score, b.Score = &score, &otherScore
		if !a.Equal(b) {
			t.Error("expected nodes with equal score values to be equal")
		}
	})

	t.Run("different feature", func(t *testing.T) {
		b := base
		b.Humidity = 0.41
		if base.Equal(b) {
			t.Error("expected different humidity to be unequal")
		}
	})

	t.Run("scored vs unscored", func(t *testing.T) {
		b := base
		b.Score = &score
		if base.Equal(b) {
			t.Error("expected scored and unscored nodes to be unequal")
		}
		if !base.SameReadings(b) {
			t.Error("expected readings to match")
		}
	})
}

func TestNodeFreshest(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	tests := []struct {
		name     string
		update   *time.Time
		scored   *time.Time
		expected *time.Time
	}{
		{"neither", nil, nil, nil},
		{"only update", &early, nil, &early},
		{"only scored", nil, &early, &early},
		{"scored later", &early, &late, &late},
		{"update later", &late, &early, &late},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Node{LastUpdate: tt.update, ScoredAt: tt.scored}
			got := n.Freshest()
			if !timePtrEqual(got, tt.expected) {
				t.Errorf("Freshest() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNodeValidate(t *testing.T) {
	valid := NewConfiguredNode("1", "Node 1", NewCoordinates(-121.987, 37.55), Features{})

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid node, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Node)
	}{
		{"empty id", func(n *Node) { n.ID = "" }},
		{"empty name", func(n *Node) { n.Name = "" }},
		{"bad kind", func(n *Node) { n.Kind = "other" }},
		{"bad latitude", func(n *Node) { n.Coordinates = NewCoordinates(0, 91) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			if err := n.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCheckUnique(t *testing.T) {
	nodes := []Node{{ID: "1"}, {ID: "2"}}
	if err := CheckUnique(nodes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nodes = append(nodes, Node{ID: "1"})
	err := CheckUnique(nodes)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestNodeJSONShape(t *testing.T) {
	score := 0.62
	node := NewConfiguredNode("3", "Node 3", NewCoordinates(-121.995, 37.562), Features{Temperature: 0.8, DrainageMissing: 0.7})
	node.Score = &score
	node.Status = StatusYellow

	data, err := json.Marshal(node)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Features are flattened into the node object
	if raw["temperature"] != 0.8 || raw["drainage_missing"] != 0.7 {
		t.Errorf("expected flattened features, got %v", raw)
	}
	if raw["cvs"] != 0.62 || raw["status"] != "yellow" {
		t.Errorf("expected cvs/status on the wire, got %v", raw)
	}
	coords, ok := raw["coords"].([]any)
	if !ok || len(coords) != 2 || coords[0] != -121.995 {
		t.Errorf("expected coords [lon, lat], got %v", raw["coords"])
	}
	if _, ok := raw["last_update"]; ok {
		t.Error("expected unset last_update to be omitted")
	}
}

func TestSensorClassSynthesize(t *testing.T) {
	class := SensorClass{
		Class:       "water",
		NodeID:      "water",
		Name:        "Water Sensor",
		Coordinates: NewCoordinates(-122.054076, 37.572966),
		Attribute:   AttrTemperature,
	}

	node := class.Synthesize(42)

	if node.Kind != NodeKindDevice {
		t.Errorf("expected device kind, got %s", node.Kind)
	}
	if node.Temperature != 42 {
		t.Errorf("expected temperature 42, got %v", node.Temperature)
	}
	for _, attr := range Attributes {
		if attr == AttrTemperature {
			continue
		}
		if v := node.Features.Get(attr); v != 0 {
			t.Errorf("expected %s to be 0, got %v", attr, v)
		}
	}
}

func TestDeviceReadings(t *testing.T) {
	report := NewGatewayReport(time.Now())
	report.Sensors["water"] = SensorReading{Connected: true, Value: 140}
	classes := []SensorClass{
		{Class: "water", NodeID: "water", Name: "Water Sensor", Unit: "units"},
		{Class: "humidity", NodeID: "humidity", Name: "Humidity Sensor", Unit: "%"},
	}

	rows := DeviceReadings(report, classes)

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].Connected || rows[0].Percent != 100 {
		t.Errorf("expected connected water capped at 100%%, got %+v", rows[0])
	}
	if rows[1].Connected {
		t.Errorf("expected absent humidity to be disconnected, got %+v", rows[1])
	}
}
