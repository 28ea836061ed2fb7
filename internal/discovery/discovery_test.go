package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cvswatch/internal/domain"
)

var (
	waterClass = domain.SensorClass{
		Class:       "water",
		NodeID:      "water",
		Name:        "Water Sensor",
		Coordinates: domain.NewCoordinates(-122.054076, 37.572966),
		Attribute:   domain.AttrTemperature,
		Unit:        "units",
	}
	humidityClass = domain.SensorClass{
		Class:       "humidity",
		NodeID:      "humidity",
		Name:        "Humidity Sensor",
		Coordinates: domain.NewCoordinates(-122.0301, 37.5601),
		Attribute:   domain.AttrHumidity,
		Unit:        "%",
	}
	testSensors = []domain.SensorClass{waterClass, humidityClass}
)

func configuredNodes() []domain.Node {
	return []domain.Node{
		domain.NewConfiguredNode("1", "Node 1", domain.NewCoordinates(-121.987, 37.55), domain.Features{Temperature: 0.7}),
		domain.NewConfiguredNode("2", "Node 2", domain.NewCoordinates(-122.045, 37.566), domain.Features{Temperature: 0.6}),
	}
}

func report(readings map[string]domain.SensorReading) *domain.GatewayReport {
	r := domain.NewGatewayReport(time.Now())
	for class, reading := range readings {
		r.Sensors[class] = reading
	}
	return r
}

func findNode(t *testing.T, nodes []domain.Node, id string) domain.Node {
	t.Helper()
	i := domain.IndexByID(nodes, id)
	if i < 0 {
		t.Fatalf("node %s not found in %d nodes", id, len(nodes))
	}
	return nodes[i]
}

func TestMergeSynthesizesConnectedDevice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	working := configuredNodes()

	out, stats := Merge(working, report(map[string]domain.SensorReading{
		"water": {Connected: true, Value: 42},
	}), testSensors, PolicyRemove, now)

	if len(out) != 3 || stats.Added != 1 {
		t.Fatalf("expected 3 nodes with 1 added, got %d (%+v)", len(out), stats)
	}
	if len(working) != 2 {
		t.Error("Merge must not modify its input")
	}

	water := findNode(t, out, "water")
	if water.Kind != domain.NodeKindDevice || water.Name != "Water Sensor" {
		t.Errorf("unexpected device node %+v", water)
	}
	if water.Coordinates != domain.NewCoordinates(-122.054076, 37.572966) {
		t.Errorf("unexpected coordinates %v", water.Coordinates)
	}
	if water.Temperature != 42 {
		t.Errorf("temperature = %v, want 42", water.Temperature)
	}
	for _, attr := range domain.Attributes {
		if attr != domain.AttrTemperature && water.Features.Get(attr) != 0 {
			t.Errorf("%s = %v, want 0", attr, water.Features.Get(attr))
		}
	}
	if water.LastUpdate == nil || !water.LastUpdate.Equal(now) {
		t.Errorf("LastUpdate = %v, want %v", water.LastUpdate, now)
	}
	if water.Scored() {
		t.Error("a new device node must start unscored")
	}
}

func TestMergeIdempotent(t *testing.T) {
	r := report(map[string]domain.SensorReading{"water": {Connected: true, Value: 42}})
	first, _ := Merge(configuredNodes(), r, testSensors, PolicyRemove, time.Now())

	second, stats := Merge(first, r, testSensors, PolicyRemove, time.Now().Add(time.Minute))

	if stats.Changed() {
		t.Errorf("expected no change on identical readings, got %+v", stats)
	}
	if len(second) != len(first) {
		t.Fatalf("node count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("node %s changed on identical readings", first[i].ID)
		}
	}
}

func TestMergeCarriesScoreOnChange(t *testing.T) {
	scoredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := scoredAt.Add(time.Second)

	working, _ := Merge(configuredNodes(), report(map[string]domain.SensorReading{
		"water": {Connected: true, Value: 10},
	}), testSensors, PolicyRemove, scoredAt)
	i := domain.IndexByID(working, "water")
	working[i] = working[i].WithScore(domain.Score{Value: 0.3, Status: domain.StatusGreen}, scoredAt)

	out, stats := Merge(working, report(map[string]domain.SensorReading{
		"water": {Connected: true, Value: 55},
	}), testSensors, PolicyRemove, now)

	if stats.Updated != 1 {
		t.Fatalf("expected 1 update, got %+v", stats)
	}
	water := findNode(t, out, "water")
	if water.Temperature != 55 {
		t.Errorf("temperature = %v, want 55", water.Temperature)
	}
	if water.ScoreValue() != 0.3 || water.Status != domain.StatusGreen {
		t.Errorf("expected previous score to carry over, got %v %s", water.Score, water.Status)
	}
	if !water.LastUpdate.Equal(now) {
		t.Errorf("LastUpdate = %v, want %v", water.LastUpdate, now)
	}
}

func TestMergeDisconnect(t *testing.T) {
	connected := report(map[string]domain.SensorReading{"water": {Connected: true, Value: 42}})
	disconnected := report(map[string]domain.SensorReading{"water": {Connected: false, Value: 42}})
	working, _ := Merge(configuredNodes(), connected, testSensors, PolicyRemove, time.Now())

	tests := []struct {
		name      string
		report    *domain.GatewayReport
		policy    Policy
		wantWater bool
	}{
		{"disconnected removes", disconnected, PolicyRemove, false},
		{"absent removes", report(nil), PolicyRemove, false},
		{"disconnected kept", disconnected, PolicyKeep, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := Merge(working, tt.report, testSensors, tt.policy, time.Now())
			got := domain.IndexByID(out, "water") >= 0
			if got != tt.wantWater {
				t.Errorf("water present = %v, want %v", got, tt.wantWater)
			}
			if domain.IndexByID(out, "1") < 0 || domain.IndexByID(out, "2") < 0 {
				t.Error("configured nodes must survive a disconnect")
			}
		})
	}
}

func TestMergeNeverTouchesConfiguredNodes(t *testing.T) {
	working := append(configuredNodes(),
		domain.NewConfiguredNode("water", "Reservoir", domain.NewCoordinates(-122.0, 37.5), domain.Features{Rainfall: 0.9}))

	for _, connected := range []bool{true, false} {
		out, stats := Merge(working, report(map[string]domain.SensorReading{
			"water": {Connected: connected, Value: 42},
		}), testSensors, PolicyRemove, time.Now())

		if stats.Shadowed != 1 {
			t.Errorf("connected=%v: expected shadowed sensor, got %+v", connected, stats)
		}
		node := findNode(t, out, "water")
		if node.Kind != domain.NodeKindConfigured || node.Name != "Reservoir" {
			t.Errorf("connected=%v: configured node was replaced: %+v", connected, node)
		}
	}
}

// A water sensor that starts disconnected and later reports 10 grows the node set by one
func TestMergeWaterReconnect(t *testing.T) {
	seeds := []domain.Node{
		domain.NewConfiguredNode("1", "Node 1", domain.NewCoordinates(-121.987, 37.55), domain.Features{}),
		domain.NewConfiguredNode("2", "Node 2", domain.NewCoordinates(-122.045, 37.566), domain.Features{}),
		domain.NewConfiguredNode("3", "Node 3", domain.NewCoordinates(-121.995, 37.562), domain.Features{}),
		domain.NewConfiguredNode("4", "Node 4", domain.NewCoordinates(-121.980, 37.558), domain.Features{}),
		domain.NewConfiguredNode("5", "Node 5", domain.NewCoordinates(-122.010, 37.570), domain.Features{}),
	}

	out, _ := Merge(seeds, report(map[string]domain.SensorReading{
		"water": {Connected: false},
	}), testSensors, PolicyRemove, time.Now())
	if len(out) != 5 {
		t.Fatalf("expected 5 nodes while disconnected, got %d", len(out))
	}

	out, _ = Merge(out, report(map[string]domain.SensorReading{
		"water": {Connected: true, Value: 10},
	}), testSensors, PolicyRemove, time.Now())
	if len(out) != 6 {
		t.Fatalf("expected 6 nodes after reconnect, got %d", len(out))
	}
	if water := findNode(t, out, "water"); water.Temperature != 10 {
		t.Errorf("temperature = %v, want 10", water.Temperature)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"remove", PolicyRemove, false},
		{"keep", PolicyKeep, false},
		{"", PolicyRemove, false},
		{"archive", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestHTTPGatewayFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"water": {"connected": true, "value": 42}, "humidity": {"connected": false, "value": 0}}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second)
	r, err := g.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if !r.Connected("water") || r.Sensors["water"].Value != 42 {
		t.Errorf("unexpected water reading %+v", r.Sensors["water"])
	}
	if r.Connected("humidity") {
		t.Error("humidity should be disconnected")
	}
	if got := r.Classes(); len(got) != 2 || got[0] != "humidity" {
		t.Errorf("Classes() = %v", got)
	}
}

func TestHTTPGatewayFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPGateway(srv.URL, time.Second).Fetch(context.Background())
			if !errors.Is(err, domain.ErrDiscoveryUnavailable) {
				t.Errorf("expected ErrDiscoveryUnavailable, got %v", err)
			}
		})
	}
}

func TestDecodeReport(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, err := DecodeReport(strings.NewReader(`{"water": {"connected": true, "value": 7.5}}`), at)
	if err != nil {
		t.Fatalf("DecodeReport() error: %v", err)
	}
	if !r.FetchedAt.Equal(at) || r.Sensors["water"].Value != 7.5 {
		t.Errorf("unexpected report %+v", r)
	}
}

type fakeGateway struct {
	report *domain.GatewayReport
	err    error
}

func (f *fakeGateway) Name() string { return "fake" }
func (f *fakeGateway) Start(ctx context.Context) error { return nil }
func (f *fakeGateway) Stop() error { return nil }
func (f *fakeGateway) Fetch(ctx context.Context) (*domain.GatewayReport, error) {
	return f.report, f.err
}

func TestPollerPoll(t *testing.T) {
	gw := &fakeGateway{report: report(map[string]domain.SensorReading{
		"water":    {Connected: true, Value: 140},
		"humidity": {Connected: true, Value: 55},
	})}
	p := NewPoller(gw, testSensors, PolicyRemove)

	res, err := p.Poll(context.Background(), configuredNodes())
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	if len(res.Nodes) != 4 || res.Stats.Added != 2 {
		t.Errorf("expected 4 nodes with 2 added, got %d (%+v)", len(res.Nodes), res.Stats)
	}
	if len(res.Devices) != 2 {
		t.Fatalf("expected 2 device readings, got %d", len(res.Devices))
	}
	if res.Devices[0].Class != "water" || res.Devices[0].Percent != 100 {
		t.Errorf("unexpected water reading %+v", res.Devices[0])
	}
	if humidity := findNode(t, res.Nodes, "humidity"); humidity.Humidity != 55 {
		t.Errorf("humidity = %v, want 55", humidity.Humidity)
	}
}

func TestPollerGatewayFailureKeepsWorkingSet(t *testing.T) {
	p := NewPoller(&fakeGateway{err: errors.New("connection refused")}, testSensors, PolicyRemove)
	working := configuredNodes()

	res, err := p.Poll(context.Background(), working)
	if !errors.Is(err, domain.ErrDiscoveryUnavailable) {
		t.Fatalf("expected ErrDiscoveryUnavailable, got %v", err)
	}
	if len(res.Nodes) != len(working) {
		t.Errorf("expected working set unchanged, got %d nodes", len(res.Nodes))
	}
	if res.Devices != nil {
		t.Errorf("expected no device readings on failure, got %v", res.Devices)
	}
}
