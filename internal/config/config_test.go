package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cvswatch/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Sync.Interval.Duration() != time.Second {
		t.Errorf("Sync.Interval = %s, want 1s", cfg.Sync.Interval.Duration())
	}
	if cfg.Scoring.Timeout.Duration() != 3*time.Second {
		t.Errorf("Scoring.Timeout = %s, want 3s", cfg.Scoring.Timeout.Duration())
	}
	if cfg.Discovery.OnDisconnect != OnDisconnectRemove {
		t.Errorf("OnDisconnect = %s, want %s", cfg.Discovery.OnDisconnect, OnDisconnectRemove)
	}
	if cfg.Analytics.OfflineAfter.Duration() != 24*time.Minute {
		t.Errorf("OfflineAfter = %s, want 24m", cfg.Analytics.OfflineAfter.Duration())
	}
	if len(cfg.Nodes) != 5 {
		t.Errorf("expected 5 seed nodes, got %d", len(cfg.Nodes))
	}
}

func TestSeedNodes(t *testing.T) {
	nodes, err := DefaultConfig().SeedNodes()
	if err != nil {
		t.Fatalf("SeedNodes() error: %v", err)
	}

	if len(nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(nodes))
	}
	first := nodes[0]
	if first.ID != "1" || first.Kind != domain.NodeKindConfigured {
		t.Errorf("unexpected first node: %+v", first)
	}
	if first.Coordinates.Lon() != -121.987 || first.Coordinates.Lat() != 37.55 {
		t.Errorf("unexpected coordinates: %v", first.Coordinates)
	}
	if first.DrainageMissing != 0.9 || first.Temperature != 0.7 {
		t.Errorf("features not carried over: %+v", first.Features)
	}
	if first.Scored() {
		t.Error("seed nodes must start unscored")
	}
}

func TestSensorClasses(t *testing.T) {
	classes, err := DefaultConfig().SensorClasses()
	if err != nil {
		t.Fatalf("SensorClasses() error: %v", err)
	}

	if len(classes) != 2 {
		t.Fatalf("expected 2 sensor classes, got %d", len(classes))
	}
	water := classes[0]
	if water.Class != "water" || water.NodeID != "water" || water.Attribute != domain.AttrTemperature {
		t.Errorf("unexpected water class: %+v", water)
	}
	if water.Coordinates != domain.NewCoordinates(-122.054076, 37.572966) {
		t.Errorf("unexpected water coordinates: %v", water.Coordinates)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
sync:
  interval: 500ms
scoring:
  url: http://scorer:8000
  timeout: 1s
gateway:
  transport: mqtt
  mqtt:
    broker: tcp://broker:1883
discovery:
  on_disconnect: keep
nodes:
  - id: a
    name: Alpha
    coords: [-122.0, 37.5]
    temperature: 0.4
    hazard_prob: 0.9
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Sync.Interval.Duration() != 500*time.Millisecond {
		t.Errorf("Sync.Interval = %s, want 500ms", cfg.Sync.Interval.Duration())
	}
	if cfg.Gateway.Transport != TransportMQTT || cfg.Gateway.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("unexpected gateway config: %+v", cfg.Gateway)
	}
	if cfg.Discovery.OnDisconnect != OnDisconnectKeep {
		t.Errorf("OnDisconnect = %s, want keep", cfg.Discovery.OnDisconnect)
	}
	// Unset sections fall back to defaults
	if len(cfg.Sensors) != 2 {
		t.Errorf("expected default sensors, got %d", len(cfg.Sensors))
	}
	if cfg.Gateway.MQTT.TopicPrefix != "cvswatch/devices" {
		t.Errorf("TopicPrefix = %s, want default", cfg.Gateway.MQTT.TopicPrefix)
	}

	nodes, err := cfg.SeedNodes()
	if err != nil {
		t.Fatalf("SeedNodes() error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Temperature != 0.4 || nodes[0].HazardProb != 0.9 {
		t.Errorf("unexpected nodes: %+v", nodes)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad transport",
			yaml:    "gateway:\n  transport: carrier-pigeon\n",
			wantErr: "gateway.transport",
		},
		{
			name:    "bad disconnect policy",
			yaml:    "discovery:\n  on_disconnect: archive\n",
			wantErr: "on_disconnect",
		},
		{
			name:    "duplicate node ids",
			yaml:    "nodes:\n  - {id: a, name: A, coords: [0, 0]}\n  - {id: a, name: B, coords: [1, 1]}\n",
			wantErr: "duplicate node id",
		},
		{
			name:    "unknown attribute",
			yaml:    "sensors:\n  - {class: wind, id: wind, name: Wind, coords: [0, 0], attribute: gusts}\n",
			wantErr: "gusts",
		},
		{
			name:    "sensor id shadows node",
			yaml:    "nodes:\n  - {id: water, name: Pond, coords: [0, 0]}\n",
			wantErr: "collides",
		},
		{
			name:    "bad duration",
			yaml:    "sync:\n  interval: soon\n",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvScorerURL, "http://env-scorer:9000")
	t.Setenv(EnvGatewayURL, "http://env-gateway")
	t.Setenv(EnvRedisURL, "redis://env-redis:6379/0")

	cfg, err := Parse([]byte("scoring:\n  url: http://file-scorer:8000\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Scoring.URL != "http://env-scorer:9000" {
		t.Errorf("Scoring.URL = %s, want env override", cfg.Scoring.URL)
	}
	if cfg.Gateway.URL != "http://env-gateway" {
		t.Errorf("Gateway.URL = %s, want env override", cfg.Gateway.URL)
	}
	if cfg.Redis.URL != "redis://env-redis:6379/0" {
		t.Errorf("Redis.URL = %s, want env override", cfg.Redis.URL)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Sync.Interval = Duration(2 * time.Second)
	cfg.Discovery.OnDisconnect = OnDisconnectKeep

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}

	if loaded.Sync.Interval.Duration() != 2*time.Second {
		t.Errorf("Sync.Interval = %s, want 2s", loaded.Sync.Interval.Duration())
	}
	if loaded.Discovery.OnDisconnect != OnDisconnectKeep {
		t.Errorf("OnDisconnect = %s, want keep", loaded.Discovery.OnDisconnect)
	}
	if len(loaded.Nodes) != 5 || loaded.Nodes[2].Features.Temperature != 0.8 {
		t.Errorf("seed nodes did not round trip: %+v", loaded.Nodes)
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	found := FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	found = FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
