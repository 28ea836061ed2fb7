// Package config provides configuration management for cvswatch.
//
// Endpoints, timings, sensor classes and seed nodes live in a YAML file.
// Service endpoints can additionally be overridden from the environment so
// the same file works across deployments.
//
// Config file locations (priority order):
//  1. $CVSWATCH_CONFIG
//  2. ./cvswatch.yaml
//  3. $XDG_CONFIG_HOME/cvswatch/config.yaml
//  4. ~/.config/cvswatch/config.yaml
//  5. /etc/cvswatch/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cvswatch/internal/domain"
)

const (
	// TransportHTTP polls the gateway's GET /data endpoint
	TransportHTTP = "http"
	// TransportMQTT subscribes to per-class gateway topics
	TransportMQTT = "mqtt"

	// OnDisconnectRemove drops a device node once its sensor disconnects
	OnDisconnectRemove = "remove"
	// OnDisconnectKeep leaves the last synthesized device node in place
	OnDisconnectKeep = "keep"
)

// Environment overrides for service endpoints
const (
	EnvScorerURL  = "CVSWATCH_SCORER_URL"
	EnvGatewayURL = "CVSWATCH_GATEWAY_URL"
	EnvMQTTBroker = "CVSWATCH_MQTT_BROKER"
	EnvRedisURL   = "CVSWATCH_REDIS_URL"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, "", cfg.Validate()
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

// Parse decodes YAML config data, applying defaults and environment overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the settings the dashboard ships with: local scoring
// service and gateway, a one second tick and the five demo locations.
func DefaultConfig() *Config {
	cfg := &Config{
		Version: 1,
		Sensors: DefaultSensors(),
		Nodes:   DefaultNodes(),
	}
	cfg.applyDefaults()
	return cfg
}

// DefaultSensors returns the sensor classes the stock gateway firmware reports
func DefaultSensors() []SensorConfig {
	return []SensorConfig{
		{
			Class:     "water",
			ID:        "water",
			Name:      "Water Sensor",
			Coords:    [2]float64{-122.054076, 37.572966},
			Attribute: string(domain.AttrTemperature),
			Unit:      "units",
		},
		{
			Class:     "humidity",
			ID:        "humidity",
			Name:      "Humidity Sensor",
			Coords:    [2]float64{-122.030120, 37.560310},
			Attribute: string(domain.AttrHumidity),
			Unit:      "%",
		},
	}
}

// DefaultNodes returns the demo locations
func DefaultNodes() []NodeConfig {
	return []NodeConfig{
		{ID: "1", Name: "Node 1", Coords: [2]float64{-121.987, 37.55}, Features: FeaturesConfig{
			Temperature: 0.7, Humidity: 0.4, Rainfall: 0.5, HeatAbsorption: 0.8, ImperviousSurface: 0.7,
			FloodHistory: 0.2, HeatwaveHistory: 0.3, HazardProb: 0.6, TreesMissing: 0.8, ShadeMissing: 0.7, DrainageMissing: 0.9,
		}},
		{ID: "2", Name: "Node 2", Coords: [2]float64{-122.045, 37.566}, Features: FeaturesConfig{
			Temperature: 0.6, Humidity: 0.6, Rainfall: 0.7, HeatAbsorption: 0.5, ImperviousSurface: 0.2,
			FloodHistory: 0.1, HeatwaveHistory: 0.1, HazardProb: 0.2, TreesMissing: 0.1, ShadeMissing: 0.3, DrainageMissing: 0.2,
		}},
		{ID: "3", Name: "Node 3", Coords: [2]float64{-121.995, 37.562}, Features: FeaturesConfig{
			Temperature: 0.8, Humidity: 0.5, Rainfall: 0.6, HeatAbsorption: 0.7, ImperviousSurface: 0.6,
			FloodHistory: 0.3, HeatwaveHistory: 0.4, HazardProb: 0.5, TreesMissing: 0.6, ShadeMissing: 0.5, DrainageMissing: 0.7,
		}},
		{ID: "4", Name: "Node 4", Coords: [2]float64{-121.980, 37.558}, Features: FeaturesConfig{
			Temperature: 0.5, Humidity: 0.7, Rainfall: 0.4, HeatAbsorption: 0.6, ImperviousSurface: 0.5,
			FloodHistory: 0.2, HeatwaveHistory: 0.2, HazardProb: 0.3, TreesMissing: 0.4, ShadeMissing: 0.6, DrainageMissing: 0.5,
		}},
		{ID: "5", Name: "Node 5", Coords: [2]float64{-122.010, 37.570}, Features: FeaturesConfig{
			Temperature: 0.6, Humidity: 0.4, Rainfall: 0.5, HeatAbsorption: 0.8, ImperviousSurface: 0.7,
			FloodHistory: 0.3, HeatwaveHistory: 0.3, HazardProb: 0.4, TreesMissing: 0.7, ShadeMissing: 0.6, DrainageMissing: 0.8,
		}},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./cvswatch.db"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(time.Second)
	}
	if c.Scoring.URL == "" {
		c.Scoring.URL = "http://localhost:8000"
	}
	if c.Scoring.Timeout == 0 {
		c.Scoring.Timeout = Duration(3 * time.Second)
	}
	if c.Scoring.MaxConcurrent <= 0 {
		c.Scoring.MaxConcurrent = 16
	}
	if c.Gateway.Transport == "" {
		c.Gateway.Transport = TransportHTTP
	}
	if c.Gateway.URL == "" {
		c.Gateway.URL = "http://10.0.0.136"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = Duration(2 * time.Second)
	}
	if c.Gateway.MQTT.Broker == "" {
		c.Gateway.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.Gateway.MQTT.TopicPrefix == "" {
		c.Gateway.MQTT.TopicPrefix = "cvswatch/devices"
	}
	if c.Gateway.MQTT.ClientID == "" {
		c.Gateway.MQTT.ClientID = "cvswatch"
	}
	if c.Gateway.MQTT.StaleAfter == 0 {
		c.Gateway.MQTT.StaleAfter = Duration(30 * time.Second)
	}
	if c.Discovery.OnDisconnect == "" {
		c.Discovery.OnDisconnect = OnDisconnectRemove
	}
	if c.Sensors == nil {
		c.Sensors = DefaultSensors()
	}
	if c.Analytics.OfflineAfter == 0 {
		c.Analytics.OfflineAfter = Duration(24 * time.Minute)
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "cvswatch:snapshots"
	}
	if c.Redis.LatestKey == "" {
		c.Redis.LatestKey = "cvswatch:latest"
	}
	if c.Redis.LatestTTL == 0 {
		c.Redis.LatestTTL = Duration(time.Minute)
	}
}

// applyEnv lets the environment override service endpoints
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvScorerURL); v != "" {
		c.Scoring.URL = v
	}
	if v := os.Getenv(EnvGatewayURL); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		c.Gateway.MQTT.Broker = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Sync.Interval.Duration() <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Scoring.Timeout.Duration() <= 0 {
		return fmt.Errorf("scoring.timeout must be positive")
	}
	switch c.Gateway.Transport {
	case TransportHTTP, TransportMQTT:
	default:
		return fmt.Errorf("gateway.transport must be %q or %q, got %q", TransportHTTP, TransportMQTT, c.Gateway.Transport)
	}
	switch c.Discovery.OnDisconnect {
	case OnDisconnectRemove, OnDisconnectKeep:
	default:
		return fmt.Errorf("discovery.on_disconnect must be %q or %q, got %q", OnDisconnectRemove, OnDisconnectKeep, c.Discovery.OnDisconnect)
	}

	if _, err := c.SensorClasses(); err != nil {
		return err
	}

	seeds, err := c.SeedNodes()
	if err != nil {
		return err
	}

	// Device ids must not shadow configured nodes
	for _, s := range c.Sensors {
		if domain.IndexByID(seeds, s.ID) >= 0 {
			return fmt.Errorf("sensor %s: id %q collides with a configured node", s.Class, s.ID)
		}
	}
	return nil
}

// SensorClasses converts the sensor section into domain sensor classes
func (c *Config) SensorClasses() ([]domain.SensorClass, error) {
	classes := make([]domain.SensorClass, 0, len(c.Sensors))
	seenClass := make(map[string]bool)
	seenID := make(map[string]bool)

	for _, s := range c.Sensors {
		if s.Class == "" || s.ID == "" {
			return nil, fmt.Errorf("sensor entries need class and id")
		}
		if seenClass[s.Class] {
			return nil, fmt.Errorf("sensor class %q listed twice", s.Class)
		}
		if seenID[s.ID] {
			return nil, fmt.Errorf("sensor id %q listed twice", s.ID)
		}
		seenClass[s.Class] = true
		seenID[s.ID] = true

		attr, err := domain.ParseAttribute(s.Attribute)
		if err != nil {
			return nil, fmt.Errorf("sensor %s: %w", s.Class, err)
		}

		name := s.Name
		if name == "" {
			name = s.Class
		}

		classes = append(classes, domain.SensorClass{
			Class:       s.Class,
			NodeID:      s.ID,
			Name:        name,
			Coordinates: domain.Coordinates(s.Coords),
			Attribute:   attr,
			Unit:        s.Unit,
		})
	}
	return classes, nil
}

// SeedNodes converts the nodes section into configured domain nodes
func (c *Config) SeedNodes() ([]domain.Node, error) {
	nodes := make([]domain.Node, 0, len(c.Nodes))
	for _, nc := range c.Nodes {
		node := domain.NewConfiguredNode(nc.ID, nc.Name, domain.Coordinates(nc.Coords), nc.Features.toDomain())
		if err := node.Validate(); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := domain.CheckUnique(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Scoring: %s (timeout %s, concurrency %d)\n",
		c.Scoring.URL, c.Scoring.Timeout.Duration(), c.Scoring.MaxConcurrent)
	gateway := c.Gateway.URL
	if c.Gateway.Transport == TransportMQTT {
		gateway = c.Gateway.MQTT.Broker + " " + c.Gateway.MQTT.TopicPrefix
	}
	summary += fmt.Sprintf("Gateway: %s %s, on disconnect: %s\n",
		c.Gateway.Transport, gateway, c.Discovery.OnDisconnect)
	summary += fmt.Sprintf("Sync every %s, %d seed nodes, %d sensor classes",
		c.Sync.Interval.Duration(), len(c.Nodes), len(c.Sensors))
	return summary
}

func (f FeaturesConfig) toDomain() domain.Features {
	return domain.Features{
		Temperature:       f.Temperature,
		Humidity:          f.Humidity,
		Rainfall:          f.Rainfall,
		HeatAbsorption:    f.HeatAbsorption,
		ImperviousSurface: f.ImperviousSurface,
		FloodHistory:      f.FloodHistory,
		HeatwaveHistory:   f.HeatwaveHistory,
		HazardProb:        f.HazardProb,
		TreesMissing:      f.TreesMissing,
		ShadeMissing:      f.ShadeMissing,
		DrainageMissing:   f.DrainageMissing,
	}
}
