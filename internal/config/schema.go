package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Sync      SyncConfig      `yaml:"sync"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Sensors   []SensorConfig  `yaml:"sensors"`
	Nodes     []NodeConfig    `yaml:"nodes"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Redis     RedisConfig     `yaml:"redis"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path           string   `yaml:"path"`
	HistoryRetain  Duration `yaml:"history_retain"` // 0 keeps everything
	RestoreOnStart bool     `yaml:"restore_on_start"`
}

// SyncConfig controls the poll-score-commit loop
type SyncConfig struct {
	Interval Duration `yaml:"interval"`
}

// ScoringConfig points at the external CVS service
type ScoringConfig struct {
	URL           string   `yaml:"url"`
	Timeout       Duration `yaml:"timeout"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// GatewayConfig selects and configures the device gateway transport
type GatewayConfig struct {
	Transport string     `yaml:"transport"` // http or mqtt
	URL       string     `yaml:"url"`
	Timeout   Duration   `yaml:"timeout"`
	MQTT      MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds settings for the MQTT gateway transport
type MQTTConfig struct {
	Broker      string   `yaml:"broker"`
	TopicPrefix string   `yaml:"topic_prefix"`
	ClientID    string   `yaml:"client_id"`
	StaleAfter  Duration `yaml:"stale_after"`
}

// DiscoveryConfig controls how gateway reports are merged into the node set
type DiscoveryConfig struct {
	OnDisconnect string `yaml:"on_disconnect"` // remove or keep
}

// SensorConfig maps a gateway sensor class onto a device node
type SensorConfig struct {
	Class     string     `yaml:"class"`
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Coords    [2]float64 `yaml:"coords"`
	Attribute string     `yaml:"attribute"`
	Unit      string     `yaml:"unit"`
}

// NodeConfig seeds a configured node
type NodeConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Coords   [2]float64     `yaml:"coords"`
	Features FeaturesConfig `yaml:",inline"`
}

// FeaturesConfig mirrors domain.Features for YAML input
type FeaturesConfig struct {
	Temperature       float64 `yaml:"temperature"`
	Humidity          float64 `yaml:"humidity"`
	Rainfall          float64 `yaml:"rainfall"`
	HeatAbsorption    float64 `yaml:"heat_absorption"`
	ImperviousSurface float64 `yaml:"impervious_surface"`
	FloodHistory      float64 `yaml:"flood_history"`
	HeatwaveHistory   float64 `yaml:"heatwave_history"`
	HazardProb        float64 `yaml:"hazard_prob"`
	TreesMissing      float64 `yaml:"trees_missing"`
	ShadeMissing      float64 `yaml:"shade_missing"`
	DrainageMissing   float64 `yaml:"drainage_missing"`
}

// AnalyticsConfig tunes derived analytics
type AnalyticsConfig struct {
	OfflineAfter Duration `yaml:"offline_after"`
}

// RedisConfig enables the snapshot relay when URL is set
type RedisConfig struct {
	URL       string   `yaml:"url"`
	Channel   string   `yaml:"channel"`
	LatestKey string   `yaml:"latest_key"`
	LatestTTL Duration `yaml:"latest_ttl"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
