package domain

import "fmt"

// Attribute names one of the normalized feature attributes
type Attribute string

const (
	AttrTemperature       Attribute = "temperature"
	AttrHumidity          Attribute = "humidity"
	AttrRainfall          Attribute = "rainfall"
	AttrHeatAbsorption    Attribute = "heat_absorption"
	AttrImperviousSurface Attribute = "impervious_surface"
	AttrFloodHistory      Attribute = "flood_history"
	AttrHeatwaveHistory   Attribute = "heatwave_history"
	AttrHazardProb        Attribute = "hazard_prob"
	AttrTreesMissing      Attribute = "trees_missing"
	AttrShadeMissing      Attribute = "shade_missing"
	AttrDrainageMissing   Attribute = "drainage_missing"
)

// Attributes lists every feature attribute in wire order
var Attributes = []Attribute{
	AttrTemperature,
	AttrHumidity,
	AttrRainfall,
	AttrHeatAbsorption,
	AttrImperviousSurface,
	AttrFloodHistory,
	AttrHeatwaveHistory,
	AttrHazardProb,
	AttrTreesMissing,
	AttrShadeMissing,
	AttrDrainageMissing,
}

// ParseAttribute converts a config or wire string to an Attribute
func ParseAttribute(s string) (Attribute, error) {
	for _, a := range Attributes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown feature attribute %q", s)
}

// Features holds the 11 normalized attributes fed to the scoring service.
// Each is conceptually in [0,1]; raw device readings are stored unscaled.
type Features struct {
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	Humidity          float64 `json:"humidity" yaml:"humidity"`
	Rainfall          float64 `json:"rainfall" yaml:"rainfall"`
	HeatAbsorption    float64 `json:"heat_absorption" yaml:"heat_absorption"`
	ImperviousSurface float64 `json:"impervious_surface" yaml:"impervious_surface"`
	FloodHistory      float64 `json:"flood_history" yaml:"flood_history"`
	HeatwaveHistory   float64 `json:"heatwave_history" yaml:"heatwave_history"`
	HazardProb        float64 `json:"hazard_prob" yaml:"hazard_prob"`
	TreesMissing      float64 `json:"trees_missing" yaml:"trees_missing"`
	ShadeMissing      float64 `json:"shade_missing" yaml:"shade_missing"`
	DrainageMissing   float64 `json:"drainage_missing" yaml:"drainage_missing"`
}

// Get returns the value of a single attribute
func (f Features) Get(a Attribute) float64 {
	switch a {
	case AttrTemperature:
		return f.Temperature
	case AttrHumidity:
		return f.Humidity
	case AttrRainfall:
		return f.Rainfall
	case AttrHeatAbsorption:
		return f.HeatAbsorption
	case AttrImperviousSurface:
		return f.ImperviousSurface
	case AttrFloodHistory:
		return f.FloodHistory
	case AttrHeatwaveHistory:
		return f.HeatwaveHistory
	case AttrHazardProb:
		return f.HazardProb
	case AttrTreesMissing:
		return f.TreesMissing
	case AttrShadeMissing:
		return f.ShadeMissing
	case AttrDrainageMissing:
		return f.DrainageMissing
	}
	return 0
}

// Set assigns a single attribute
func (f *Features) Set(a Attribute, v float64) {
	switch a {
	case AttrTemperature:
		f.Temperature = v
	case AttrHumidity:
		f.Humidity = v
	case AttrRainfall:
		f.Rainfall = v
	case AttrHeatAbsorption:
		f.HeatAbsorption = v
	case AttrImperviousSurface:
		f.ImperviousSurface = v
	case AttrFloodHistory:
		f.FloodHistory = v
	case AttrHeatwaveHistory:
		f.HeatwaveHistory = v
	case AttrHazardProb:
		f.HazardProb = v
	case AttrTreesMissing:
		f.TreesMissing = v
	case AttrShadeMissing:
		f.ShadeMissing = v
	case AttrDrainageMissing:
		f.DrainageMissing = v
	}
}

// OnlyAttribute returns a Features value with a set to v and everything else zeroed
func OnlyAttribute(a Attribute, v float64) Features {
	var f Features
	f.Set(a, v)
	return f
}
