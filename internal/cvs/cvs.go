// Package cvs implements the reference Community Vulnerability Score formula.
//
// The dashboard never imports this package for scoring; it talks to whatever
// service answers POST /compute_cvs. cmd/cvsd serves this formula so the
// dashboard can run against a local scorer.
//
// The score is a weighted blend of three sub-scores and four direct inputs:
//
//	sensor     = 0.5*temperature + 0.3*(1-humidity) + 0.2*(1-rainfall)
//	historical = 0.5*flood_history + 0.5*heatwave_history
//	infra      = 0.4*trees_missing + 0.3*shade_missing + 0.3*drainage_missing
//
//	cvs = 0.20*sensor + 0.20*heat_absorption + 0.15*impervious_surface
//	    + 0.15*historical + 0.20*hazard_prob + 0.10*infra
//
// The result is clamped to [0,1] and rounded to three decimals.
package cvs

import (
	"math"

	"cvswatch/internal/domain"
)

// Band thresholds, inclusive upper bounds
const (
	GreenMax  = 0.45
	YellowMax = 0.70
)

// Breakdown exposes the intermediate sub-scores of one computation
type Breakdown struct {
	Sensor     float64 `json:"sensor"`
	Historical float64 `json:"historical"`
	Infra      float64 `json:"infra"`
	Raw        float64 `json:"raw"`
}

// Compute scores a feature set
func Compute(f domain.Features) domain.Score {
	score, _ := Explain(f)
	return score
}

// Explain scores a feature set and returns the sub-scores that produced it
func Explain(f domain.Features) (domain.Score, Breakdown) {
	b := Breakdown{
		Sensor:     f.Temperature*0.5 + (1-f.Humidity)*0.3 + (1-f.Rainfall)*0.2,
		Historical: f.FloodHistory*0.5 + f.HeatwaveHistory*0.5,
		Infra:      f.TreesMissing*0.4 + f.ShadeMissing*0.3 + f.DrainageMissing*0.3,
	}

	b.Raw = b.Sensor*0.2 +
		f.HeatAbsorption*0.2 +
		f.ImperviousSurface*0.15 +
		b.Historical*0.15 +
		f.HazardProb*0.2 +
		b.Infra*0.1

	clamped := math.Max(0, math.Min(1, b.Raw))

	// The band is taken before rounding
	return domain.Score{
		Value:  math.Round(clamped*1000) / 1000,
		Status: Band(clamped),
	}, b
}

// Band maps a score onto its risk band
func Band(v float64) domain.Status {
	switch {
	case v <= GreenMax:
		return domain.StatusGreen
	case v <= YellowMax:
		return domain.StatusYellow
	default:
		return domain.StatusRed
	}
}
