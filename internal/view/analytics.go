package view

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"cvswatch/internal/domain"
)

// DefaultOfflineAfter is how long a node may go without fresh data before
// it counts as offline
const DefaultOfflineAfter = 24 * time.Minute

// Bar is one node in the CVS bar chart. CVS is a percentage.
type Bar struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	CVS    float64       `json:"cvs"`
	Status domain.Status `json:"status,omitempty"`
	Scored bool          `json:"scored"`
}

// StatusCounts counts nodes per risk band
type StatusCounts struct {
	Green    int `json:"green"`
	Yellow   int `json:"yellow"`
	Red      int `json:"red"`
	Unscored int `json:"unscored"`
}

// Summary is the Analytics view of one snapshot
type Summary struct {
	Ready       bool         `json:"ready"`
	Version     uint64       `json:"version"`
	Total       int          `json:"total"`
	Scored      int          `json:"scored"`
	Offline     int          `json:"offline"`
	AverageCVS  float64      `json:"avg_cvs"`
	StdDevCVS   float64      `json:"stddev_cvs"`
	SafetyScore float64      `json:"safety_score"`
	Statuses    StatusCounts `json:"statuses"`
	Bars        []Bar        `json:"bars"`
}

// Summarize computes the Analytics view. Average and deviation cover scored
// nodes only. A node is offline when neither its readings nor its score are
// fresher than offlineAfter.
func Summarize(snap *domain.Snapshot, now time.Time, offlineAfter time.Duration) Summary {
	if offlineAfter <= 0 {
		offlineAfter = DefaultOfflineAfter
	}

	sum := Summary{Bars: []Bar{}}
	if snap == nil {
		return sum
	}
	sum.Ready = snap.Committed()
	sum.Version = snap.Version
	sum.Total = len(snap.Nodes)

	scores := make([]float64, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		bar := Bar{ID: n.ID, Name: n.Name, Status: n.Status, Scored: n.Scored()}
		if n.Scored() {
			scores = append(scores, n.ScoreValue())
			bar.CVS = round2(n.ScoreValue() * 100)
		}
		sum.Bars = append(sum.Bars, bar)

		switch n.Status {
		case domain.StatusGreen:
			sum.Statuses.Green++
		case domain.StatusYellow:
			sum.Statuses.Yellow++
		case domain.StatusRed:
			sum.Statuses.Red++
		default:
			sum.Statuses.Unscored++
		}

		if fresh := n.Freshest(); fresh == nil || now.Sub(*fresh) > offlineAfter {
			sum.Offline++
		}
	}

	sum.Scored = len(scores)
	if len(scores) > 0 {
		mean := stat.Mean(scores, nil)
		sum.AverageCVS = round3(mean)
		sum.SafetyScore = round2((1 - mean) * 100)
	}
	if len(scores) > 1 {
		sum.StdDevCVS = round3(stat.StdDev(scores, nil))
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
