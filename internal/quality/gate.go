// Package quality filters decoded measurements for physical
// plausibility and scores a completed import against the auto-approval
// policy. It is purely computational; verdicts are derived fresh from
// each batch and never cached.
package quality

import "bgeigie-hub/internal/bgeigie"

// Per-record plausibility bounds. The origin epsilon guards against the
// coordinate converter's unknown-coordinate 0.0 sentinel surfacing as a
// reading off the coast of West Africa.
const (
	MaxPlausibleCPM  = 50000
	OriginEpsilonDeg = 0.001
)

// Thresholds encode the auto-approval policy. They are policy, not
// algorithm: keep them tunable per deployment.
type Thresholds struct {
	// MinRecords is the smallest accepted batch eligible for
	// auto-approval.
	MinRecords int
	// MaxCPM is the highest count-rate allowed anywhere in the batch.
	MaxCPM int
	// MinGPSFraction is the minimum share of records with usable
	// coordinates.
	MinGPSFraction float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinRecords: 100, MaxCPM: 10000, MinGPSFraction: 0.90}
}

// Verdict is the aggregate quality of an accepted batch.
type Verdict struct {
	Total       int     `json:"total"`
	GPSValid    int     `json:"gps_valid"`
	GPSFraction float64 `json:"gps_fraction"`
	MaxCPM      int     `json:"max_cpm"`
	AutoApprove bool    `json:"auto_approve"`
}

// IsPlausible reports whether a single measurement is physically
// plausible: count-rate within bounds, coordinates within range and
// away from the origin sentinel.
func IsPlausible(m bgeigie.Measurement) bool {
	if m.CPM < 0 || m.CPM > MaxPlausibleCPM {
		return false
	}
	return hasFix(m.Latitude, m.Longitude)
}

// Filter returns the measurements passing IsPlausible. Rejected records
// are dropped silently; only the aggregate verdict surfaces quality.
func Filter(ms []bgeigie.Measurement) []bgeigie.Measurement {
	out := make([]bgeigie.Measurement, 0, len(ms))
	for _, m := range ms {
		if IsPlausible(m) {
			out = append(out, m)
		}
	}
	return out
}

// Gate scores accepted batches against its thresholds.
type Gate struct {
	thresholds Thresholds
}

func NewGate(t Thresholds) *Gate {
	if t.MinRecords <= 0 {
		t = DefaultThresholds()
	}
	return &Gate{thresholds: t}
}

// Evaluate computes the verdict over a batch that already passed the
// per-record filter.
func (g *Gate) Evaluate(ms []bgeigie.Measurement) Verdict {
	v := Verdict{Total: len(ms)}
	for _, m := range ms {
		if m.CPM > v.MaxCPM {
			v.MaxCPM = m.CPM
		}
		if hasFix(m.Latitude, m.Longitude) {
			v.GPSValid++
		}
	}
	if v.Total > 0 {
		v.GPSFraction = float64(v.GPSValid) / float64(v.Total)
	}
	v.AutoApprove = v.Total >= g.thresholds.MinRecords &&
		v.MaxCPM <= g.thresholds.MaxCPM &&
		v.GPSFraction >= g.thresholds.MinGPSFraction
	return v
}

func hasFix(lat, lon float64) bool {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return abs(lat) > OriginEpsilonDeg || abs(lon) > OriginEpsilonDeg
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
