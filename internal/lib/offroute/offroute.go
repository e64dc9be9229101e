// Package offroute turns per-fix distances from the route into a confirmed
// off-route signal using speed-dependent thresholds and a time hysteresis.
package offroute

import (
	"math"
	"time"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

const (
	// DefaultGrace is how long the distance must stay over threshold before
	// the detector confirms the vehicle is off route.
	DefaultGrace = 3 * time.Second

	LowSpeedThresholdMeters    = 30.0
	MediumSpeedThresholdMeters = 50.0
	HighSpeedThresholdMeters   = 80.0

	lowSpeedLimitKmh  = 40.0
	highSpeedLimitKmh = 80.0
)

// State is the hysteresis state threaded through successive checks. The zero
// value means "on route".
type State struct {
	FirstOffRoute *time.Time `json:"first_off_route,omitempty"`

	// Confirmed is set once the current excursion has been reported.
	Confirmed bool `json:"confirmed"`
}

// Decision is the outcome of one check.
type Decision struct {
	ThresholdMeters float64 `json:"threshold_meters"`

	// Exceeded reports whether this sample is beyond the threshold.
	Exceeded bool `json:"exceeded"`

	// Confirmed is true exactly once per continuous excursion, on the first
	// sample at or after the grace period.
	Confirmed bool `json:"confirmed"`

	// OffRoute stays true from confirmation until a sample falls back under
	// the threshold.
	OffRoute bool `json:"off_route"`
}

// Detector holds the tunables for off-route detection.
type Detector struct {
	Grace time.Duration
}

// NewDetector creates a Detector with the default grace period.
func NewDetector() *Detector {
	return &Detector{Grace: DefaultGrace}
}

// ThresholdFor returns the off-route distance threshold for a speed. Faster
// traffic gets a wider corridor to tolerate multi-lane roads. Unavailable
// speed (negative or NaN) is treated as stationary.
func ThresholdFor(speedKmh float64) float64 {
	speed := NormalizeSpeed(speedKmh)
	switch {
	case speed < lowSpeedLimitKmh:
		return LowSpeedThresholdMeters
	case speed <= highSpeedLimitKmh:
		return MediumSpeedThresholdMeters
	default:
		return HighSpeedThresholdMeters
	}
}

// NormalizeSpeed maps unavailable speed readings to 0.
func NormalizeSpeed(speedKmh float64) float64 {
	if math.IsNaN(speedKmh) || speedKmh < 0 {
		return 0
	}
	return speedKmh
}

// Check evaluates one snapped fix. The returned State replaces the previous
// one; state is never modified in place.
func (d *Detector) Check(snap routing.SnapResult, speedKmh float64, state State, now time.Time) (Decision, State) {
	threshold := ThresholdFor(speedKmh)
	decision := Decision{ThresholdMeters: threshold}

	if snap.DistanceToRouteMeters <= threshold {
		return decision, State{}
	}
	decision.Exceeded = true

	if state.FirstOffRoute == nil {
		first := now
		return decision, State{FirstOffRoute: &first}
	}

	next := State{FirstOffRoute: state.FirstOffRoute, Confirmed: state.Confirmed}
	if now.Sub(*state.FirstOffRoute) >= d.Grace {
		decision.OffRoute = true
		if !state.Confirmed {
			decision.Confirmed = true
			next.Confirmed = true
		}
	}
	return decision, next
}
