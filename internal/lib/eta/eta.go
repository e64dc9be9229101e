// Package eta estimates remaining travel time proportionally to the
// remaining distance of the active route.
package eta

import (
	"fmt"
	"math"
	"time"
)

const (
	MinTrafficFactor = 0.5
	MaxTrafficFactor = 3.0
)

// RemainingTime returns the remaining travel time in seconds:
//
//	remaining / total * duration * clamp(trafficFactor, 0.5, 3.0)
//
// Instantaneous speed is deliberately ignored so the estimate does not
// jitter; only a new route changes the baseline. A non-positive total yields
// 0. The result is not rounded.
func RemainingTime(remainingDistance, totalDistance, totalDuration, trafficFactor float64) float64 {
	if totalDistance <= 0 || math.IsNaN(totalDistance) {
		return 0
	}
	remaining := math.Max(0, remainingDistance)
	return remaining / totalDistance * totalDuration * ClampTrafficFactor(trafficFactor)
}

// ClampTrafficFactor limits the factor to [0.5, 3.0]. Zero or NaN means no
// traffic information and maps to 1.
func ClampTrafficFactor(factor float64) float64 {
	if factor == 0 || math.IsNaN(factor) {
		return 1
	}
	return math.Max(MinTrafficFactor, math.Min(MaxTrafficFactor, factor))
}

// Format renders seconds for display, e.g. "1 h 05 min" or "4 min".
func Format(seconds float64) string {
	d := time.Duration(math.Round(seconds)) * time.Second
	if d < time.Minute {
		return "< 1 min"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%d h %02d min", hours, minutes)
	}
	return fmt.Sprintf("%d min", minutes)
}

// ArrivalTime adds the remaining seconds to now.
func ArrivalTime(now time.Time, seconds float64) time.Time {
	return now.Add(time.Duration(seconds * float64(time.Second)))
}
