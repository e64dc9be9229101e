package routing

import (
	"math"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
)

// StepPassedMeters is the advisory distance under which a maneuver counts as
// reached and callers may switch to displaying the next instruction.
const StepPassedMeters = 20.0

// StepPassed reports whether a maneuver at distanceToManeuver should be
// considered passed. Advisory only; CurrentStep does not apply it.
func StepPassed(distanceToManeuver float64) bool {
	return distanceToManeuver < StepPassedMeters
}

// CurrentStep maps a snapped position to the upcoming maneuver.
//
// Progress along the route is approximated by closestIndex / len(points) and
// compared against each step's cumulative distance fraction of the route
// total; the first step whose fraction exceeds the progress is upcoming. The
// distance to it is the polyline length from the snapped index to the step's
// estimated index (fraction * len(points)). Index units beyond the end of the
// polyline are priced at the route's mean distance per point. The
// approximation diverges on routes with very uneven point density.
func CurrentStep(snap SnapResult, route Route) (StepProgress, error) {
	if err := route.Validate(); err != nil {
		return StepProgress{}, err
	}

	n := len(route.Points)
	idx := clamp(snap.ClosestIndex, 0, n-1)
	progress := float64(idx) / float64(n)

	total := route.TotalDistanceMeters
	if total <= 0 {
		total = route.StepDistanceSum()
	}

	if total > 0 {
		cumulative := 0.0
		for i, step := range route.Steps {
			cumulative += step.DistanceMeters
			fraction := cumulative / total
			if fraction <= progress {
				continue
			}

			distance := distanceToIndex(route.Points, idx, fraction*float64(n), total/float64(n))
			remaining := distance
			for _, later := range route.Steps[i+1:] {
				remaining += later.DistanceMeters
			}
			return StepProgress{
				Index:                    i,
				Step:                     step,
				DistanceToManeuverMeters: distance,
				RemainingDistanceMeters:  remaining,
			}, nil
		}
	}

	// Within the final step: the maneuver is the end of the route.
	last := len(route.Steps) - 1
	remaining := geo.PathLength(route.Points, idx, n-1)
	return StepProgress{
		Index:                    last,
		Step:                     route.Steps[last],
		DistanceToManeuverMeters: remaining,
		RemainingDistanceMeters:  remaining,
	}, nil
}

// distanceToIndex measures along the polyline from points[from] to the
// fractional index target.
func distanceToIndex(points []geo.Point, from int, target, metersPerIndex float64) float64 {
	if target <= float64(from) {
		return 0
	}

	last := float64(len(points) - 1)
	within := math.Min(target, last)
	whole := int(within)

	distance := geo.PathLength(points, from, whole)
	if frac := within - float64(whole); frac > 0 {
		distance += frac * geo.Haversine(points[whole], points[whole+1])
	}
	if target > last {
		distance += (target - last) * metersPerIndex
	}
	return distance
}
