package routing

import (
	"fmt"
	"math"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
)

const (
	// DefaultWindow is the number of points searched on each side of the
	// last known index.
	DefaultWindow = 50

	// DefaultWideWindow is used for the second pass after a GPS jump.
	DefaultWideWindow = 100

	// DefaultRetryThresholdMeters triggers the wide second pass.
	DefaultRetryThresholdMeters = 80.0
)

// Snapper projects locations onto a route polyline using a windowed search
// seeded by the previously snapped index.
type Snapper struct {
	Window               int
	WideWindow           int
	RetryThresholdMeters float64
}

// NewSnapper creates a Snapper with the default window sizes.
func NewSnapper() *Snapper {
	return &Snapper{
		Window:               DefaultWindow,
		WideWindow:           DefaultWideWindow,
		RetryThresholdMeters: DefaultRetryThresholdMeters,
	}
}

// Snap finds the route point closest to location using the default Snapper.
func Snap(location geo.Point, points []geo.Point, lastKnownIndex *int) (SnapResult, error) {
	return NewSnapper().Snap(location, points, lastKnownIndex)
}

// Snap finds the route point closest to location. With no lastKnownIndex
// the whole route is scanned once; otherwise only a window around it is
// searched, widened once if the narrow result is further than
// RetryThresholdMeters away. The wide result is returned even if it is still
// over the threshold; the caller treats that as a likely off-route fix.
func (s *Snapper) Snap(location geo.Point, points []geo.Point, lastKnownIndex *int) (SnapResult, error) {
	if len(points) == 0 {
		return SnapResult{}, fmt.Errorf("%w: cannot snap to a route with no points", ErrInvalidRoute)
	}

	if lastKnownIndex == nil {
		return searchRange(location, points, 0, len(points)-1), nil
	}

	result := s.searchWindow(location, points, *lastKnownIndex, s.Window)
	if result.DistanceToRouteMeters > s.RetryThresholdMeters && s.WideWindow > s.Window {
		result = s.searchWindow(location, points, *lastKnownIndex, s.WideWindow)
	}
	return result, nil
}

func (s *Snapper) searchWindow(location geo.Point, points []geo.Point, center, window int) SnapResult {
	center = clamp(center, 0, len(points)-1)
	lo := clamp(center-window, 0, len(points)-1)
	hi := clamp(center+window, 0, len(points)-1)
	return searchRange(location, points, lo, hi)
}

// searchRange scans points[lo..hi] inclusive. The first minimum wins.
func searchRange(location geo.Point, points []geo.Point, lo, hi int) SnapResult {
	best := SnapResult{ClosestIndex: lo, DistanceToRouteMeters: math.Inf(1)}
	for i := lo; i <= hi; i++ {
		d := geo.Haversine(location, points[i])
		if d < best.DistanceToRouteMeters {
			best.ClosestIndex = i
			best.DistanceToRouteMeters = d
		}
	}
	best.ClosestPoint = points[best.ClosestIndex]
	return best
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
