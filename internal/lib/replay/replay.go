// Package replay drives a navigation session with synthetic fixes generated
// along a route, for offline testing of the session logic.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
)

// Detour pushes fixes sideways for part of the drive to simulate leaving the
// route.
type Detour struct {
	StartMeters  float64
	LengthMeters float64

	// OffsetMeters is measured to the right of the direction of travel;
	// negative values go left.
	OffsetMeters float64
}

// Simulator generates fixes moving along a polyline at constant speed.
type Simulator struct {
	Points   []geo.Point
	SpeedKmh float64
	Interval time.Duration
	Start    time.Time
	Detour   *Detour
}

// Fixes returns one fix per Interval from the start of the polyline to its
// end. The final fix is always the last point.
func (s Simulator) Fixes() ([]navigation.Location, error) {
	if len(s.Points) < 2 {
		return nil, fmt.Errorf("replay needs at least 2 points, got %d", len(s.Points))
	}
	if s.SpeedKmh <= 0 || s.Interval <= 0 {
		return nil, fmt.Errorf("replay needs a positive speed and interval")
	}

	total := geo.PathLength(s.Points, 0, len(s.Points)-1)
	stride := s.SpeedKmh / 3.6 * s.Interval.Seconds()

	// Tolerate rounding so a route that is an exact multiple of the stride
	// does not get a duplicate final fix.
	count := int(math.Ceil(total/stride - 1e-9))

	fixes := make([]navigation.Location, 0, count+1)
	for i := 0; i <= count; i++ {
		traveled := min(float64(i)*stride, total)
		if i == count {
			traveled = total
		}
		point, heading := pointAlong(s.Points, traveled)
		if d := s.Detour; d != nil && traveled >= d.StartMeters && traveled <= d.StartMeters+d.LengthMeters {
			point = geo.Destination(point, heading+90, d.OffsetMeters)
		}
		fixes = append(fixes, navigation.Location{
			Point:          point,
			SpeedKmh:       s.SpeedKmh,
			HeadingDegrees: heading,
			Timestamp:      s.Start.Add(time.Duration(i) * s.Interval),
		})
	}
	return fixes, nil
}

// pointAlong returns the point meters along the polyline and the bearing of
// the segment it lies on.
func pointAlong(points []geo.Point, meters float64) (geo.Point, float64) {
	for i := 0; i < len(points)-1; i++ {
		length := geo.Haversine(points[i], points[i+1])
		if meters <= length || i == len(points)-2 {
			t := 0.0
			if length > 0 {
				t = min(meters/length, 1)
			}
			return geo.Interpolate(points[i], points[i+1], t), geo.Bearing(points[i], points[i+1])
		}
		meters -= length
	}
	return points[len(points)-1], 0
}

// Updater is the part of a navigation session the player drives.
type Updater interface {
	Update(ctx context.Context, loc navigation.Location) (navigation.PublicState, error)
}

// PlayOptions controls playback.
type PlayOptions struct {
	// Clock, when set, is moved to each fix's timestamp before the update.
	Clock *clock.Fake

	// RealTime sleeps between fixes for the gap between their timestamps.
	RealTime bool

	// OnFix observes every fix and the state it produced.
	OnFix func(loc navigation.Location, state navigation.PublicState)
}

// Play feeds fixes to u until they run out, the session reaches a terminal
// state, or ctx is done. When u also has a Wait method it is called after
// each update that leaves the session loading, so offline replays see the
// reroute complete before the next fix.
func Play(ctx context.Context, u Updater, fixes []navigation.Location, opts PlayOptions) (navigation.PublicState, error) {
	ctx = logging.EnsureLogger(ctx)
	waiter, _ := u.(interface{ Wait() })

	var state navigation.PublicState
	for i, fix := range fixes {
		if opts.RealTime && i > 0 {
			gap := fix.Timestamp.Sub(fixes[i-1].Timestamp)
			select {
			case <-ctx.Done():
				return state, ctx.Err()
			case <-time.After(gap):
			}
		} else if err := ctx.Err(); err != nil {
			return state, err
		}

		if opts.Clock != nil {
			opts.Clock.Set(fix.Timestamp)
		}

		var err error
		state, err = u.Update(ctx, fix)
		if errors.Is(err, navigation.ErrNotActive) {
			return state, nil
		}
		if err != nil {
			return state, err
		}
		if opts.OnFix != nil {
			opts.OnFix(fix, state)
		}

		switch {
		case state.Status.IsTerminal():
			logging.Infow(ctx, "Replay: session finished", "status", state.Status, "fix", i)
			return state, nil
		case state.Status == navigation.StatusLoading && waiter != nil:
			waiter.Wait()
		}
	}
	return state, nil
}
