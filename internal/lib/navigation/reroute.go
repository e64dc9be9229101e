package navigation

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// beginRerouteLocked moves to Loading and fetches a new route from the
// vehicle's position in the background. Must be called with s.mu held.
func (s *Session) beginRerouteLocked(ctx context.Context, from geo.Point) {
	s.status = StatusLoading
	s.state.RerouteCount++
	s.generation++
	gen := s.generation
	destination := *s.destination

	// The fetch outlives the update that triggered it, so detach from the
	// caller's cancellation but keep its values for logging.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RerouteTimeout)
	s.cancelReroute = cancel

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		route, err := s.fetchReroute(rctx, from, destination)
		s.finishReroute(rctx, gen, route, err)
	}()
}

func (s *Session) fetchReroute(ctx context.Context, from, destination geo.Point) (route routing.Route, err error) {
	defer func() {
		if r := recover(); r != nil {
			stackErr, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Navigation: recovered from panic in route provider",
				"error", r, "error.stack_trace", stackErr.MinimalStack(skipFrames, numFrames))
			err = fmt.Errorf("route provider panicked: %v", r)
		}
	}()
	return s.provider.FetchRoute(ctx, from, destination)
}

func (s *Session) finishReroute(ctx context.Context, gen uint64, route routing.Route, fetchErr error) {
	s.mu.Lock()
	if gen != s.generation || s.status != StatusLoading {
		s.mu.Unlock()
		logging.Infow(ctx, "Navigation: discarding stale reroute result")
		return
	}
	s.cancelReroute = nil
	if s.installOrFailLocked(ctx, "reroute", route, fetchErr) == nil {
		logging.Infow(ctx, "Navigation: rerouted", "points", len(route.Points), "steps", len(route.Steps))
	}
	state := s.publishLocked()
	s.mu.Unlock()
	s.notify(state)
}
