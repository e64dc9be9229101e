package navigation

import (
	"context"
	"errors"
	"sync"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/eta"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/offroute"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/voice"
)

// Session is one navigation trip. Updates are processed one at a time; each
// either commits in full or leaves the session untouched. Stop may be called
// from any goroutine, including while a reroute is in flight.
type Session struct {
	provider RouteProvider
	clock    clock.Clock
	sink     VoiceSink
	listener StateListener
	opts     Options

	snapper   *routing.Snapper
	detector  *offroute.Detector
	announcer *voice.Announcer

	mu          sync.Mutex
	status      Status
	route       *routing.Route
	destination *geo.Point
	lastIndex   *int
	offRoute    offroute.State
	cues        voice.CueState
	state       PublicState
	lastErr     error

	// generation is bumped by Start, Stop and every reroute; results
	// tagged with an older generation are discarded.
	generation    uint64
	cancelReroute context.CancelFunc
	inflight      sync.WaitGroup
}

// NewSession creates an idle session fetching routes from provider.
func NewSession(provider RouteProvider, opts ...Option) *Session {
	s := &Session{
		provider: provider,
		clock:    clock.Real{},
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.opts = s.opts.withDefaults()
	s.snapper = &routing.Snapper{
		Window:               s.opts.Window,
		WideWindow:           s.opts.WideWindow,
		RetryThresholdMeters: s.opts.RetryThresholdMeters,
	}
	s.detector = &offroute.Detector{Grace: s.opts.OffRouteGrace}
	s.announcer = voice.NewAnnouncer(s.clock, s.opts.AnnouncementCooldown)
	s.state = PublicState{Status: StatusIdle, UpdatedAt: s.clock.Now()}
	return s
}

// Start fetches a route from origin to destination and begins waiting for
// the first location. Any previous trip is abandoned.
func (s *Session) Start(ctx context.Context, origin, destination geo.Point) error {
	ctx = logging.EnsureLogger(ctx)
	s.mu.Lock()
	s.resetLocked()
	gen := s.generation
	s.status = StatusLoading
	s.destination = &destination
	state := s.publishLocked()
	s.mu.Unlock()
	s.notify(state)

	logging.Infow(ctx, "Navigation: fetching route", "origin", origin, "destination", destination)
	route, err := s.provider.FetchRoute(ctx, origin, destination)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		logging.Infow(ctx, "Navigation: discarding route fetched for stopped session")
		return ErrStopped
	}
	err = s.installOrFailLocked(ctx, "fetch route", route, err)
	state = s.publishLocked()
	s.mu.Unlock()
	s.notify(state)
	return err
}

// StartWithRoute begins navigation on a route the caller already has. The
// Route Provider is still used for reroutes.
func (s *Session) StartWithRoute(ctx context.Context, route routing.Route, destination geo.Point) error {
	ctx = logging.EnsureLogger(ctx)
	s.mu.Lock()
	s.resetLocked()
	s.destination = &destination
	err := s.installOrFailLocked(ctx, "start", route, nil)
	state := s.publishLocked()
	s.mu.Unlock()
	s.notify(state)
	return err
}

// Stop abandons the trip from any state. A reroute in flight keeps running
// until its context is canceled, but its result is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	s.resetLocked()
	state := s.publishLocked()
	s.mu.Unlock()
	s.notify(state)
}

// State returns the latest published snapshot.
func (s *Session) State() PublicState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Route returns a copy of the route being followed, if any.
func (s *Session) Route() (routing.Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route == nil {
		return routing.Route{}, false
	}
	return *s.route, true
}

// Wait blocks until in-flight reroutes have finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Update runs one navigation cycle for loc. While a route is loading the fix
// is dropped and counted. Errors leave the session exactly as it was.
func (s *Session) Update(ctx context.Context, loc Location) (PublicState, error) {
	ctx = logging.EnsureLogger(ctx)
	s.mu.Lock()

	switch s.status {
	case StatusLoading:
		s.state.DroppedUpdates++
		state := s.state
		s.mu.Unlock()
		return state, nil
	case StatusWaitingForLocation, StatusActive:
	default:
		state := s.state
		s.mu.Unlock()
		return state, ErrNotActive
	}

	if s.opts.MaxHorizontalAccuracyMeters > 0 && loc.HorizontalAccuracyMeters > s.opts.MaxHorizontalAccuracyMeters {
		s.state.DroppedUpdates++
		state := s.state
		s.mu.Unlock()
		logging.Debugw(ctx, "Navigation: dropping inaccurate fix", "accuracy", loc.HorizontalAccuracyMeters)
		return state, nil
	}

	now := s.clock.Now()
	route := *s.route

	snap, err := s.snapper.Snap(loc.Point, route.Points, s.lastIndex)
	if err != nil {
		state := s.state
		s.mu.Unlock()
		return state, err
	}
	progress, err := routing.CurrentStep(snap, route)
	if err != nil {
		state := s.state
		s.mu.Unlock()
		return state, err
	}
	decision, offState := s.detector.Check(snap, offroute.NormalizeSpeed(loc.SpeedKmh), s.offRoute, now)
	etaSeconds := eta.RemainingTime(progress.RemainingDistanceMeters, route.TotalDistanceMeters,
		route.TotalDurationSeconds, route.TrafficFactor)

	// Commit.
	idx := snap.ClosestIndex
	s.lastIndex = &idx
	s.offRoute = offState

	var utterances []string
	s.fillProgressLocked(route, snap, progress, etaSeconds, decision.OffRoute)

	switch {
	case decision.Confirmed:
		logging.Infow(ctx, "Navigation: off route, rerouting",
			"distance_to_route", snap.DistanceToRouteMeters, "threshold", decision.ThresholdMeters)
		if s.announcer.Speak(RerouteAnnouncement) {
			utterances = append(utterances, RerouteAnnouncement)
		}
		s.beginRerouteLocked(ctx, loc.Point)
	case s.arrivedLocked(route, snap, progress):
		s.status = StatusArrived
		logging.Infow(ctx, "Navigation: arrived", "remaining", progress.RemainingDistanceMeters)
		if s.announcer.Speak(ArrivalAnnouncement) {
			utterances = append(utterances, ArrivalAnnouncement)
		}
	default:
		s.status = StatusActive
		text, ok, cues := voice.NextUtterance(progress.Step.Text(), progress.DistanceToManeuverMeters, s.cues)
		s.cues = cues
		if ok {
			utterances = append(utterances, text)
		}
	}

	state := s.publishLocked()
	s.mu.Unlock()

	for _, u := range utterances {
		s.speak(ctx, u)
	}
	s.notify(state)
	return state, nil
}

func (s *Session) arrivedLocked(route routing.Route, snap routing.SnapResult, progress routing.StepProgress) bool {
	if !progress.IsFinal(route) {
		return false
	}
	threshold := s.opts.ArrivalThresholdMeters
	if progress.DistanceToManeuverMeters < threshold {
		return true
	}
	// The maneuver distance is an estimate; at the end of the polyline fall
	// back to the geometric distance to the last point.
	last := len(route.Points) - 1
	return snap.ClosestIndex == last && snap.DistanceToRouteMeters < threshold
}

func (s *Session) fillProgressLocked(route routing.Route, snap routing.SnapResult, progress routing.StepProgress, etaSeconds float64, offRoute bool) {
	step := progress.Step
	s.state.Step = &step
	s.state.StepIndex = progress.Index
	s.state.NextStep = nil
	if progress.Index+1 < len(route.Steps) {
		next := route.Steps[progress.Index+1]
		s.state.NextStep = &next
	}
	s.state.DistanceToManeuverMeters = progress.DistanceToManeuverMeters
	s.state.RemainingDistanceMeters = progress.RemainingDistanceMeters
	s.state.ETASeconds = etaSeconds
	s.state.ManeuverImminent = routing.StepPassed(progress.DistanceToManeuverMeters)
	s.state.IsOffRoute = offRoute
	snapped := snap.ClosestPoint
	s.state.SnappedPoint = &snapped
	s.state.DistanceToRouteMeters = snap.DistanceToRouteMeters
}

// installOrFailLocked moves to WaitingForLocation with route, or to Error if
// fetchErr is set or the route is unusable.
func (s *Session) installOrFailLocked(ctx context.Context, op string, route routing.Route, fetchErr error) error {
	if fetchErr != nil {
		err := &RouteError{Op: op, Err: fetchErr}
		s.failLocked(ctx, err)
		return err
	}
	if err := route.Validate(); err != nil {
		s.failLocked(ctx, err)
		return err
	}

	s.route = &route
	s.lastIndex = nil
	s.offRoute = offroute.State{}
	s.cues = voice.CueState{}
	s.lastErr = nil
	s.status = StatusWaitingForLocation
	s.clearProgressLocked()
	return nil
}

func (s *Session) failLocked(ctx context.Context, err error) {
	logging.Errorw(ctx, "Navigation: route unavailable", "error", err)
	s.status = StatusError
	s.lastErr = err
	s.route = nil
	s.clearProgressLocked()
}

// resetLocked returns to Idle and invalidates any in-flight fetch.
func (s *Session) resetLocked() {
	s.generation++
	if s.cancelReroute != nil {
		s.cancelReroute()
		s.cancelReroute = nil
	}
	s.status = StatusIdle
	s.route = nil
	s.destination = nil
	s.lastIndex = nil
	s.offRoute = offroute.State{}
	s.cues = voice.CueState{}
	s.lastErr = nil
	s.announcer.Reset()
	s.state = PublicState{}
}

func (s *Session) clearProgressLocked() {
	s.state.Step = nil
	s.state.StepIndex = 0
	s.state.NextStep = nil
	s.state.DistanceToManeuverMeters = 0
	s.state.RemainingDistanceMeters = 0
	s.state.ETASeconds = 0
	s.state.ManeuverImminent = false
	s.state.IsOffRoute = false
	s.state.SnappedPoint = nil
	s.state.DistanceToRouteMeters = 0
}

func (s *Session) publishLocked() PublicState {
	s.state.Status = s.status
	s.state.Destination = s.destination
	s.state.LastError = ""
	if s.lastErr != nil {
		s.state.LastError = s.lastErr.Error()
	}
	s.state.UpdatedAt = s.clock.Now()
	return s.state
}

func (s *Session) speak(ctx context.Context, text string) {
	if s.sink != nil {
		s.sink.Speak(ctx, text)
	}
}

func (s *Session) notify(state PublicState) {
	if s.listener != nil {
		s.listener.OnState(state)
	}
}

// IsRouteProviderFailure reports whether err came from the Route Provider.
func IsRouteProviderFailure(err error) bool {
	return errors.Is(err, ErrRouteProviderFailure)
}
