package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"

	"github.com/dpup/info.ersn.net/navigation/internal/config"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

const tracerName = "github.com/dpup/info.ersn.net/navigation/internal/services"

var (
	// ErrSessionNotFound is returned for unknown or reaped session IDs.
	ErrSessionNotFound = errors.NewC("session not found", codes.NotFound)

	// ErrTooManySessions is returned when the registry is full.
	ErrTooManySessions = errors.NewC("too many active sessions", codes.ResourceExhausted)

	// ErrInvalidRequest marks malformed client input.
	ErrInvalidRequest = errors.NewC("invalid request", codes.InvalidArgument)
)

// CreateSessionRequest starts a trip. When Route is set it is followed as
// given and the provider is only used for reroutes.
type CreateSessionRequest struct {
	Origin      geo.Point      `json:"origin"`
	Destination geo.Point      `json:"destination"`
	Route       *routing.Route `json:"route,omitempty"`
}

// SessionView describes a registered session.
type SessionView struct {
	ID        string                 `json:"id"`
	State     navigation.PublicState `json:"state"`
	CreatedAt time.Time              `json:"created_at"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LocationResponse is the result of one location update. Utterances holds
// everything queued for speech since the previous update.
type LocationResponse struct {
	State      navigation.PublicState `json:"state"`
	Utterances []string               `json:"utterances"`
}

// NavigationService hosts navigation sessions for remote clients.
type NavigationService struct {
	provider navigation.RouteProvider
	opts     navigation.Options
	limits   config.SessionsConfig
	clock    clock.Clock
	tracer   trace.Tracer

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	// reserved counts sessions still loading their first route; they hold a
	// slot against MaxSessions until registered or abandoned.
	reserved int
}

type sessionEntry struct {
	id        string
	session   *navigation.Session
	createdAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
	pending  []string
}

// Speak queues an utterance for the next location response.
func (e *sessionEntry) Speak(_ context.Context, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, text)
}

func (e *sessionEntry) drain() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.pending
	e.pending = nil
	return out
}

func (e *sessionEntry) touch(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = now
}

func (e *sessionEntry) view() *SessionView {
	e.mu.Lock()
	lastSeen := e.lastSeen
	e.mu.Unlock()
	return &SessionView{
		ID:        e.id,
		State:     e.session.State(),
		CreatedAt: e.createdAt,
		LastSeen:  lastSeen,
	}
}

// ServiceOption configures a NavigationService.
type ServiceOption func(*NavigationService)

// WithServiceClock injects the time source shared by the service and its
// sessions.
func WithServiceClock(c clock.Clock) ServiceOption {
	return func(s *NavigationService) { s.clock = c }
}

// WithTracerProvider sets where spans go; defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *NavigationService) { s.tracer = tp.Tracer(tracerName) }
}

// NewNavigationService creates a service fetching routes from provider.
func NewNavigationService(provider navigation.RouteProvider, cfg *config.Config, opts ...ServiceOption) *NavigationService {
	s := &NavigationService{
		provider: provider,
		opts:     cfg.Navigation.Options(),
		limits:   cfg.Sessions,
		clock:    clock.Real{},
		tracer:   otel.Tracer(tracerName),
		sessions: make(map[string]*sessionEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession registers a new session and loads its route. Sessions whose
// route cannot be loaded are not registered.
func (s *NavigationService) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionView, error) {
	ctx, span := s.tracer.Start(logging.EnsureLogger(ctx), "NavigationService.CreateSession")
	defer span.End()

	if !geo.IsValidCoordinate(req.Origin) || !geo.IsValidCoordinate(req.Destination) {
		return nil, s.fail(span, fmt.Errorf("%w: origin and destination must be valid coordinates", ErrInvalidRequest))
	}

	s.mu.Lock()
	if len(s.sessions)+s.reserved >= s.limits.MaxSessions {
		s.mu.Unlock()
		return nil, s.fail(span, ErrTooManySessions)
	}
	s.reserved++
	s.mu.Unlock()

	now := s.clock.Now()
	entry := &sessionEntry{id: uuid.NewString(), createdAt: now, lastSeen: now}
	entry.session = navigation.NewSession(s.provider,
		navigation.WithClock(s.clock),
		navigation.WithOptions(s.opts),
		navigation.WithVoiceSink(entry),
	)
	span.SetAttributes(attribute.String("session.id", entry.id))

	var err error
	if req.Route != nil {
		err = entry.session.StartWithRoute(ctx, *req.Route, req.Destination)
	} else {
		err = entry.session.Start(ctx, req.Origin, req.Destination)
	}

	s.mu.Lock()
	s.reserved--
	if err == nil {
		s.sessions[entry.id] = entry
	}
	s.mu.Unlock()
	if err != nil {
		return nil, s.fail(span, err)
	}

	logging.Infow(ctx, "Navigation service: session created", "session_id", entry.id)
	return entry.view(), nil
}

// UpdateLocation feeds one fix to a session.
func (s *NavigationService) UpdateLocation(ctx context.Context, id string, loc navigation.Location) (*LocationResponse, error) {
	ctx, span := s.tracer.Start(logging.EnsureLogger(ctx), "NavigationService.UpdateLocation",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	entry, err := s.lookup(id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !geo.IsValidCoordinate(loc.Point) {
		return nil, s.fail(span, fmt.Errorf("%w: location must be a valid coordinate", ErrInvalidRequest))
	}

	entry.touch(s.clock.Now())
	state, err := entry.session.Update(ctx, loc)
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(
		attribute.String("navigation.status", string(state.Status)),
		attribute.Bool("navigation.off_route", state.IsOffRoute),
	)
	return &LocationResponse{State: state, Utterances: entry.drain()}, nil
}

// GetSession returns the current view of a session.
func (s *NavigationService) GetSession(id string) (*SessionView, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return entry.view(), nil
}

// GetRoute returns the route a session is following.
func (s *NavigationService) GetRoute(id string) (routing.Route, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return routing.Route{}, err
	}
	route, ok := entry.session.Route()
	if !ok {
		return routing.Route{}, navigation.ErrNotActive
	}
	return route, nil
}

// StopSession stops and unregisters a session.
func (s *NavigationService) StopSession(ctx context.Context, id string) error {
	ctx = logging.EnsureLogger(ctx)
	s.mu.Lock()
	entry, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.session.Stop()
	logging.Infow(ctx, "Navigation service: session stopped", "session_id", id)
	return nil
}

// ReapIdle stops sessions that have not received an update within the idle
// timeout, and reports how many were removed.
func (s *NavigationService) ReapIdle(ctx context.Context) int {
	ctx = logging.EnsureLogger(ctx)
	cutoff := s.clock.Now().Add(-s.limits.IdleTimeout)

	var idle []*sessionEntry
	s.mu.Lock()
	for id, entry := range s.sessions {
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			idle = append(idle, entry)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, entry := range idle {
		entry.session.Stop()
		logging.Infow(ctx, "Navigation service: reaped idle session", "session_id", entry.id)
	}
	return len(idle)
}

// Count returns the number of registered sessions.
func (s *NavigationService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *NavigationService) lookup(id string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (s *NavigationService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}
