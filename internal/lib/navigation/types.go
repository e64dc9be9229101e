// Package navigation ties the snapper, off-route detector, maneuver tracker,
// ETA calculator and voice scheduler into a per-trip session state machine.
package navigation

import (
	"context"
	"time"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// Status is the session's lifecycle state.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusLoading            Status = "loading"
	StatusWaitingForLocation Status = "waiting_for_location"
	StatusActive             Status = "active"
	StatusArrived            Status = "arrived"
	StatusError              Status = "error"
)

// IsTerminal reports whether the status only leaves through Stop or a new
// Start.
func (s Status) IsTerminal() bool {
	return s == StatusArrived || s == StatusError
}

// Location is one fix from the device location source.
type Location struct {
	Point geo.Point `json:"point"`

	// SpeedKmh is negative or NaN when the device has no speed reading.
	SpeedKmh                 float64   `json:"speed_kmh"`
	HeadingDegrees           float64   `json:"heading_degrees,omitempty"`
	Timestamp                time.Time `json:"timestamp"`
	HorizontalAccuracyMeters float64   `json:"horizontal_accuracy_meters,omitempty"`
}

// RouteProvider supplies routes. Implementations talk to a routing backend;
// the session treats them as opaque.
type RouteProvider interface {
	FetchRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error)
}

// RouteProviderFunc adapts a function to RouteProvider.
type RouteProviderFunc func(ctx context.Context, origin, destination geo.Point) (routing.Route, error)

// FetchRoute calls f.
func (f RouteProviderFunc) FetchRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error) {
	return f(ctx, origin, destination)
}

// VoiceSink receives plain-text utterances for text-to-speech.
type VoiceSink interface {
	Speak(ctx context.Context, text string)
}

// VoiceSinkFunc adapts a function to VoiceSink.
type VoiceSinkFunc func(ctx context.Context, text string)

// Speak calls f.
func (f VoiceSinkFunc) Speak(ctx context.Context, text string) { f(ctx, text) }

// StateListener is notified with every republished PublicState.
type StateListener interface {
	OnState(state PublicState)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(state PublicState)

// OnState calls f.
func (f StateListenerFunc) OnState(state PublicState) { f(state) }

// PublicState is the read-only snapshot exposed to UI collaborators.
type PublicState struct {
	Status Status `json:"status"`

	Step                     *routing.Step `json:"step,omitempty"`
	StepIndex                int           `json:"step_index"`
	NextStep                 *routing.Step `json:"next_step,omitempty"`
	DistanceToManeuverMeters float64       `json:"distance_to_maneuver_meters"`
	RemainingDistanceMeters  float64       `json:"remaining_distance_meters"`
	ETASeconds               float64       `json:"eta_seconds"`

	// ManeuverImminent is set once the maneuver is close enough to be
	// considered passed; UIs may switch to the next instruction.
	ManeuverImminent bool `json:"maneuver_imminent"`

	IsOffRoute            bool       `json:"is_off_route"`
	SnappedPoint          *geo.Point `json:"snapped_point,omitempty"`
	DistanceToRouteMeters float64    `json:"distance_to_route_meters"`

	Destination    *geo.Point `json:"destination,omitempty"`
	RerouteCount   int        `json:"reroute_count"`
	DroppedUpdates int        `json:"dropped_updates"`
	LastError      string     `json:"last_error,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
