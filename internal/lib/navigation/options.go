package navigation

import (
	"time"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/offroute"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/voice"
)

const (
	// DefaultArrivalThresholdMeters must not exceed the low-speed off-route
	// threshold, or a vehicle could be declared off route right before
	// arriving.
	DefaultArrivalThresholdMeters = 20.0

	DefaultRerouteTimeout = 30 * time.Second

	RerouteAnnouncement = "Rerouting"
	ArrivalAnnouncement = "You have arrived at your destination"
)

// Options tunes a Session. Zero values take defaults.
type Options struct {
	Window               int
	WideWindow           int
	RetryThresholdMeters float64

	OffRouteGrace time.Duration

	ArrivalThresholdMeters float64
	AnnouncementCooldown   time.Duration
	RerouteTimeout         time.Duration

	// MaxHorizontalAccuracyMeters drops fixes less accurate than this.
	// Zero disables the filter.
	MaxHorizontalAccuracyMeters float64
}

// Option configures a Session.
type Option func(*Session)

// WithClock injects the time source used for hysteresis and cooldowns.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithVoiceSink sets the receiver of utterances.
func WithVoiceSink(sink VoiceSink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithStateListener sets the receiver of republished state.
func WithStateListener(l StateListener) Option {
	return func(s *Session) { s.listener = l }
}

// WithOptions applies tuning options.
func WithOptions(o Options) Option {
	return func(s *Session) { s.opts = o }
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = routing.DefaultWindow
	}
	if o.WideWindow <= 0 {
		o.WideWindow = routing.DefaultWideWindow
	}
	if o.RetryThresholdMeters <= 0 {
		o.RetryThresholdMeters = routing.DefaultRetryThresholdMeters
	}
	if o.OffRouteGrace <= 0 {
		o.OffRouteGrace = offroute.DefaultGrace
	}
	if o.ArrivalThresholdMeters <= 0 {
		o.ArrivalThresholdMeters = DefaultArrivalThresholdMeters
	}
	o.ArrivalThresholdMeters = min(o.ArrivalThresholdMeters, offroute.LowSpeedThresholdMeters)
	if o.AnnouncementCooldown <= 0 {
		o.AnnouncementCooldown = voice.DefaultCooldown
	}
	if o.RerouteTimeout <= 0 {
		o.RerouteTimeout = DefaultRerouteTimeout
	}
	return o
}
