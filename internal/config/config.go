package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/offroute"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/voice"
)

// Route provider names accepted in RoutingConfig.Provider.
const (
	ProviderGoogle = "google"
	ProviderOSRM   = "osrm"
)

// Config represents the complete server configuration
type Config struct {
	Navigation NavigationConfig `koanf:"navigation"`
	Routing    RoutingConfig    `koanf:"routing"`
	Sessions   SessionsConfig   `koanf:"sessions"`
}

// NavigationConfig tunes every navigation session
type NavigationConfig struct {
	SnapWindow               int     `koanf:"snap_window"`
	WideSnapWindow           int     `koanf:"wide_snap_window"`
	SnapRetryThresholdMeters float64 `koanf:"snap_retry_threshold_meters"`

	OffRouteGrace          time.Duration `koanf:"off_route_grace"`
	ArrivalThresholdMeters float64       `koanf:"arrival_threshold_meters"`
	AnnouncementCooldown   time.Duration `koanf:"announcement_cooldown"`
	RerouteTimeout         time.Duration `koanf:"reroute_timeout"`

	// Zero accepts fixes of any accuracy.
	MaxHorizontalAccuracyMeters float64 `koanf:"max_horizontal_accuracy_meters"`
}

// RoutingConfig selects and configures the route provider
type RoutingConfig struct {
	Provider     string `koanf:"provider"`
	GoogleAPIKey string `koanf:"google_api_key"`
	OSRMBaseURL  string `koanf:"osrm_base_url"`

	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`

	// CacheDBPath enables the SQLite route cache when set.
	CacheDBPath string `koanf:"cache_db_path"`
}

// SessionsConfig controls the session registry of the HTTP service
type SessionsConfig struct {
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	ReapInterval time.Duration `koanf:"reap_interval"`
	MaxSessions  int           `koanf:"max_sessions"`
}

// Unmarshaler is satisfied by prefab.Config.
type Unmarshaler interface {
	Unmarshal(path string, o interface{}) error
}

// Load overlays the navigation, routing and sessions sections of src on the
// defaults and validates the result.
func Load(src Unmarshaler) (*Config, error) {
	cfg := DefaultConfig()

	if err := src.Unmarshal("navigation", &cfg.Navigation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal navigation section: %w", err)
	}
	if err := src.Unmarshal("routing", &cfg.Routing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal routing section: %w", err)
	}
	if err := src.Unmarshal("sessions", &cfg.Sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sessions section: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Navigation: NavigationConfig{
			SnapWindow:               routing.DefaultWindow,
			WideSnapWindow:           routing.DefaultWideWindow,
			SnapRetryThresholdMeters: routing.DefaultRetryThresholdMeters,
			OffRouteGrace:            offroute.DefaultGrace,
			ArrivalThresholdMeters:   navigation.DefaultArrivalThresholdMeters,
			AnnouncementCooldown:     voice.DefaultCooldown,
			RerouteTimeout:           navigation.DefaultRerouteTimeout,
		},
		Routing: RoutingConfig{
			Provider:        ProviderOSRM,
			OSRMBaseURL:     "https://router.project-osrm.org",
			CacheTTL:        15 * time.Minute,
			CacheMaxEntries: 1024,
		},
		Sessions: SessionsConfig{
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
			MaxSessions:  1000,
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	n := c.Navigation

	if n.SnapWindow <= 0 {
		errs = append(errs, fmt.Errorf("navigation.snap_window must be positive, got %d", n.SnapWindow))
	}
	if n.WideSnapWindow < n.SnapWindow {
		errs = append(errs, fmt.Errorf("navigation.wide_snap_window (%d) must be at least snap_window (%d)", n.WideSnapWindow, n.SnapWindow))
	}
	if n.SnapRetryThresholdMeters <= 0 {
		errs = append(errs, errors.New("navigation.snap_retry_threshold_meters must be positive"))
	}
	if n.OffRouteGrace <= 0 {
		errs = append(errs, errors.New("navigation.off_route_grace must be positive"))
	}
	// Arriving must not look like leaving the route at walking speed.
	if n.ArrivalThresholdMeters <= 0 || n.ArrivalThresholdMeters > offroute.LowSpeedThresholdMeters {
		errs = append(errs, fmt.Errorf("navigation.arrival_threshold_meters must be in (0, %.0f], got %g",
			offroute.LowSpeedThresholdMeters, n.ArrivalThresholdMeters))
	}
	if n.MaxHorizontalAccuracyMeters < 0 {
		errs = append(errs, errors.New("navigation.max_horizontal_accuracy_meters must not be negative"))
	}

	r := c.Routing
	switch r.Provider {
	case ProviderGoogle:
		if r.GoogleAPIKey == "" {
			errs = append(errs, errors.New("routing.google_api_key is required for the google provider"))
		}
	case ProviderOSRM:
	default:
		errs = append(errs, fmt.Errorf("routing.provider must be %q or %q, got %q", ProviderGoogle, ProviderOSRM, r.Provider))
	}
	if r.CacheTTL < 0 {
		errs = append(errs, errors.New("routing.cache_ttl must not be negative"))
	}

	s := c.Sessions
	if s.IdleTimeout <= 0 || s.ReapInterval <= 0 {
		errs = append(errs, errors.New("sessions.idle_timeout and sessions.reap_interval must be positive"))
	}
	if s.MaxSessions <= 0 {
		errs = append(errs, errors.New("sessions.max_sessions must be positive"))
	}

	return errors.Join(errs...)
}

// Options converts the navigation section into session options.
func (n NavigationConfig) Options() navigation.Options {
	return navigation.Options{
		Window:                      n.SnapWindow,
		WideWindow:                  n.WideSnapWindow,
		RetryThresholdMeters:        n.SnapRetryThresholdMeters,
		OffRouteGrace:               n.OffRouteGrace,
		ArrivalThresholdMeters:      n.ArrivalThresholdMeters,
		AnnouncementCooldown:        n.AnnouncementCooldown,
		RerouteTimeout:              n.RerouteTimeout,
		MaxHorizontalAccuracyMeters: n.MaxHorizontalAccuracyMeters,
	}
}
