package services

import (
	"context"
	"database/sql"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"google.golang.org/grpc/codes"

	"github.com/dpup/info.ersn.net/navigation/internal/cache"
	"github.com/dpup/info.ersn.net/navigation/internal/clients/google"
	"github.com/dpup/info.ersn.net/navigation/internal/clients/osrm"
	"github.com/dpup/info.ersn.net/navigation/internal/config"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
)

// RouteBackend is the configured route provider wrapped in its caches.
type RouteBackend struct {
	Provider navigation.RouteProvider
	Memory   *cache.Cache

	// Store is nil unless a cache database is configured.
	Store *cache.SQLiteRouteStore

	db *sql.DB
}

// NewRouteBackend builds the route provider selected by cfg.
func NewRouteBackend(ctx context.Context, cfg config.RoutingConfig, c clock.Clock) (*RouteBackend, error) {
	ctx = logging.EnsureLogger(ctx)
	var upstream navigation.RouteProvider
	switch cfg.Provider {
	case config.ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			return nil, errors.NewC("google route provider requires an API key", codes.FailedPrecondition)
		}
		upstream = google.NewClient(cfg.GoogleAPIKey)
	case config.ProviderOSRM:
		upstream = osrm.NewClient(cfg.OSRMBaseURL)
	default:
		return nil, errors.Codef(codes.InvalidArgument, "unknown route provider %q", cfg.Provider)
	}

	b := &RouteBackend{Memory: cache.NewCache(cfg.CacheMaxEntries, c)}

	var store cache.RouteStore
	if cfg.CacheDBPath != "" {
		db, err := cache.OpenSQLite(ctx, cfg.CacheDBPath)
		if err != nil {
			return nil, err
		}
		b.db = db
		b.Store = cache.NewSQLiteRouteStore(db, c)
		if err := b.Store.InitSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		store = b.Store
		logging.Infow(ctx, "Route cache: persistent store enabled", "path", cfg.CacheDBPath)
	}

	b.Provider = cache.NewCachingProvider(upstream, cfg.Provider, b.Memory, store, cfg.CacheTTL)
	return b, nil
}

// Cleaner returns the store as an ExpiredRouteCleaner, or nil when there is
// no persistent store.
func (b *RouteBackend) Cleaner() ExpiredRouteCleaner {
	if b.Store == nil {
		return nil
	}
	return b.Store
}

// Close releases the cache database.
func (b *RouteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
