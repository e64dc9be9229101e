package cache

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"golang.org/x/sync/singleflight"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// DefaultRouteTTL is how long fetched routes are reused.
const DefaultRouteTTL = 15 * time.Minute

// DefaultFetchTimeout bounds a shared fetch once it no longer follows the
// context of the caller that started it.
const DefaultFetchTimeout = 30 * time.Second

// RouteStore is a persistent tier behind the in-memory cache.
type RouteStore interface {
	Get(ctx context.Context, key string) (routing.Route, bool, error)
	Put(ctx context.Context, key string, route routing.Route, ttl time.Duration) error
}

// CachingProvider wraps a RouteProvider with a memory tier, an optional
// persistent tier, and collapsing of concurrent identical requests. Cache
// failures are logged and fall through to the wrapped provider. When the
// provider fails, an expired route still held in memory is served instead.
type CachingProvider struct {
	next    navigation.RouteProvider
	name    string
	memory  *Cache
	store   RouteStore
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
}

// NewCachingProvider creates a caching wrapper. name namespaces the keys so
// providers sharing a store do not collide; memory and store may be nil.
func NewCachingProvider(next navigation.RouteProvider, name string, memory *Cache, store RouteStore, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &CachingProvider{
		next:    next,
		name:    name,
		memory:  memory,
		store:   store,
		ttl:     ttl,
		timeout: DefaultFetchTimeout,
	}
}

// RouteKey builds the cache key for a request. Coordinates are rounded to
// 5 decimals (about a meter).
func RouteKey(name string, origin, destination geo.Point) string {
	return fmt.Sprintf("route:%s:%.5f,%.5f:%.5f,%.5f", name,
		origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
}

// FetchRoute implements navigation.RouteProvider. Concurrent callers for the
// same key share one fetch; a caller whose ctx ends stops waiting without
// canceling the fetch for the others.
func (p *CachingProvider) FetchRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error) {
	ctx = logging.EnsureLogger(ctx)
	key := RouteKey(p.name, origin, destination)

	if p.memory != nil {
		var cached routing.Route
		found, err := p.memory.Get(key, &cached)
		if err != nil {
			logging.Warnw(ctx, "Route cache: dropping unreadable memory entry", "key", key, "error", err)
			p.memory.Delete(key)
		} else if found {
			return cached, nil
		}
	}

	// DoChan re-panics on a goroutine nobody can recover, so panics are
	// turned into errors inside the shared call.
	ch := p.group.DoChan(key, func() (v interface{}, err error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				stackErr, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(lctx, "Route cache: recovered from panic in route provider",
					"key", key, "error", r, "error.stack_trace", stackErr.MinimalStack(skipFrames, numFrames))
				err = fmt.Errorf("route provider panicked: %v", r)
			}
		}()
		return p.load(lctx, key, origin, destination)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return routing.Route{}, res.Err
		}
		return res.Val.(routing.Route), nil
	case <-ctx.Done():
		return routing.Route{}, ctx.Err()
	}
}

func (p *CachingProvider) load(ctx context.Context, key string, origin, destination geo.Point) (routing.Route, error) {
	if p.store != nil {
		route, found, err := p.store.Get(ctx, key)
		if err != nil {
			logging.Warnw(ctx, "Route cache: store read failed", "key", key, "error", err)
		} else if found {
			p.remember(ctx, key, route)
			return route, nil
		}
	}

	route, err := p.next.FetchRoute(ctx, origin, destination)
	if err != nil {
		if stale, cachedAt, ok := p.expired(key); ok {
			logging.Warnw(ctx, "Route cache: provider failed, serving expired route",
				"key", key, "error", err, "cached_at", cachedAt)
			return stale, nil
		}
		return routing.Route{}, err
	}
	// Unusable routes go back to the caller uncached.
	if route.Validate() != nil {
		return route, nil
	}

	if p.store != nil {
		if err := p.store.Put(ctx, key, route, p.ttl); err != nil {
			logging.Warnw(ctx, "Route cache: store write failed", "key", key, "error", err)
		}
	}
	p.remember(ctx, key, route)
	return route, nil
}

// expired returns the route held in memory for key regardless of its age.
func (p *CachingProvider) expired(key string) (routing.Route, time.Time, bool) {
	if p.memory == nil {
		return routing.Route{}, time.Time{}, false
	}
	var route routing.Route
	entry, found, err := p.memory.GetWithMetadata(key, &route)
	if err != nil || !found || route.Validate() != nil {
		return routing.Route{}, time.Time{}, false
	}
	return route, entry.CreatedAt, true
}

func (p *CachingProvider) remember(ctx context.Context, key string, route routing.Route) {
	if p.memory == nil {
		return
	}
	if err := p.memory.Set(key, route, p.ttl, route.Source); err != nil {
		logging.Warnw(ctx, "Route cache: memory write failed", "key", key, "error", err)
	}
}
