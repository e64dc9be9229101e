package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

type MockRouteProvider struct {
	mock.Mock
}

func (m *MockRouteProvider) FetchRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error) {
	args := m.Called(ctx, origin, destination)
	return args.Get(0).(routing.Route), args.Error(1)
}

type MockRouteStore struct {
	mock.Mock
}

func (m *MockRouteStore) Get(ctx context.Context, key string) (routing.Route, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(routing.Route), args.Bool(1), args.Error(2)
}

func (m *MockRouteStore) Put(ctx context.Context, key string, route routing.Route, ttl time.Duration) error {
	return m.Called(ctx, key, route, ttl).Error(0)
}

func TestRouteKey(t *testing.T) {
	a := geo.Point{Latitude: 38.067501, Longitude: -120.543601}
	b := geo.Point{Latitude: 38.067503, Longitude: -120.543599}
	dest := geo.Point{Latitude: 38.1383, Longitude: -120.4563}

	assert.Equal(t, "route:osrm:38.06750,-120.54360:38.13830,-120.45630", RouteKey("osrm", a, dest))
	assert.Equal(t, RouteKey("osrm", a, dest), RouteKey("osrm", b, dest))
	assert.NotEqual(t, RouteKey("osrm", a, dest), RouteKey("google", a, dest))
}

func TestCachingProvider_MemoryHit(t *testing.T) {
	route := sampleRoute()
	next := &MockRouteProvider{}
	next.On("FetchRoute", mock.Anything, route.Origin, route.Destination).Return(route, nil).Once()

	p := NewCachingProvider(next, "osrm", NewCache(10, clock.NewFake(epoch)), nil, time.Hour)

	for i := 0; i < 3; i++ {
		got, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
		require.NoError(t, err)
		assert.Equal(t, route, got)
	}
	next.AssertExpectations(t)
}

func TestCachingProvider_StoreTier(t *testing.T) {
	route := sampleRoute()
	store := newTestStore(t, clock.NewFake(epoch))
	key := RouteKey("osrm", route.Origin, route.Destination)
	require.NoError(t, store.Put(context.Background(), key, route, time.Hour))

	next := &MockRouteProvider{}
	memory := NewCache(10, clock.NewFake(epoch))
	p := NewCachingProvider(next, "osrm", memory, store, time.Hour)

	got, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	require.NoError(t, err)
	assert.Equal(t, route, got)
	assert.False(t, memory.IsStale(key), "store hits are promoted to memory")
	next.AssertNotCalled(t, "FetchRoute", mock.Anything, mock.Anything, mock.Anything)
}

func TestCachingProvider_WritesThrough(t *testing.T) {
	route := sampleRoute()
	store := newTestStore(t, clock.NewFake(epoch))
	next := &MockRouteProvider{}
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(route, nil).Once()

	p := NewCachingProvider(next, "osrm", nil, store, time.Hour)
	_, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	require.NoError(t, err)

	stored, found, err := store.Get(context.Background(), RouteKey("osrm", route.Origin, route.Destination))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, route, stored)
}

func TestCachingProvider_ErrorsAndInvalidRoutesNotCached(t *testing.T) {
	route := sampleRoute()
	invalid := routing.Route{Source: "osrm"}
	next := &MockRouteProvider{}
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(routing.Route{}, errors.New("timeout")).Once()
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(invalid, nil).Once()
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(route, nil).Once()

	p := NewCachingProvider(next, "osrm", NewCache(10, nil), nil, time.Hour)
	ctx := context.Background()

	_, err := p.FetchRoute(ctx, route.Origin, route.Destination)
	assert.ErrorContains(t, err, "timeout")

	got, err := p.FetchRoute(ctx, route.Origin, route.Destination)
	require.NoError(t, err)
	assert.ErrorIs(t, got.Validate(), routing.ErrInvalidRoute)

	got, err = p.FetchRoute(ctx, route.Origin, route.Destination)
	require.NoError(t, err)
	assert.Equal(t, route, got)
	next.AssertExpectations(t)
}

func TestCachingProvider_StoreFailureFallsThrough(t *testing.T) {
	route := sampleRoute()
	store := &MockRouteStore{}
	store.On("Get", mock.Anything, mock.Anything).Return(routing.Route{}, false, errors.New("disk full"))
	store.On("Put", mock.Anything, mock.Anything, route, time.Hour).Return(errors.New("disk full"))

	next := &MockRouteProvider{}
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(route, nil)

	p := NewCachingProvider(next, "osrm", nil, store, time.Hour)
	got, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	require.NoError(t, err)
	assert.Equal(t, route, got)
	store.AssertExpectations(t)
}

func TestCachingProvider_CollapsesConcurrentFetches(t *testing.T) {
	route := sampleRoute()
	var calls atomic.Int32
	release := make(chan struct{})
	next := navigation.RouteProviderFunc(func(context.Context, geo.Point, geo.Point) (routing.Route, error) {
		calls.Add(1)
		<-release
		return route, nil
	})

	p := NewCachingProvider(next, "osrm", nil, nil, time.Hour)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]routing.Route, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	// Give the callers time to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, route.Source, r.Source)
	}
}

func TestCachingProvider_CanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	route := sampleRoute()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	next := navigation.RouteProviderFunc(func(ctx context.Context, _, _ geo.Point) (routing.Route, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return route, nil
		case <-ctx.Done():
			return routing.Route{}, ctx.Err()
		}
	})
	p := NewCachingProvider(next, "osrm", nil, nil, time.Hour)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.FetchRoute(firstCtx, route.Origin, route.Destination)
		firstErr <- err
	}()
	<-started

	second := make(chan routing.Route, 1)
	go func() {
		r, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
		assert.NoError(t, err)
		second <- r
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, route, <-second)
}

func TestCachingProvider_DropsUnreadableMemoryEntry(t *testing.T) {
	route := sampleRoute()
	memory := NewCache(10, clock.NewFake(epoch))
	key := RouteKey("osrm", route.Origin, route.Destination)
	require.NoError(t, memory.Set(key, "not a route", time.Hour, "test"))

	next := &MockRouteProvider{}
	next.On("FetchRoute", mock.Anything, route.Origin, route.Destination).Return(route, nil).Once()

	p := NewCachingProvider(next, "osrm", memory, nil, time.Hour)
	got, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	require.NoError(t, err)
	assert.Equal(t, route, got)

	var cached routing.Route
	found, err := memory.Get(key, &cached)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, route, cached)
	next.AssertExpectations(t)
}

func TestCachingProvider_ServesExpiredRouteWhenProviderFails(t *testing.T) {
	route := sampleRoute()
	fake := clock.NewFake(epoch)
	next := &MockRouteProvider{}
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(route, nil).Once()
	next.On("FetchRoute", mock.Anything, mock.Anything, mock.Anything).Return(routing.Route{}, errors.New("upstream 503")).Once()

	p := NewCachingProvider(next, "osrm", NewCache(10, fake), nil, time.Minute)
	_, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	require.NoError(t, err)

	fake.Advance(2 * time.Minute)
	got, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	require.NoError(t, err)
	assert.Equal(t, route, got)
	next.AssertExpectations(t)
}

func TestCachingProvider_ProviderPanicBecomesError(t *testing.T) {
	route := sampleRoute()
	next := navigation.RouteProviderFunc(func(context.Context, geo.Point, geo.Point) (routing.Route, error) {
		panic("boom")
	})
	p := NewCachingProvider(next, "osrm", nil, nil, time.Hour)

	_, err := p.FetchRoute(context.Background(), route.Origin, route.Destination)
	assert.ErrorContains(t, err, "panicked")
}
