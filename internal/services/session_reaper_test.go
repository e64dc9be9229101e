package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/info.ersn.net/navigation/internal/config"
)

// MockCleaner mocks the persistent route store cleanup.
type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestSessionReaper_RunOnce(t *testing.T) {
	route := testRoute()
	env := newTestEnv(t, staticProvider(route, nil), func(c *config.Config) { c.Sessions.IdleTimeout = time.Minute })
	ctx := context.Background()

	_, err := env.svc.CreateSession(ctx, CreateSessionRequest{Origin: route.Origin, Destination: route.Destination})
	require.NoError(t, err)

	cleaner := &MockCleaner{}
	cleaner.On("DeleteExpired", mock.Anything).Return(int64(3), nil).Twice()

	reaper := NewSessionReaper(env.svc, cleaner, time.Minute)
	reaper.RunOnce(ctx)
	assert.Equal(t, 1, env.svc.Count(), "fresh sessions survive")

	env.clock.Advance(2 * time.Minute)
	reaper.RunOnce(ctx)
	assert.Equal(t, 0, env.svc.Count())
	cleaner.AssertExpectations(t)
}

func TestSessionReaper_CleanerFailureIsTolerated(t *testing.T) {
	env := newTestEnv(t, staticProvider(testRoute(), nil), nil)
	cleaner := &MockCleaner{}
	cleaner.On("DeleteExpired", mock.Anything).Return(int64(0), errors.New("database is locked"))

	reaper := NewSessionReaper(env.svc, cleaner, time.Minute)
	assert.NotPanics(t, func() { reaper.RunOnce(context.Background()) })
	cleaner.AssertExpectations(t)
}

func TestSessionReaper_StartStop(t *testing.T) {
	env := newTestEnv(t, staticProvider(testRoute(), nil), nil)
	reaper := NewSessionReaper(env.svc, nil, time.Hour)

	assert.False(t, reaper.IsRunning())
	reaper.Start(context.Background())
	assert.True(t, reaper.IsRunning())
	reaper.Start(context.Background())

	reaper.Stop()
	assert.False(t, reaper.IsRunning())
	reaper.Stop()

	// Restartable after a stop.
	reaper.Start(context.Background())
	assert.True(t, reaper.IsRunning())
	reaper.Stop()
}
