package services

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
)

// ExpiredRouteCleaner purges expired persisted routes.
type ExpiredRouteCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionReaper periodically stops idle navigation sessions and purges
// expired routes from the persistent route cache.
type SessionReaper struct {
	service  *NavigationService
	cleaner  ExpiredRouteCleaner
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSessionReaper creates a reaper that runs every interval. cleaner may
// be nil.
func NewSessionReaper(service *NavigationService, cleaner ExpiredRouteCleaner, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		service:  service,
		cleaner:  cleaner,
		interval: interval,
	}
}

// Start begins reaping in the background until ctx is done or Stop is called.
func (p *SessionReaper) Start(ctx context.Context) {
	ctx = logging.EnsureLogger(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})

	logging.Infow(ctx, "Session reaper: starting", "interval", p.interval)
	go p.reapLoop(ctx, p.stopChan)
}

// Stop halts the background loop.
func (p *SessionReaper) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
}

// IsRunning returns whether the reaper loop is active
func (p *SessionReaper) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SessionReaper) reapLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Session reaper: stopping due to context cancellation")
			return
		case <-stop:
			logging.Infow(ctx, "Session reaper: stopping due to stop signal")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reaping pass.
func (p *SessionReaper) RunOnce(ctx context.Context) {
	ctx = logging.EnsureLogger(ctx)
	if reaped := p.service.ReapIdle(ctx); reaped > 0 {
		logging.Infow(ctx, "Session reaper: removed idle sessions", "count", reaped)
	}

	if p.cleaner == nil {
		return
	}
	cleanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	removed, err := p.cleaner.DeleteExpired(cleanCtx)
	if err != nil {
		logging.Warnw(ctx, "Session reaper: route cache cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		logging.Debugw(ctx, "Session reaper: purged expired routes", "count", removed)
	}
}
