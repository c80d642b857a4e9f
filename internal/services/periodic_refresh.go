package services

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// Refresher rebuilds a cached snapshot
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PeriodicRefreshService refreshes snapshots on an interval so requests
// rarely wait on upstream feeds
type PeriodicRefreshService struct {
	refreshers map[string]Refresher
	interval   time.Duration
	timeout    time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewPeriodicRefreshService creates a refresh loop over named refreshers
func NewPeriodicRefreshService(interval time.Duration, refreshers map[string]Refresher) *PeriodicRefreshService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PeriodicRefreshService{
		refreshers: refreshers,
		interval:   interval,
		timeout:    2 * time.Minute,
	}
}

// StartPeriodicRefresh refreshes immediately and then on every tick
func (p *PeriodicRefreshService) StartPeriodicRefresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	p.running = true
	p.stopChan = make(chan struct{})

	log.Printf("Starting periodic refresh every %v for %d feeds", p.interval, len(p.refreshers))
	go p.refreshLoop(ctx, p.stopChan)
	return nil
}

// Stop ends the refresh loop
func (p *PeriodicRefreshService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	p.running = false
	close(p.stopChan)
	log.Printf("Stopped periodic refresh service")
}

// IsRunning returns whether periodic refresh is active
func (p *PeriodicRefreshService) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicRefreshService) refreshLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RefreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Periodic refresh stopping due to context cancellation")
			return
		case <-stop:
			log.Printf("Periodic refresh stopping due to stop signal")
			return
		case <-ticker.C:
			p.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs every refresher once. A failing or panicking refresher
// does not stop the others.
func (p *PeriodicRefreshService) RefreshAll(ctx context.Context) {
	for name, r := range p.refreshers {
		p.refreshOne(ctx, name, r)
	}
}

func (p *PeriodicRefreshService) refreshOne(ctx context.Context, name string, r Refresher) {
	ctx = logging.EnsureLogger(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			stackErr, _ := errors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "Periodic refresh: recovered from panic",
				"feed", name, "error", rec, "error.stack_trace", stackErr.MinimalStack(3, 5))
		}
	}()

	refreshCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := r.Refresh(refreshCtx); err != nil {
		log.Printf("Periodic refresh of %s failed: %v", name, err)
		return
	}
	log.Printf("Periodic refresh of %s completed", name)
}
