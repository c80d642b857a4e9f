package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/movilityai/tripplanner/internal/cache"
	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/zones"
)

const alertsCacheKey = "alerts:active"

// AlertProvider produces active alerts from one upstream
type AlertProvider interface {
	ActiveAlerts(ctx context.Context) ([]alerts.Alert, error)
}

// AlertSource is a named provider
type AlertSource struct {
	Name     string
	Provider AlertProvider
}

// AlertFeedConfig controls refresh and caching of the merged snapshot
type AlertFeedConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval" yaml:"refresh_interval"`
	SourceTimeout   time.Duration `koanf:"source_timeout" yaml:"source_timeout"`
}

// AlertFeed merges every alert source into one deduplicated, zone-tagged
// snapshot. Stale snapshots are served when every source fails.
type AlertFeed struct {
	sources    []AlertSource
	registry   *zones.Registry
	classifier alerts.Classifier
	cache      *cache.Cache
	hasher     *alerts.ContentHasher
	cfg        AlertFeedConfig

	refreshMu sync.Mutex
}

// NewAlertFeed creates a feed over the given sources. A nil classifier uses
// the keyword tables and a nil cache gets a private one.
func NewAlertFeed(registry *zones.Registry, classifier alerts.Classifier, c *cache.Cache, cfg AlertFeedConfig, sources ...AlertSource) *AlertFeed {
	if registry == nil {
		registry = zones.Default()
	}
	if classifier == nil {
		classifier = alerts.KeywordClassifier{}
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 20 * time.Second
	}
	if c == nil {
		c = cache.NewCache()
	}
	return &AlertFeed{
		sources:    sources,
		registry:   registry,
		classifier: classifier,
		cache:      c,
		hasher:     alerts.NewContentHasher(),
		cfg:        cfg,
	}
}

// ActiveAlerts returns the cached snapshot, refreshing it when stale
func (f *AlertFeed) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	var cached []alerts.Alert
	found, fresh, err := f.cache.GetStale(alertsCacheKey, &cached)
	if err != nil {
		log.Printf("Cache error: %v", err)
		found = false
	}
	if found && fresh {
		return cached, nil
	}

	refreshed, err := f.refresh(ctx)
	if err != nil {
		if found {
			log.Printf("Alert refresh failed, returning stale snapshot (%d alerts): %v", len(cached), err)
			return cached, nil
		}
		return nil, fmt.Errorf("failed to refresh alerts: %w", err)
	}
	return refreshed, nil
}

// Refresh rebuilds the snapshot regardless of cache state
func (f *AlertFeed) Refresh(ctx context.Context) error {
	_, err := f.refresh(ctx)
	return err
}

func (f *AlertFeed) refresh(ctx context.Context) ([]alerts.Alert, error) {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	raw, err := f.collect(ctx)
	if err != nil {
		return nil, err
	}

	merged := f.merge(ctx, raw)
	if err := f.cache.Set(alertsCacheKey, merged, f.cfg.RefreshInterval, "alerts"); err != nil {
		log.Printf("Failed to cache alerts: %v", err)
	}
	log.Printf("Alert snapshot refreshed: %d raw, %d after merge", len(raw), len(merged))
	return merged, nil
}

// collect queries every source concurrently. It fails only when every
// source failed.
func (f *AlertFeed) collect(ctx context.Context) ([]alerts.Alert, error) {
	if len(f.sources) == 0 {
		return nil, nil
	}

	results := make([][]alerts.Alert, len(f.sources))
	failures := make([]error, len(f.sources))

	var g errgroup.Group
	for i, src := range f.sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, f.cfg.SourceTimeout)
			defer cancel()

			got, err := src.Provider.ActiveAlerts(sctx)
			if err != nil {
				log.Printf("Alert source %s failed: %v", src.Name, err)
				failures[i] = fmt.Errorf("%s: %w", src.Name, err)
			}
			results[i] = got
			return nil
		})
	}
	_ = g.Wait()

	var all []alerts.Alert
	var failed []error
	for i := range f.sources {
		all = append(all, results[i]...)
		if failures[i] != nil && len(results[i]) == 0 {
			failed = append(failed, failures[i])
		}
	}
	if len(failed) == len(f.sources) {
		return nil, errors.Join(failed...)
	}
	return all, nil
}

// merge normalizes, deduplicates and orders alerts. Duplicates keep the
// most severe report, then the newest.
func (f *AlertFeed) merge(ctx context.Context, raw []alerts.Alert) []alerts.Alert {
	byHash := make(map[string]alerts.Alert)
	for _, a := range raw {
		if !a.IsActive {
			continue
		}
		a = f.normalize(ctx, a)
		hash := f.hasher.HashAlert(a)
		if existing, ok := byHash[hash]; ok && !supersedes(a, existing) {
			continue
		}
		byHash[hash] = a
	}

	out := make([]alerts.Alert, 0, len(byHash))
	for _, a := range byHash {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// normalize tags the alert with a registry zone and fills in a missing type
// or severity from the classifier
func (f *AlertFeed) normalize(ctx context.Context, a alerts.Alert) alerts.Alert {
	text := strings.TrimSpace(a.Title + " " + a.Description)

	if a.ZoneTag == "" {
		if a.Location != nil {
			if z, ok := f.registry.FindByPoint(a.Location.Latitude, a.Location.Longitude); ok {
				a.ZoneTag = z.ID
			}
		}
		if a.ZoneTag == "" {
			if z, ok := f.registry.FindByText(text); ok {
				a.ZoneTag = z.ID
			}
		}
	}

	if a.Severity.Rank() == 0 || a.Type == "" || a.Type == alerts.TypeOther {
		c, err := f.classifier.Classify(ctx, text)
		if err != nil {
			log.Printf("Failed to classify alert %s: %v", a.ID, err)
			return a
		}
		if a.Severity.Rank() == 0 {
			a.Severity = c.Severity
		}
		if (a.Type == "" || a.Type == alerts.TypeOther) && c.Type != "" {
			a.Type = c.Type
		}
	}
	return a
}

func supersedes(candidate, existing alerts.Alert) bool {
	if candidate.Severity.Rank() != existing.Severity.Rank() {
		return candidate.Severity.Rank() > existing.Severity.Rank()
	}
	return candidate.Timestamp.After(existing.Timestamp)
}

// StaticAlerts serves a fixed list, used for seeded alerts from config
type StaticAlerts []alerts.Alert

// ActiveAlerts implements AlertProvider
func (s StaticAlerts) ActiveAlerts(_ context.Context) ([]alerts.Alert, error) {
	return append([]alerts.Alert(nil), s...), nil
}
