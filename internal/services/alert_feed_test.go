package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movilityai/tripplanner/internal/cache"
	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

var reportedAt = time.Date(2025, 3, 12, 7, 0, 0, 0, time.UTC)

// countingProvider returns a fixed result and counts calls
type countingProvider struct {
	alerts []alerts.Alert
	err    error
	calls  atomic.Int32
}

func (p *countingProvider) ActiveAlerts(_ context.Context) ([]alerts.Alert, error) {
	p.calls.Add(1)
	return p.alerts, p.err
}

// stubClassifier always returns the same classification
type stubClassifier struct {
	result alerts.Classification
	mu     sync.Mutex
	texts  []string
}

func (c *stubClassifier) Classify(_ context.Context, text string) (alerts.Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return c.result, nil
}

func TestAlertFeed_MergesSources(t *testing.T) {
	operator := StaticAlerts{
		{ID: "op-1", Description: "Choque en la Autopista Norte", Type: alerts.TypeAccident,
			Severity: alerts.SeverityHigh, Source: "operator", Timestamp: reportedAt, IsActive: true},
		{ID: "op-2", Description: "Obras", Location: &geo.Point{Latitude: 6.30, Longitude: -75.56},
			Source: "operator", Timestamp: reportedAt, IsActive: true},
		{ID: "op-3", Description: "Ya despejado", Severity: alerts.SeverityLow, IsActive: false},
	}
	stream := &countingProvider{alerts: []alerts.Alert{
		{ID: "k-1", Description: "choque en la autopista norte.", Type: alerts.TypeAccident,
			Severity: alerts.SeverityCritical, Source: "kafka", Timestamp: reportedAt.Add(time.Minute), IsActive: true},
	}}
	broken := &countingProvider{err: errors.New("connection refused")}
	classifier := &stubClassifier{result: alerts.Classification{Type: alerts.TypeConstruction, Severity: alerts.SeverityMedium}}

	feed := NewAlertFeed(nil, classifier, cache.NewCache(), AlertFeedConfig{},
		AlertSource{Name: "operator", Provider: operator},
		AlertSource{Name: "kafka", Provider: stream},
		AlertSource{Name: "kml", Provider: broken},
	)

	got, err := feed.ActiveAlerts(context.Background())
	require.NoError(t, err, "one failing source does not fail the snapshot")
	require.Len(t, got, 2)

	assert.Equal(t, "k-1", got[0].ID, "the more severe duplicate wins")
	assert.Equal(t, alerts.SeverityCritical, got[0].Severity)
	assert.Equal(t, "autopista-norte", got[0].ZoneTag, "zone resolved from text")

	assert.Equal(t, "op-2", got[1].ID)
	assert.Equal(t, "autopista-norte", got[1].ZoneTag, "zone resolved from location")
	assert.Equal(t, alerts.TypeConstruction, got[1].Type)
	assert.Equal(t, alerts.SeverityMedium, got[1].Severity)

	assert.Equal(t, []string{"Obras"}, classifier.texts, "only incomplete alerts are classified")
}

func TestAlertFeed_ServesFreshSnapshot(t *testing.T) {
	source := &countingProvider{alerts: []alerts.Alert{
		{ID: "a1", Description: "Cierre", Type: alerts.TypeClosure, Severity: alerts.SeverityHigh, IsActive: true},
	}}
	feed := NewAlertFeed(nil, nil, cache.NewCache(), AlertFeedConfig{RefreshInterval: time.Hour},
		AlertSource{Name: "static", Provider: source})

	for i := 0; i < 3; i++ {
		got, err := feed.ActiveAlerts(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, int32(1), source.calls.Load())

	require.NoError(t, feed.Refresh(context.Background()))
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestAlertFeed_ServesStaleOnFailure(t *testing.T) {
	now := reportedAt
	c := cache.NewCache().WithClock(func() time.Time { return now })
	source := &countingProvider{alerts: []alerts.Alert{
		{ID: "a1", Description: "Cierre", Type: alerts.TypeClosure, Severity: alerts.SeverityHigh, IsActive: true},
	}}
	feed := NewAlertFeed(nil, nil, c, AlertFeedConfig{RefreshInterval: 5 * time.Minute},
		AlertSource{Name: "static", Provider: source})

	_, err := feed.ActiveAlerts(context.Background())
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	source.alerts = nil
	source.err = errors.New("timeout")

	got, err := feed.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestAlertFeed_AllSourcesFail(t *testing.T) {
	feed := NewAlertFeed(nil, nil, cache.NewCache(), AlertFeedConfig{},
		AlertSource{Name: "kml", Provider: &countingProvider{err: errors.New("HTTP error 503")}},
		AlertSource{Name: "gtfs-rt", Provider: &countingProvider{err: errors.New("timeout")}},
	)

	got, err := feed.ActiveAlerts(context.Background())
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "failed to refresh alerts")
	assert.Contains(t, err.Error(), "kml: HTTP error 503")
	assert.Contains(t, err.Error(), "gtfs-rt: timeout")
}

func TestAlertFeed_NoSources(t *testing.T) {
	feed := NewAlertFeed(nil, nil, cache.NewCache(), AlertFeedConfig{})
	got, err := feed.ActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

type refresherFunc func(ctx context.Context) error

func (f refresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

func TestAlertFeed_NilCache(t *testing.T) {
	provider := &countingProvider{alerts: []alerts.Alert{
		{ID: "k-1", Description: "Choque", Type: alerts.TypeAccident, Severity: alerts.SeverityHigh,
			ZoneTag: "avenida-33", Timestamp: reportedAt, IsActive: true},
	}}
	feed := NewAlertFeed(nil, nil, nil, AlertFeedConfig{RefreshInterval: time.Hour},
		AlertSource{Name: "kafka", Provider: provider})

	got, err := feed.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = feed.ActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), provider.calls.Load(), "second read served from the private cache")
}

func TestPeriodicRefresh_RefreshAll(t *testing.T) {
	var calls atomic.Int32
	svc := NewPeriodicRefreshService(time.Minute, map[string]Refresher{
		"panics": refresherFunc(func(context.Context) error { panic("boom") }),
		"fails":  refresherFunc(func(context.Context) error { calls.Add(1); return errors.New("down") }),
		"works":  refresherFunc(func(context.Context) error { calls.Add(1); return nil }),
	})

	assert.NotPanics(t, func() { svc.RefreshAll(context.Background()) })
	assert.Equal(t, int32(2), calls.Load())
}

func TestPeriodicRefresh_StartStop(t *testing.T) {
	refreshed := make(chan struct{}, 1)
	svc := NewPeriodicRefreshService(time.Hour, map[string]Refresher{
		"alerts": refresherFunc(func(context.Context) error {
			select {
			case refreshed <- struct{}{}:
			default:
			}
			return nil
		}),
	})

	require.NoError(t, svc.StartPeriodicRefresh(context.Background()))
	require.NoError(t, svc.StartPeriodicRefresh(context.Background()))
	assert.True(t, svc.IsRunning())

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("initial refresh did not run")
	}

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}
