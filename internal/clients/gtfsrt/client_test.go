package gtfsrt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/transit"
)

var now = time.Date(2025, 3, 12, 7, 30, 0, 0, time.UTC)

func text(s string) *gtfs.TranslatedString {
	return &gtfs.TranslatedString{Translation: []*gtfs.TranslatedString_Translation{
		{Text: proto.String(s + " (en)"), Language: proto.String("en")},
		{Text: proto.String(s), Language: proto.String("es")},
	}}
}

func feedAlert(id string, effect gtfs.Alert_Effect, cause gtfs.Alert_Cause, header string, start, end time.Time, routes ...string) *gtfs.FeedEntity {
	var informed []*gtfs.EntitySelector
	for _, r := range routes {
		informed = append(informed, &gtfs.EntitySelector{RouteId: proto.String(r)})
	}
	period := &gtfs.TimeRange{Start: proto.Uint64(uint64(start.Unix()))}
	if !end.IsZero() {
		period.End = proto.Uint64(uint64(end.Unix()))
	}
	return &gtfs.FeedEntity{
		Id: proto.String(id),
		Alert: &gtfs.Alert{
			ActivePeriod:    []*gtfs.TimeRange{period},
			InformedEntity:  informed,
			Cause:           cause.Enum(),
			Effect:          effect.Enum(),
			HeaderText:      text(header),
			DescriptionText: text(header + ". Detalle"),
		},
	}
}

func testFeed(t *testing.T) []byte {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: []*gtfs.FeedEntity{
			feedAlert("1", gtfs.Alert_SIGNIFICANT_DELAYS, gtfs.Alert_TECHNICAL_PROBLEM,
				"Demoras en la Línea A", now.Add(-time.Hour), time.Time{}, "A"),
			feedAlert("2", gtfs.Alert_NO_SERVICE, gtfs.Alert_MAINTENANCE,
				"Cierre de la Línea K", now.Add(-2*time.Hour), now.Add(time.Hour), "K", "A"),
			feedAlert("3", gtfs.Alert_DETOUR, gtfs.Alert_DEMONSTRATION,
				"Desvío del Metroplús", now.Add(time.Hour), now.Add(2*time.Hour), "L1"),
			{Id: proto.String("4")},
		},
	}
	data, err := proto.Marshal(feed)
	require.NoError(t, err)
	return data
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, time.Second, []string{"A", "B", "K"}).WithClock(func() time.Time { return now })
}

func TestServiceAlerts_ActiveOnly(t *testing.T) {
	data := testFeed(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(data)
	})

	got, err := client.ServiceAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2, "future alert and non-alert entity are skipped")

	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "Demoras en la Línea A", got[0].Header, "Spanish translation preferred")
	assert.Equal(t, []string{"K", "A"}, got[1].Routes)
	assert.Equal(t, now.Add(-2*time.Hour), got[1].Start)
}

func TestActiveAlerts(t *testing.T) {
	data := testFeed(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	})

	got, err := client.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "gtfsrt-1", got[0].ID)
	assert.Equal(t, alerts.SeverityHigh, got[0].Severity)
	assert.Equal(t, alerts.TypeOther, got[0].Type)
	assert.Equal(t, "Demoras en la Línea A. Detalle", got[0].Description)
	assert.True(t, got[0].IsActive)

	assert.Equal(t, alerts.SeverityCritical, got[1].Severity)
	assert.Equal(t, alerts.TypeConstruction, got[1].Type)
}

func TestLineStatuses(t *testing.T) {
	data := testFeed(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	})

	got, err := client.LineStatuses(context.Background())
	require.NoError(t, err)

	statuses := make(map[string]transit.Status)
	for _, s := range got {
		statuses[s.Line] = s.Status
	}
	assert.Equal(t, map[string]transit.Status{
		"A": transit.StatusClosed,
		"B": transit.StatusOperational,
		"K": transit.StatusClosed,
	}, statuses)
	assert.Equal(t, []string{"A", "B", "K"}, []string{got[0].Line, got[1].Line, got[2].Line})
	assert.Len(t, transit.Disrupted(got), 2)
}

func TestFetchFeed_Errors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.LineStatuses(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts feed returned status 503")

	garbage := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xff, 0xff})
	})
	_, err = garbage.ActiveAlerts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing alerts protobuf")
}

func TestTranslatedText(t *testing.T) {
	assert.Equal(t, "", translatedText(nil))
	only := &gtfs.TranslatedString{Translation: []*gtfs.TranslatedString_Translation{
		{Text: proto.String("Delays"), Language: proto.String("en")},
	}}
	assert.Equal(t, "Delays", translatedText(only))
}
