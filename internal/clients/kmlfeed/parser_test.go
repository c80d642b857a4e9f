package kmlfeed

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

const closuresKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>Cierres viales</name>
    <Placemark id="c-101">
      <name>Cierre total Autopista Norte</name>
      <description><![CDATA[<b>Cierre total</b> por obras de la EPM &amp; la Alcaldía. Vigente 12/03/2025 a 14/03/2025, revisar 12/03/2025]]></description>
      <styleUrl>#closure</styleUrl>
      <Point><coordinates>-75.5664,6.2704,0</coordinates></Point>
    </Placemark>
    <Folder>
      <name>Obras</name>
      <Folder>
        <Placemark>
          <name>Obras en la Avenida 33</name>
          <description>Reducción de carril</description>
          <Point><coordinates>-75.5812,6.2442</coordinates></Point>
        </Placemark>
      </Folder>
      <Placemark>
        <name>Sin ubicación</name>
        <LineString><coordinates>-75.1,6.1 -75.2,6.2</coordinates></LineString>
      </Placemark>
    </Folder>
  </Document>
</kml>`

const incidentsKML = `<kml><Document>
  <Placemark id="i-7"><name>Choque en la Regional</name><Point><coordinates>-75.5945,6.2442</coordinates></Point></Placemark>
  <Placemark id="i-8"><name>Manifestación en la Oriental</name><Point><coordinates>-75.5636,6.2442</coordinates></Point></Placemark>
</Document></kml>`

// mockHTTPClient serves fixed KML bodies by URL
type mockHTTPClient struct {
	bodies map[string]string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	body, ok := m.bodies[req.URL.String()]
	if !ok {
		return &http.Response{
			StatusCode: 404,
			Body:       io.NopCloser(strings.NewReader("Not found")),
		}, nil
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

var (
	fetchedAt     = time.Date(2025, 3, 12, 7, 30, 0, 0, time.UTC)
	closuresFeed  = Feed{Name: "cierres", URL: "https://datos.medellin.gov.co/cierres.kml", Type: ROAD_CLOSURE}
	incidentsFeed = Feed{Name: "incidentes", URL: "https://datos.medellin.gov.co/incidentes.kml", Type: TRAFFIC_INCIDENT}
	missingFeed   = Feed{Name: "obras", URL: "https://datos.medellin.gov.co/obras.kml", Type: ROADWORKS}
)

func setupTestParser(feeds ...Feed) *FeedParser {
	parser := NewFeedParser(feeds)
	parser.HTTPClient = &mockHTTPClient{bodies: map[string]string{
		closuresFeed.URL:  closuresKML,
		incidentsFeed.URL: incidentsKML,
	}}
	parser.now = func() time.Time { return fetchedAt }
	return parser
}

func TestParseFeed_Closures(t *testing.T) {
	parser := setupTestParser(closuresFeed)

	incidents, err := parser.ParseFeed(context.Background(), closuresFeed)
	require.NoError(t, err)
	require.Len(t, incidents, 2, "nested folders are walked and placemarks without points skipped")

	first := incidents[0]
	assert.Equal(t, ROAD_CLOSURE, first.FeedType)
	assert.Equal(t, "c-101", first.ID)
	assert.Equal(t, "Cierre total Autopista Norte", first.Name)
	assert.Equal(t, "#closure", first.StyleURL)
	assert.Equal(t, &geo.Point{Latitude: 6.2704, Longitude: -75.5664}, first.Coordinates)
	assert.Equal(t, "Cierre total por obras de la EPM & la Alcaldía. Vigente 12/03/2025 a 14/03/2025, revisar 12/03/2025", first.DescriptionText)
	assert.Equal(t, "cierre total", first.ParsedStatus)
	assert.Equal(t, []string{"12/03/2025", "14/03/2025"}, first.ParsedDates)
	assert.Equal(t, fetchedAt, first.LastFetched)

	second := incidents[1]
	assert.Equal(t, "cierres-6.24420--75.58120", second.ID)
	assert.Equal(t, "obras", second.ParsedStatus)
}

func TestIncidentAlert(t *testing.T) {
	parser := setupTestParser(closuresFeed, incidentsFeed)

	got, err := parser.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)

	closure := got[0]
	assert.Equal(t, "kml-c-101", closure.ID)
	assert.Equal(t, alerts.TypeClosure, closure.Type)
	assert.Equal(t, alerts.SeverityCritical, closure.Severity)
	assert.Equal(t, "kml:cierres", closure.Source)
	assert.True(t, closure.IsActive)

	works := got[1]
	assert.Equal(t, alerts.TypeClosure, works.Type, "closure feed type wins without a status override")
	assert.Equal(t, alerts.SeverityHigh, works.Severity)

	crash := got[2]
	assert.Equal(t, alerts.TypeAccident, crash.Type)
	assert.Equal(t, alerts.SeverityMedium, crash.Severity)
	assert.Equal(t, "Choque en la Regional", crash.Description, "name stands in for a missing description")

	assert.Equal(t, alerts.TypeProtest, got[3].Type)
}

func TestParseAll_PartialFailure(t *testing.T) {
	parser := setupTestParser(closuresFeed, missingFeed, incidentsFeed)

	incidents, err := parser.ParseAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse 1 of 3 feeds")
	assert.Contains(t, err.Error(), "HTTP error 404")
	assert.Len(t, incidents, 4)

	only := setupTestParser(missingFeed)
	got, err := only.ActiveAlerts(context.Background())
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestParse_InvalidXML(t *testing.T) {
	parser := setupTestParser()
	_, err := parser.Parse(strings.NewReader("<kml><Document>"), closuresFeed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse KML")
}

func TestExtractHelpers(t *testing.T) {
	assert.Equal(t, "a b", extractTextFromHTML("<p>a</p>\n\n<br/>b"))
	assert.Equal(t, "", extractStatus("Tráfico normal"))
	assert.Equal(t, "cerrada", extractStatus("Vía CERRADA por evento"))
	assert.Nil(t, parseCoordinates("not,numbers"))
	assert.Nil(t, parseCoordinates(""))
}
