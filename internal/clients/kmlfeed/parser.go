package kmlfeed

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// HTTPDoer is the subset of *http.Client the parser needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedType is the kind of incidents a KML feed publishes
type FeedType int

const (
	ROAD_CLOSURE FeedType = iota
	ROADWORKS
	TRAFFIC_INCIDENT
)

func (t FeedType) String() string {
	switch t {
	case ROAD_CLOSURE:
		return "road_closure"
	case ROADWORKS:
		return "roadworks"
	case TRAFFIC_INCIDENT:
		return "traffic_incident"
	}
	return "unknown"
}

// Feed is one KML endpoint
type Feed struct {
	Name string   `koanf:"name" yaml:"name"`
	URL  string   `koanf:"url" yaml:"url"`
	Type FeedType `koanf:"type" yaml:"type"`
}

// FeedParser processes municipal incident KML feeds
type FeedParser struct {
	HTTPClient HTTPDoer
	feeds      []Feed
	now        func() time.Time
}

// Incident represents parsed incident data from KML feeds
type Incident struct {
	FeedType        FeedType
	FeedName        string
	ID              string
	Name            string
	DescriptionHTML string
	DescriptionText string
	StyleURL        string
	Coordinates     *geo.Point
	ParsedStatus    string
	ParsedDates     []string
	LastFetched     time.Time
}

// NewFeedParser creates a parser over the given feeds
func NewFeedParser(feeds []Feed) *FeedParser {
	return &FeedParser{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		feeds: feeds,
		now:   time.Now,
	}
}

// ParseAll downloads every configured feed. A failing feed is reported in
// the returned error while incidents from the rest are still returned.
func (p *FeedParser) ParseAll(ctx context.Context) ([]Incident, error) {
	var all []Incident
	var failed []string
	for _, f := range p.feeds {
		incidents, err := p.ParseFeed(ctx, f)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		all = append(all, incidents...)
	}
	if len(failed) > 0 {
		return all, fmt.Errorf("failed to parse %d of %d feeds: %s", len(failed), len(p.feeds), strings.Join(failed, "; "))
	}
	return all, nil
}

// ActiveAlerts returns every placemark of every feed as an active alert
func (p *FeedParser) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	incidents, err := p.ParseAll(ctx)
	if len(incidents) == 0 && err != nil {
		return nil, err
	}

	out := make([]alerts.Alert, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, inc.Alert())
	}
	return out, err
}

// ParseFeed downloads and parses a single KML feed
func (p *FeedParser) ParseFeed(ctx context.Context, feed Feed) ([]Incident, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download KML: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d downloading KML from %s", resp.StatusCode, feed.URL)
	}

	kmlData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read KML response: %w", err)
	}

	return p.Parse(bytes.NewReader(kmlData), feed)
}

// Parse decodes a KML document, collecting placemarks at any folder depth
func (p *FeedParser) Parse(r io.Reader, feed Feed) ([]Incident, error) {
	var doc kmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	var incidents []Incident
	now := p.now()
	for _, pm := range doc.Document.placemarks() {
		if incident := processPlacemark(pm, feed, now); incident != nil {
			incidents = append(incidents, *incident)
		}
	}
	return incidents, nil
}

// processPlacemark converts a placemark to an Incident; placemarks without
// usable point coordinates are skipped
func processPlacemark(pm kmlPlacemark, feed Feed, fetchTime time.Time) *Incident {
	coordinates := parseCoordinates(pm.Point.Coordinates)
	if coordinates == nil {
		return nil
	}

	descriptionText := extractTextFromHTML(pm.Description)
	id := pm.ID
	if id == "" {
		id = fmt.Sprintf("%s-%.5f-%.5f", feed.Name, coordinates.Latitude, coordinates.Longitude)
	}

	return &Incident{
		FeedType:        feed.Type,
		FeedName:        feed.Name,
		ID:              id,
		Name:            strings.TrimSpace(pm.Name),
		DescriptionHTML: pm.Description,
		DescriptionText: descriptionText,
		StyleURL:        strings.TrimSpace(pm.StyleURL),
		Coordinates:     coordinates,
		ParsedStatus:    extractStatus(pm.Name + " " + descriptionText),
		ParsedDates:     extractDates(descriptionText),
		LastFetched:     fetchTime,
	}
}

// Alert converts the incident into an alert. Severity is a first estimate
// from the feed type and status; the alert feed may reclassify it.
func (i Incident) Alert() alerts.Alert {
	t, sev := alerts.TypeOther, alerts.SeverityMedium
	switch i.FeedType {
	case ROAD_CLOSURE:
		t, sev = alerts.TypeClosure, alerts.SeverityHigh
	case ROADWORKS:
		t = alerts.TypeConstruction
	case TRAFFIC_INCIDENT:
		t = alerts.TypeAccident
	}
	switch i.ParsedStatus {
	case "cierre total":
		t, sev = alerts.TypeClosure, alerts.SeverityCritical
	case "cierre", "cerrado", "cerrada":
		t, sev = alerts.TypeClosure, alerts.SeverityHigh
	case "manifestación", "protesta":
		t = alerts.TypeProtest
	}

	description := i.DescriptionText
	if description == "" {
		description = i.Name
	}
	return alerts.Alert{
		ID:          "kml-" + i.ID,
		Title:       i.Name,
		Description: description,
		Type:        t,
		Severity:    sev,
		Location:    i.Coordinates,
		Source:      "kml:" + i.FeedName,
		Timestamp:   i.LastFetched,
		IsActive:    true,
	}
}

// parseCoordinates reads the first "lon,lat[,alt]" tuple
func parseCoordinates(raw string) *geo.Point {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	parts := strings.Split(fields[0], ",")
	if len(parts) < 2 {
		return nil
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil
	}
	return &geo.Point{Latitude: lat, Longitude: lon}
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	statusPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cierre total`),
		regexp.MustCompile(`(?i)cierre|cerrad[oa]`),
		regexp.MustCompile(`(?i)manifestaci[oó]n|protesta`),
		regexp.MustCompile(`(?i)obras?|construcci[oó]n`),
		regexp.MustCompile(`(?i)accidente|choque|incidente`),
	}
	datePattern = regexp.MustCompile(`\d{1,2}[/\-]\d{1,2}[/\-]\d{4}`)
)

// extractTextFromHTML removes HTML tags and decodes HTML entities
func extractTextFromHTML(htmlContent string) string {
	text := tagPattern.ReplaceAllString(htmlContent, " ")
	text = html.UnescapeString(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractStatus returns the first status phrase found, lowercased
func extractStatus(text string) string {
	for _, re := range statusPatterns {
		if match := re.FindString(text); match != "" {
			return strings.ToLower(match)
		}
	}
	return ""
}

// extractDates finds dd/mm/yyyy style dates, deduplicated in order
func extractDates(text string) []string {
	matches := datePattern.FindAllString(text, -1)

	seen := make(map[string]bool)
	var uniqueDates []string
	for _, date := range matches {
		if !seen[date] {
			seen[date] = true
			uniqueDates = append(uniqueDates, date)
		}
	}
	return uniqueDates
}

type kmlDocument struct {
	XMLName  xml.Name  `xml:"kml"`
	Document kmlFolder `xml:"Document"`
}

type kmlFolder struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlFolder    `xml:"Folder"`
}

func (f kmlFolder) placemarks() []kmlPlacemark {
	out := append([]kmlPlacemark(nil), f.Placemarks...)
	for _, sub := range f.Folders {
		out = append(out, sub.placemarks()...)
	}
	return out
}

type kmlPlacemark struct {
	ID          string `xml:"id,attr"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	StyleURL    string `xml:"styleUrl"`
	Point       struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
}
