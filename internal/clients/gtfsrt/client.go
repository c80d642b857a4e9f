// Package gtfsrt reads GTFS-realtime service alert feeds published by the
// metro operator and derives incident alerts and per-line operating status.
package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/transit"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches a GTFS-realtime alerts feed
type Client struct {
	feedURL    string
	httpClient HTTPDoer
	lines      []string
	now        func() time.Time
}

// NewClient creates a client for feedURL. Lines lists the route ids reported
// as operational when the feed says nothing about them.
func NewClient(feedURL string, timeout time.Duration, lines []string) *Client {
	return NewClientWithHTTPDoer(feedURL, &http.Client{Timeout: timeout}, lines)
}

// NewClientWithHTTPDoer creates a client using the given transport
func NewClientWithHTTPDoer(feedURL string, doer HTTPDoer, lines []string) *Client {
	return &Client{
		feedURL:    feedURL,
		httpClient: doer,
		lines:      lines,
		now:        time.Now,
	}
}

// WithClock returns a copy of the client evaluating active periods at now()
func (c *Client) WithClock(now func() time.Time) *Client {
	cp := *c
	cp.now = now
	return &cp
}

// ServiceAlert is one active feed alert with the lines it informs
type ServiceAlert struct {
	ID          string
	Routes      []string
	Header      string
	Description string
	Cause       gtfs.Alert_Cause
	Effect      gtfs.Alert_Effect
	Start       time.Time
}

// FetchFeed downloads and decodes the feed
func (c *Client) FetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching alerts feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alerts feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading alerts response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parsing alerts protobuf: %w", err)
	}
	return feed, nil
}

// ServiceAlerts returns the feed alerts active now
func (c *Client) ServiceAlerts(ctx context.Context) ([]ServiceAlert, error) {
	feed, err := c.FetchFeed(ctx)
	if err != nil {
		return nil, err
	}
	return parseAlerts(feed, c.now()), nil
}

// ActiveAlerts returns the feed alerts as incident alerts. Zone resolution is
// left to downstream text matching since feed alerts carry no coordinates.
func (c *Client) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	service, err := c.ServiceAlerts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]alerts.Alert, 0, len(service))
	for _, sa := range service {
		out = append(out, alerts.Alert{
			ID:          "gtfsrt-" + sa.ID,
			Title:       sa.Header,
			Description: sa.Description,
			Type:        alertType(sa.Cause, sa.Effect),
			Severity:    severity(sa.Effect),
			Source:      "gtfs-rt",
			Timestamp:   sa.Start,
			IsActive:    true,
		})
	}
	return out, nil
}

// LineStatuses reports each configured line plus any line the feed mentions
func (c *Client) LineStatuses(ctx context.Context) ([]transit.LineStatus, error) {
	service, err := c.ServiceAlerts(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()

	byLine := make(map[string]transit.LineStatus, len(c.lines))
	for _, line := range c.lines {
		byLine[line] = transit.LineStatus{Line: line, Status: transit.StatusOperational, UpdatedAt: now}
	}

	for _, sa := range service {
		status := lineStatus(sa.Effect)
		if status == transit.StatusOperational {
			continue
		}
		for _, route := range sa.Routes {
			current, ok := byLine[route]
			// closed outranks delayed
			if ok && current.Status == transit.StatusClosed {
				continue
			}
			byLine[route] = transit.LineStatus{Line: route, Status: status, Message: sa.Header, UpdatedAt: now}
		}
	}

	out := make([]transit.LineStatus, 0, len(byLine))
	for _, s := range byLine {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out, nil
}

func parseAlerts(feed *gtfs.FeedMessage, at time.Time) []ServiceAlert {
	var out []ServiceAlert
	now := at.Unix()

	for _, entity := range feed.GetEntity() {
		alert := entity.GetAlert()
		if alert == nil {
			continue
		}

		active := len(alert.GetActivePeriod()) == 0
		start := int64(feed.GetHeader().GetTimestamp())
		for _, period := range alert.GetActivePeriod() {
			s := int64(period.GetStart())
			e := int64(period.GetEnd())
			if now >= s && (e == 0 || now < e) {
				active = true
				start = s
				break
			}
		}
		if !active {
			continue
		}

		var routes []string
		seen := make(map[string]bool)
		for _, ie := range alert.GetInformedEntity() {
			if routeID := ie.GetRouteId(); routeID != "" && !seen[routeID] {
				seen[routeID] = true
				routes = append(routes, routeID)
			}
		}

		header := translatedText(alert.GetHeaderText())
		if header == "" {
			continue
		}

		out = append(out, ServiceAlert{
			ID:          entity.GetId(),
			Routes:      routes,
			Header:      header,
			Description: translatedText(alert.GetDescriptionText()),
			Cause:       alert.GetCause(),
			Effect:      alert.GetEffect(),
			Start:       time.Unix(start, 0).UTC(),
		})
	}

	return out
}

func lineStatus(effect gtfs.Alert_Effect) transit.Status {
	switch effect {
	case gtfs.Alert_NO_SERVICE:
		return transit.StatusClosed
	case gtfs.Alert_REDUCED_SERVICE, gtfs.Alert_SIGNIFICANT_DELAYS, gtfs.Alert_DETOUR, gtfs.Alert_MODIFIED_SERVICE:
		return transit.StatusDelayed
	}
	return transit.StatusOperational
}

func severity(effect gtfs.Alert_Effect) alerts.Severity {
	switch effect {
	case gtfs.Alert_NO_SERVICE:
		return alerts.SeverityCritical
	case gtfs.Alert_SIGNIFICANT_DELAYS, gtfs.Alert_REDUCED_SERVICE:
		return alerts.SeverityHigh
	case gtfs.Alert_DETOUR, gtfs.Alert_MODIFIED_SERVICE, gtfs.Alert_STOP_MOVED:
		return alerts.SeverityMedium
	}
	return alerts.SeverityLow
}

func alertType(cause gtfs.Alert_Cause, effect gtfs.Alert_Effect) alerts.AlertType {
	switch cause {
	case gtfs.Alert_ACCIDENT:
		return alerts.TypeAccident
	case gtfs.Alert_CONSTRUCTION, gtfs.Alert_MAINTENANCE:
		return alerts.TypeConstruction
	case gtfs.Alert_DEMONSTRATION, gtfs.Alert_STRIKE:
		return alerts.TypeProtest
	case gtfs.Alert_WEATHER:
		return alerts.TypeWeather
	case gtfs.Alert_HOLIDAY:
		return alerts.TypeEvent
	}
	if effect == gtfs.Alert_NO_SERVICE {
		return alerts.TypeClosure
	}
	return alerts.TypeOther
}

// translatedText prefers Spanish, then the untagged translation, then the first
func translatedText(ts *gtfs.TranslatedString) string {
	if ts == nil {
		return ""
	}
	for _, t := range ts.GetTranslation() {
		if t.GetLanguage() == "es" || t.GetLanguage() == "" {
			return t.GetText()
		}
	}
	if len(ts.GetTranslation()) > 0 {
		return ts.GetTranslation()[0].GetText()
	}
	return ""
}
