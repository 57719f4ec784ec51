// Package tfl is a client for the Transport for London unified API.
package tfl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/provider/resilience"
	"github.com/alfredhome/alfred/internal/transit"
	"github.com/alfredhome/alfred/pkg/geo"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "tfl"

	// DefaultBaseURL is the TfL unified API base URL.
	DefaultBaseURL = "https://api.tfl.gov.uk"

	// timestampLayout is the zone-less local time format used by TfL journeys.
	timestampLayout = "2006-01-02T15:04:05"
)

// ClientConfig holds configuration for the TfL client.
type ClientConfig struct {
	// APIKey is sent as the app_key query parameter. Optional for low volumes.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to TfL).
	BaseURL string

	// Location is used to read journey timestamps (default: Europe/London).
	Location *time.Location

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilient client.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a TfL API client for line status, arrivals and journeys.
type Client struct {
	apiKey     string
	baseURL    string
	location   *time.Location
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new TfL client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	loc := cfg.Location
	if loc == nil {
		loc = londonOrUTC()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		location:   loc,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// LineDisruptions fetches the current disruption records for a line.
// An empty slice means the line is clear.
func (c *Client) LineDisruptions(ctx context.Context, line string) ([]transit.LineDisruption, error) {
	var records []tflDisruption
	found, err := c.get(ctx, "/Line/"+url.PathEscape(line)+"/Disruption", nil, &records)
	if err != nil || !found {
		return nil, err
	}

	out := make([]transit.LineDisruption, 0, len(records))
	for _, r := range records {
		out = append(out, transit.LineDisruption{Name: r.Name, Description: r.Description})
	}
	return out, nil
}

// LineStatus fetches detailed status for a line or bus route.
func (c *Client) LineStatus(ctx context.Context, route string) ([]transit.LineStatus, error) {
	var lines []tflLine
	query := url.Values{"detail": {"true"}}
	found, err := c.get(ctx, "/Line/"+url.PathEscape(route)+"/Status", query, &lines)
	if err != nil || !found {
		return nil, err
	}

	out := make([]transit.LineStatus, 0, len(lines))
	for _, l := range lines {
		status := transit.LineStatus{Name: l.Name}
		for _, d := range l.Disruptions {
			if d.Description != "" {
				status.Disruptions = append(status.Disruptions, d.Description)
			}
		}
		out = append(out, status)
	}
	return out, nil
}

// Arrivals fetches predicted arrivals at a stop point for one mode and line.
func (c *Client) Arrivals(ctx context.Context, stopID, mode, line string) ([]transit.Arrival, error) {
	var predictions []tflPrediction
	query := url.Values{"mode": {mode}}
	if line != "" {
		query.Set("line", line)
	}
	found, err := c.get(ctx, "/StopPoint/"+url.PathEscape(stopID)+"/Arrivals", query, &predictions)
	if err != nil || !found {
		return nil, err
	}

	out := make([]transit.Arrival, 0, len(predictions))
	for _, p := range predictions {
		out = append(out, transit.Arrival{
			LineID:          p.LineID,
			LineName:        p.LineName,
			DestinationName: p.DestinationName,
			PlatformName:    p.PlatformName,
			TimeToStation:   p.TimeToStation,
		})
	}
	return out, nil
}

// Journey plans a journey and returns the first itinerary, or nil when
// the planner returned none.
func (c *Client) Journey(ctx context.Context, from, to string) (*transit.PlannedJourney, error) {
	var result tflJourneyResult
	path := "/Journey/JourneyResults/" + url.PathEscape(from) + "/to/" + url.PathEscape(to)
	found, err := c.get(ctx, path, nil, &result)
	if err != nil || !found || len(result.Journeys) == 0 {
		return nil, err
	}

	j := result.Journeys[0]
	journey := &transit.PlannedJourney{
		StartTime:   c.parseTime(j.StartDateTime),
		ArrivalTime: c.parseTime(j.ArrivalDateTime),
		Duration:    j.Duration,
		Legs:        make([]transit.PlannedLeg, 0, len(j.Legs)),
	}

	for _, l := range j.Legs {
		leg := transit.PlannedLeg{
			Mode:          l.Mode.ID,
			Instruction:   l.Instruction.Summary,
			DepartureTime: c.parseTime(l.DepartureTime),
			ArrivalTime:   c.parseTime(l.ArrivalTime),
			Duration:      l.Duration,
			Disrupted:     l.IsDisrupted || len(l.Disruptions) > 0,
			Path:          parseLineString(l.Path.LineString),
		}
		if len(l.RouteOptions) > 0 {
			leg.Line = l.RouteOptions[0].Name
		}
		journey.Legs = append(journey.Legs, leg)
	}

	return journey, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("app_key", c.apiKey)
	}

	rawURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		rawURL += "?" + encoded
	}

	c.logger.Trace().Str("url", resilience.RedactURL(rawURL)).Msg("fetching from TfL")

	found, err := c.httpClient.FetchJSON(ctx, rawURL, http.Header{}, out)
	if err != nil {
		return false, fmt.Errorf("tfl %s: %w", path, err)
	}
	return found, nil
}

func (c *Client) parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(timestampLayout, s, c.location)
	if err != nil {
		c.logger.Debug().Str("value", s).Msg("unparseable journey timestamp")
		return time.Time{}
	}
	return t
}

// parseLineString decodes the "[[lat,lon],...]" path string TfL embeds in journey legs.
func parseLineString(s string) []geo.Point {
	if s == "" {
		return nil
	}
	var pairs [][]float64
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil
	}
	points := make([]geo.Point, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		points = append(points, geo.Point{Lat: p[0], Lon: p[1]})
	}
	return points
}

func londonOrUTC() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}

// TfL API response structures.

type tflDisruption struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type tflLine struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Disruptions []tflDisruption `json:"disruptions"`
}

type tflPrediction struct {
	LineID          string `json:"lineId"`
	LineName        string `json:"lineName"`
	DestinationName string `json:"destinationName"`
	PlatformName    string `json:"platformName"`
	TimeToStation   int    `json:"timeToStation"`
}

type tflJourneyResult struct {
	Journeys []tflJourney `json:"journeys"`
}

type tflJourney struct {
	StartDateTime   string   `json:"startDateTime"`
	ArrivalDateTime string   `json:"arrivalDateTime"`
	Duration        int      `json:"duration"`
	Legs            []tflLeg `json:"legs"`
}

type tflLeg struct {
	Duration      int    `json:"duration"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	IsDisrupted   bool   `json:"isDisrupted"`
	Instruction   struct {
		Summary string `json:"summary"`
	} `json:"instruction"`
	Mode struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"mode"`
	RouteOptions []struct {
		Name string `json:"name"`
	} `json:"routeOptions"`
	Disruptions []tflDisruption `json:"disruptions"`
	Path        struct {
		LineString string `json:"lineString"`
	} `json:"path"`
}
