// Package transportapi is a client for the TransportAPI UK rail endpoints.
package transportapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/provider/resilience"
	"github.com/alfredhome/alfred/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "transportapi"

	// DefaultBaseURL is the TransportAPI v3 base URL.
	DefaultBaseURL = "https://transportapi.com/v3/uk"
)

// ClientConfig holds configuration for the TransportAPI client.
type ClientConfig struct {
	// AppID and AppKey are the TransportAPI credentials (required).
	AppID  string
	AppKey string

	// BaseURL is the API base URL (optional, defaults to TransportAPI v3).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilient client.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches live departure boards and service timetables.
type Client struct {
	appID      string
	appKey     string
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new TransportAPI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		appID:      cfg.AppID,
		appKey:     cfg.AppKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// LiveDepartures fetches the passenger departure board for a station,
// filtered to trains calling at q.Destination. An empty slice means the
// board had no departures.
func (c *Client) LiveDepartures(ctx context.Context, q transit.BoardQuery) ([]transit.TrainDeparture, error) {
	query := url.Values{
		"darwin":       {"false"},
		"train_status": {"passenger"},
		"destination":  {strings.ToUpper(q.Destination)},
	}
	if q.Offset > 0 {
		query.Set("from_offset", FormatOffset(q.Offset))
	}

	rawURL := fmt.Sprintf("%s/train/station/%s/live.json", c.baseURL, url.PathEscape(strings.ToUpper(q.Station)))

	var board liveBoard
	found, err := c.get(ctx, rawURL, query, &board)
	if err != nil || !found {
		return nil, err
	}

	out := make([]transit.TrainDeparture, 0, len(board.Departures.All))
	for _, d := range board.Departures.All {
		out = append(out, transit.TrainDeparture{
			Platform:                d.Platform,
			OperatorName:            d.OperatorName,
			DestinationName:         d.DestinationName,
			Status:                  d.Status,
			AimedDepartureTime:      d.AimedDepartureTime,
			ExpectedDepartureTime:   d.ExpectedDepartureTime,
			BestArrivalEstimateMins: d.BestArrivalEstimateMins,
			TimetableURL:            d.ServiceTimetable.ID,
		})
	}
	return out, nil
}

// ServiceTimetable follows a service_timetable reference from a departure board.
func (c *Client) ServiceTimetable(ctx context.Context, timetableURL string) ([]transit.TimetableStop, error) {
	if timetableURL == "" {
		return nil, nil
	}

	var timetable serviceTimetable
	found, err := c.get(ctx, timetableURL, nil, &timetable)
	if err != nil || !found {
		return nil, err
	}

	out := make([]transit.TimetableStop, 0, len(timetable.Stops))
	for _, s := range timetable.Stops {
		out = append(out, transit.TimetableStop{
			StationCode:           s.StationCode,
			StationName:           s.StationName,
			AimedArrivalTime:      s.AimedArrivalTime,
			ExpectedArrivalTime:   s.ExpectedArrivalTime,
			AimedDepartureTime:    s.AimedDepartureTime,
			ExpectedDepartureTime: s.ExpectedDepartureTime,
		})
	}
	return out, nil
}

// FormatOffset renders an offset as the PTHH:MM:SS duration TransportAPI expects.
func FormatOffset(d time.Duration) string {
	d = d.Truncate(time.Minute)
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("PT%02d:%02d:00", hours, minutes)
}

// get adds credentials to rawURL, keeping any query the URL already carries.
func (c *Client) get(ctx context.Context, rawURL string, extra url.Values, out any) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("transportapi: parsing url: %w", err)
	}

	query := u.Query()
	for k, vs := range extra {
		query[k] = vs
	}
	if !query.Has("app_id") {
		query.Set("app_id", c.appID)
	}
	if !query.Has("app_key") {
		query.Set("app_key", c.appKey)
	}
	u.RawQuery = query.Encode()

	c.logger.Trace().Str("url", resilience.RedactURL(u.String())).Msg("fetching from TransportAPI")

	found, err := c.httpClient.FetchJSON(ctx, u.String(), http.Header{}, out)
	if err != nil {
		return false, fmt.Errorf("transportapi %s: %w", u.Path, err)
	}
	return found, nil
}

// TransportAPI response structures.

type liveBoard struct {
	StationCode string `json:"station_code"`
	Departures  struct {
		All []liveDeparture `json:"all"`
	} `json:"departures"`
}

type liveDeparture struct {
	Platform                string `json:"platform"`
	OperatorName            string `json:"operator_name"`
	DestinationName         string `json:"destination_name"`
	Status                  string `json:"status"`
	AimedDepartureTime      string `json:"aimed_departure_time"`
	ExpectedDepartureTime   string `json:"expected_departure_time"`
	BestArrivalEstimateMins int    `json:"best_arrival_estimate_mins"`
	ServiceTimetable        struct {
		ID string `json:"id"`
	} `json:"service_timetable"`
}

type serviceTimetable struct {
	Stops []timetableStop `json:"stops"`
}

type timetableStop struct {
	StationCode           string `json:"station_code"`
	StationName           string `json:"station_name"`
	AimedArrivalTime      string `json:"aimed_arrival_time"`
	ExpectedArrivalTime   string `json:"expected_arrival_time"`
	AimedDepartureTime    string `json:"aimed_departure_time"`
	ExpectedDepartureTime string `json:"expected_departure_time"`
}
