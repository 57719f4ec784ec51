package tfl_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/provider/resilience"
	"github.com/alfredhome/alfred/internal/transit/tfl"
)

func newClient(t *testing.T, handler http.HandlerFunc) *tfl.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return tfl.NewClient(tfl.ClientConfig{
		APIKey:     "tfl-key",
		BaseURL:    server.URL,
		Location:   time.UTC,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("tfl-test")),
		Logger:     zerolog.Nop(),
	})
}

func TestClient_Name(t *testing.T) {
	client := tfl.NewClient(tfl.ClientConfig{Logger: zerolog.Nop()})
	assert.Equal(t, "tfl", client.Name())
}

func TestClient_LineDisruptions(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Line/northern/Disruption", r.URL.Path)
		assert.Equal(t, "tfl-key", r.URL.Query().Get("app_key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"name": "Northern", "category": "RealTime", "description": "Severe delays"},
		})
	})

	records, err := client.LineDisruptions(context.Background(), "northern")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Northern", records[0].Name)
	assert.Equal(t, "Severe delays", records[0].Description)
}

func TestClient_LineDisruptions_Empty(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	records, err := client.LineDisruptions(context.Background(), "victoria")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_LineStatus(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Line/486/Status", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("detail"))

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":   "486",
				"name": "486",
				"disruptions": []map[string]any{
					{"description": "Diversion via Woolwich Road"},
					{"description": ""},
					{"description": "Stop closed"},
				},
			},
		})
	})

	statuses, err := client.LineStatus(context.Background(), "486")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "486", statuses[0].Name)
	assert.Equal(t, []string{"Diversion via Woolwich Road", "Stop closed"}, statuses[0].Disruptions)
}

func TestClient_Arrivals(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/StopPoint/490001058H/Arrivals", r.URL.Path)
		assert.Equal(t, "bus", r.URL.Query().Get("mode"))
		assert.Equal(t, "486", r.URL.Query().Get("line"))

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"lineId": "486", "lineName": "486", "destinationName": "North Greenwich", "timeToStation": 420},
		})
	})

	arrivals, err := client.Arrivals(context.Background(), "490001058H", "bus", "486")
	require.NoError(t, err)
	require.Len(t, arrivals, 1)
	assert.Equal(t, "North Greenwich", arrivals[0].DestinationName)
	assert.Equal(t, 420, arrivals[0].TimeToStation)
}

func TestClient_Arrivals_ServerError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Arrivals(context.Background(), "490001058H", "bus", "486")
	require.Error(t, err)

	var fetchErr *resilience.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.NotContains(t, err.Error(), "tfl-key")
}

func TestClient_Journey(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Journey/JourneyResults/940GZZLUKSX/to/940GZZLUBNK", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"journeys": []map[string]any{
				{
					"startDateTime":   "2026-10-18T08:15:00",
					"arrivalDateTime": "2026-10-18T08:27:00",
					"duration":        12,
					"legs": []map[string]any{
						{
							"duration":      12,
							"departureTime": "2026-10-18T08:15:00",
							"arrivalTime":   "2026-10-18T08:27:00",
							"isDisrupted":   false,
							"instruction":   map[string]any{"summary": "Northern line to Bank"},
							"mode":          map[string]any{"id": "tube", "name": "tube"},
							"routeOptions":  []map[string]any{{"name": "Northern"}},
							"disruptions":   []map[string]any{{"description": "Minor delays"}},
							"path":          map[string]any{"lineString": "[[51.5302,-0.1238],[51.5133,-0.0886]]"},
						},
					},
				},
			},
		})
	})

	journey, err := client.Journey(context.Background(), "940GZZLUKSX", "940GZZLUBNK")
	require.NoError(t, err)
	require.NotNil(t, journey)

	assert.Equal(t, 12, journey.Duration)
	assert.Equal(t, time.Date(2026, 10, 18, 8, 15, 0, 0, time.UTC), journey.StartTime)
	require.Len(t, journey.Legs, 1)

	leg := journey.Legs[0]
	assert.Equal(t, "tube", leg.Mode)
	assert.Equal(t, "Northern", leg.Line)
	assert.True(t, leg.Disrupted)
	require.Len(t, leg.Path, 2)
	assert.InDelta(t, 51.5302, leg.Path[0].Lat, 1e-9)
}

func TestClient_Journey_NoJourneys(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"journeys":[]}`))
	})

	journey, err := client.Journey(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Nil(t, journey)
}
