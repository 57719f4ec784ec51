package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/app"
	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/config"
)

func newApp(t *testing.T, handler http.HandlerFunc) (*app.App, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.TfL.BaseURL = srv.URL
	cfg.TransportAPI.BaseURL = srv.URL

	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, &hits
}

func TestNew_WiresProvidersWithoutDatabase(t *testing.T) {
	a, _ := newApp(t, func(w http.ResponseWriter, _ *http.Request) {})

	assert.Equal(t, 2, a.Registry.ProviderCount())
	assert.Empty(t, a.Checks)
	require.NotNil(t, a.Travel)
	require.NotNil(t, a.Planner)
}

func TestNew_TubeStatusRecordsProviderHealth(t *testing.T) {
	a, hits := newApp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Line/victoria/Disruption", r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	})

	leg, err := a.Travel.TubeStatus(context.Background(), "victoria")
	require.NoError(t, err)

	assert.False(t, leg.Disruption)
	assert.Equal(t, int32(1), hits.Load())
	health := a.Registry.GetHealth("tfl")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
	assert.True(t, health.IsHealthy())
}

func TestNew_UnknownUserMakesNoUpstreamCalls(t *testing.T) {
	a, hits := newApp(t, func(w http.ResponseWriter, _ *http.Request) {})

	_, err := a.Planner.GetCommute(context.Background(), "Nobody", "", "")

	require.ErrorIs(t, err, commute.ErrUnknownUser)
	assert.Zero(t, hits.Load())
}

func TestNew_RejectsBadTimezone(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Timezone = "Mars/Olympus"

	_, err := app.New(context.Background(), cfg, zerolog.Nop())

	require.ErrorIs(t, err, config.ErrInvalid)
}
