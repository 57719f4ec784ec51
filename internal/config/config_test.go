package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/config"
	"github.com/alfredhome/alfred/internal/transit"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Len(t, cfg.BusRoutes, 4)
	assert.Equal(t, "490010374B", cfg.BusRoutes["486"].Stop(false))
	assert.Equal(t, "490013766H", cfg.BusRoutes["9"].Stop(false))
	assert.Contains(t, cfg.TrainRoutes, "CHX")
	assert.Contains(t, cfg.TrainRoutes, "CST")

	jp := cfg.Users["JP"]
	assert.Len(t, jp.Home, 5)
	assert.Len(t, jp.Away, 2)
	assert.Empty(t, cfg.Users["Fran"].Away)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", loc.String())
}

func TestParse_FillsAbsentSections(t *testing.T) {
	cfg, err := config.Parse([]byte(`
server:
  port: 9090
tfl:
  apiKey: from-file
upstream:
  timeout: 3s
busRoutes:
  "53":
    home: 490000001A
users:
  sam:
    home:
      - order: 0
        mode: bus
        params:
          route: "53"
      - order: 1
        mode: tube
        params:
          line: victoria
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "Europe/London", cfg.Server.Timezone)
	assert.Equal(t, "from-file", cfg.TfL.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Upstream.BreakerTimeout)
	assert.Equal(t, map[string]transit.BusStops{"53": {Home: "490000001A"}}, cfg.BusRoutes)
	assert.Len(t, cfg.TrainRoutes, 2, "absent train routes fall back to defaults")
	require.Contains(t, cfg.Users, "sam")
	assert.Equal(t, transit.ModeTube, cfg.Users["sam"].Home[1].Mode)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown mode",
			yaml: "users:\n  sam:\n    home:\n      - order: 0\n        mode: ferry\n",
		},
		{
			name: "dangling dependency",
			yaml: "users:\n  sam:\n    home:\n      - order: 1\n        mode: train\n        dependsOn: 0\n",
		},
		{
			name: "bus route without home stop",
			yaml: "busRoutes:\n  \"53\":\n    away: 490000001B\n",
		},
		{
			name: "polygon with two vertices",
			yaml: "geofences:\n  - name: home\n    polygon:\n      - {lat: 1, lon: 1}\n      - {lat: 2, lon: 2}\n",
		},
		{
			name: "no home geofence",
			yaml: "geofences:\n  - name: work\n    center: {lat: 51.5, lon: -0.1}\n    radiusMeters: 100\n",
		},
		{
			name: "bad timezone",
			yaml: "server:\n  timezone: Mars/Olympus\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml))
			if err == nil {
				err = cfg.Validate()
			}
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := config.Parse([]byte("server: [unclosed"))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alfred.yml")
	require.NoError(t, os.WriteFile(path, []byte("tfl:\n  apiKey: from-file\n"), 0o600))

	t.Setenv("ALFRED_CONFIG", path)
	t.Setenv("TFL_API_KEY", "from-env")
	t.Setenv("TRANSPORTAPI_APP_ID", "id")
	t.Setenv("TRANSPORTAPI_APP_KEY", "key")
	t.Setenv("APP_KEY", "shared")
	t.Setenv("APP_PORT", "9191")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("DB_ENABLED", "1")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TfL.APIKey)
	assert.Equal(t, "id", cfg.TransportAPI.AppID)
	assert.Equal(t, "key", cfg.TransportAPI.AppKey)
	assert.Equal(t, "shared", cfg.Auth.AppKey)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, ":9191", cfg.Addr())
	assert.True(t, cfg.Telemetry.Enabled)
	assert.True(t, cfg.Database.Enabled)
}

func TestLoad_BadPort(t *testing.T) {
	t.Setenv("ALFRED_CONFIG", filepath.Join(t.TempDir(), "missing.yml"))
	_, err := config.Load()
	require.Error(t, err, "an explicit path must exist")

	dir := t.TempDir()
	path := filepath.Join(dir, "alfred.yml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	t.Setenv("ALFRED_CONFIG", path)
	t.Setenv("APP_PORT", "eighty")

	_, err = config.Load()
	assert.ErrorIs(t, err, config.ErrInvalid)
}
