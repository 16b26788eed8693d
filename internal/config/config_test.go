package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkrun/internal/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30.0, cfg.Optimizer.AverageSpeedKmH)
	assert.Equal(t, 5.0, cfg.Optimizer.ServiceMinutesPerStop)
	assert.Equal(t, 3.0, cfg.Optimizer.DefaultRadiusKm)
	caps := cfg.Capacities()
	assert.Equal(t, 3, caps[model.VehicleMotorbike])
	assert.Equal(t, 5, caps[model.VehicleCar])
	assert.Equal(t, 10, caps[model.VehicleVan])
	assert.Equal(t, 20, caps[model.VehicleTruck])
	assert.Equal(t, "MR", cfg.Dispatch.TrackingPrefix)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.CommitTimeout)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	p := writeFile(t, "milkrun.yaml", `
server:
  addr: ":9090"
optimizer:
  depot:
    lat: 18.7883
    lng: 98.9853
  two_opt_passes: 3
  capacities:
    car: 4
dispatch:
  tracking_prefix: CNX
  commit_timeout: 45s
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 18.7883, cfg.Depot().Lat)
	assert.Equal(t, 3, cfg.Optimizer.TwoOptPasses)
	assert.Equal(t, 4, cfg.Capacities()[model.VehicleCar])
	assert.Equal(t, 20, cfg.Capacities()[model.VehicleTruck], "unset entries keep defaults")
	assert.Equal(t, "CNX", cfg.Dispatch.TrackingPrefix)
	assert.Equal(t, 45*time.Second, cfg.Dispatch.CommitTimeout)
	assert.Equal(t, 30.0, cfg.Optimizer.AverageSpeedKmH)
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "milkrun.json", `{"log":{"level":"debug"},"redis":{"url":"redis://localhost:6379/0"}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MILKRUN_SERVER__ADDR", ":7070")
	t.Setenv("MILKRUN_OPTIMIZER__AVERAGE_SPEED_KMH", "42.5")
	t.Setenv("MILKRUN_DATABASE__URL", "postgres://x")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 42.5, cfg.Optimizer.AverageSpeedKmH)
	assert.Equal(t, "postgres://x", cfg.Database.URL)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	_, err := Load(writeFile(t, "milkrun.toml", "x = 1"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero speed":      func(c *Config) { c.Optimizer.AverageSpeedKmH = 0 },
		"inverted bounds": func(c *Config) { c.Optimizer.MinRadiusKm = 30 },
		"depot at zero":   func(c *Config) { c.Optimizer.Depot = DepotConfig{} },
		"bad capacity":    func(c *Config) { c.Optimizer.Capacities["van"] = 0 },
		"hmac no secret":  func(c *Config) { c.Auth.Mode = "hmac" },
		"unknown auth":    func(c *Config) { c.Auth.Mode = "oauth" },
		"webhook retries": func(c *Config) { c.Webhook = WebhookConfig{URL: "http://hook", MaxAttempts: 0} },
		"commit timeout":  func(c *Config) { c.Dispatch.CommitTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestClampRadius(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3.0, cfg.ClampRadius(0))
	assert.Equal(t, 3.0, cfg.ClampRadius(-1))
	assert.Equal(t, 0.5, cfg.ClampRadius(0.1))
	assert.Equal(t, 25.0, cfg.ClampRadius(100))
	assert.Equal(t, 7.0, cfg.ClampRadius(7))
}
