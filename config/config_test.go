package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.fiblab.net/sim/saferoute/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.0, cfg.Scoring.Composite.Sum(), 1e-9)
	assert.InDelta(t, 1.0, cfg.Scoring.Pathfinding.Sum(), 1e-9)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saferoute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scoring:
  composite:
    crime: 0.5
search:
  max_routes: 3
  range_ceiling: 10000
upstream:
  timeout: 5s
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Scoring.Composite.Crime)
	assert.Equal(t, 0.22, cfg.Scoring.Composite.Lighting)
	assert.Equal(t, 3, cfg.Search.MaxRoutes)
	assert.Equal(t, 10000.0, cfg.Search.RangeCeiling)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	cfg := config.Default()
	cfg.Search.MaxRoutes = 9
	cfg.Search.PenaltyFactor = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_routes")
	assert.Contains(t, err.Error(), "penalty_factor")
}

func TestValidateErrorOrderIsStable(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.Transit.Radius = 0
	cfg.Scoring.Crime.Saturation = 0
	cfg.Scoring.OpenPlaces.Radius = -1
	first := cfg.Validate()
	require.Error(t, first)
	want := "scoring.crime radius and saturation must be positive\n" +
		"scoring.open_places radius and saturation must be positive\n" +
		"scoring.transit radius and saturation must be positive"
	assert.Equal(t, want, first.Error())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first.Error(), cfg.Validate().Error())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
