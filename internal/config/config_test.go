package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, 5, cfg.LookbackYears)
	assert.Equal(t, 32, cfg.CacheCapacity)
	assert.Equal(t, 12.0, cfg.RegimeCalmMax)
	assert.Equal(t, 25.0, cfg.RegimeChoppyMax)
	assert.NotEmpty(t, cfg.RefreshSchedule)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RISKLENS_PORT", "9000")
	t.Setenv("RISKLENS_LOOKBACK_YEARS", "3")
	t.Setenv("RISKLENS_REGIME_CALM_MAX", "10")
	t.Setenv("RISKLENS_REGIME_CHOPPY_MAX", "20")
	t.Setenv("RISKLENS_DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 3, cfg.LookbackYears)
	assert.Equal(t, 10.0, cfg.RegimeCalmMax)
	assert.Equal(t, 20.0, cfg.RegimeChoppyMax)
	assert.True(t, cfg.DevMode)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("RISKLENS_LOOKBACK_YEARS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("RISKLENS_REGIME_CALM_MAX", "30")
	t.Setenv("RISKLENS_REGIME_CHOPPY_MAX", "20")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadNumber(t *testing.T) {
	t.Setenv("RISKLENS_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}
