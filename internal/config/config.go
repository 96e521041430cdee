// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the history and cache databases
	LogLevel string
	Port     int
	DevMode  bool

	// Market data
	LookbackYears   int    // Price history window used to build return matrices
	CacheCapacity   int    // Max entries held by the return-matrix cache
	RefreshSchedule string // Cron spec for the price history refresh job

	// Regime classification thresholds on the Mahalanobis score
	RegimeCalmMax   float64 // Below this the market is Calm
	RegimeChoppyMax float64 // Below this (and >= CalmMax) the market is Choppy
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := os.Getenv("RISKLENS_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	port, err := intEnv("RISKLENS_PORT", 8090)
	if err != nil {
		return nil, err
	}

	lookbackYears, err := intEnv("RISKLENS_LOOKBACK_YEARS", 5)
	if err != nil {
		return nil, err
	}
	if lookbackYears < 1 {
		return nil, fmt.Errorf("RISKLENS_LOOKBACK_YEARS must be >= 1, got %d", lookbackYears)
	}

	cacheCapacity, err := intEnv("RISKLENS_CACHE_CAPACITY", 32)
	if err != nil {
		return nil, err
	}

	calmMax, err := floatEnv("RISKLENS_REGIME_CALM_MAX", 12.0)
	if err != nil {
		return nil, err
	}
	choppyMax, err := floatEnv("RISKLENS_REGIME_CHOPPY_MAX", 25.0)
	if err != nil {
		return nil, err
	}
	if choppyMax <= calmMax {
		return nil, fmt.Errorf("regime thresholds must satisfy calm < choppy, got %v >= %v", calmMax, choppyMax)
	}

	refreshSchedule := os.Getenv("RISKLENS_REFRESH_SCHEDULE")
	if refreshSchedule == "" {
		refreshSchedule = "0 30 * * * *" // half past every hour
	}

	logLevel := os.Getenv("RISKLENS_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		DataDir:         absDataDir,
		LogLevel:        logLevel,
		Port:            port,
		DevMode:         os.Getenv("RISKLENS_DEV_MODE") == "true",
		LookbackYears:   lookbackYears,
		CacheCapacity:   cacheCapacity,
		RefreshSchedule: refreshSchedule,
		RegimeCalmMax:   calmMax,
		RegimeChoppyMax: choppyMax,
	}, nil
}

func intEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
