package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/risklens/internal/clients/yahoo"
	"github.com/aristath/risklens/internal/config"
	"github.com/aristath/risklens/internal/database"
	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/internal/modules/allocation"
	"github.com/aristath/risklens/internal/modules/analysis"
	"github.com/aristath/risklens/internal/modules/regime"
	"github.com/aristath/risklens/internal/modules/risk"
	"github.com/aristath/risklens/internal/scheduler"
	"github.com/aristath/risklens/internal/server"
	"github.com/aristath/risklens/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		panic(err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("Starting RiskLens")

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	repo, err := marketdata.NewHistoryRepository(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history repository")
	}

	cache, err := marketdata.NewCache(cfg.CacheCapacity, cacheDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize return-matrix cache")
	}

	yahooClient := yahoo.NewClient(log)
	provider := marketdata.NewProvider(repo, yahooClient, cache, cfg.LookbackYears, log)

	classifier := regime.NewClassifier(cfg.RegimeCalmMax, cfg.RegimeChoppyMax, log)
	allocator := allocation.NewAllocator(log)
	analyzer := risk.NewAnalyzer(log)

	analysisService := analysis.NewService(provider, classifier, allocator, analyzer, log)
	analysisHandler := analysis.NewHandler(analysisService, log)

	sched := scheduler.New(log)
	refreshJob := scheduler.NewPriceRefreshJob(repo, yahooClient, log)
	if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register price refresh job")
	}
	sched.Start()
	defer sched.Stop()

	// Refresh stored history right away so a fresh deployment does not wait
	// for the first scheduled tick.
	go func() {
		if err := sched.RunNow(refreshJob); err != nil {
			log.Warn().Err(err).Msg("Startup price refresh failed")
		}
	}()

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		DevMode:  cfg.DevMode,
		Analysis: analysisHandler,
		System:   server.NewSystemHandlers(log, cache),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
