package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/risklens/internal/marketdata"
)

// SystemHandlers serves system monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	cache     *marketdata.Cache
	startTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, cache *marketdata.Cache) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		cache:     cache,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health endpoint payload
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	CacheSize     int     `json:"cache_size"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
}

// HandleHealth reports process health and cache statistics
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	cpuPct, memPct := h.resourceUsage()
	size, hits, misses := h.cache.Stats()

	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		CacheSize:     size,
		CacheHits:     hits,
		CacheMisses:   misses,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// resourceUsage samples instantaneous CPU and memory usage. Failures are
// logged and reported as zero rather than failing the health check.
func (h *SystemHandlers) resourceUsage() (cpuPct, memPct float64) {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU statistics")
	} else if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPct, 0
	}

	return cpuPct, memStat.UsedPercent
}
