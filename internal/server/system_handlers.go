package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/market_hours"
	"github.com/aristath/tradeguard/internal/scheduler"
)

// SystemHandlers serves process, host and scheduler status
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	ledgerDB  *database.DB
	scheduler *scheduler.Scheduler
	calendar  market_hours.BusinessCalendar
	location  *time.Location
	clock     domain.Clock
	startedAt time.Time
}

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	LedgerSizeMB  float64 `json:"ledger_size_mb"`
	Calendar      string  `json:"calendar"`
	BusinessDay   bool    `json:"business_day"`
	MarketDate    string  `json:"market_date"`
}

// JobsStatusResponse is the payload of GET /api/system/jobs
type JobsStatusResponse struct {
	Jobs []scheduler.JobInfo `json:"jobs"`
}

// NewSystemHandlers creates system handlers. scheduler may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	ledgerDB *database.DB,
	sched *scheduler.Scheduler,
	calendar market_hours.BusinessCalendar,
	location *time.Location,
	clock domain.Clock,
) *SystemHandlers {
	if calendar == nil {
		calendar = market_hours.WeekendCalendar{}
	}
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		ledgerDB:  ledgerDB,
		scheduler: sched,
		calendar:  calendar,
		location:  location,
		clock:     clock,
		startedAt: clock.Now(),
	}
}

// HandleSystemStatus returns host resource usage and the market calendar view of today
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	today := domain.DateOf(now, h.location)
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(now.Sub(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DiskFreeGB:    h.diskFreeGB(),
		LedgerSizeMB:  h.ledgerSizeMB(),
		Calendar:      h.calendar.Name(),
		BusinessDay:   h.calendar.IsBusinessDay(today),
		MarketDate:    today.Format("2006-01-02"),
	}

	if h.ledgerDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ledgerDB.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Ledger unreachable")
			response.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus lists registered jobs with their next run
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	response := JobsStatusResponse{Jobs: []scheduler.JobInfo{}}
	if h.scheduler != nil {
		response.Jobs = h.scheduler.Jobs()
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.scheduler == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "scheduler is not running"})
		return
	}

	if err := h.scheduler.RunByName(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

// getSystemStats samples CPU over 100ms and reads memory usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) diskFreeGB() float64 {
	if h.dataDir == "" {
		return 0
	}
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return 0
	}
	return float64(usage.Free) / 1e9
}

func (h *SystemHandlers) ledgerSizeMB() float64 {
	if h.ledgerDB == nil {
		return 0
	}
	info, err := os.Stat(h.ledgerDB.Path())
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
