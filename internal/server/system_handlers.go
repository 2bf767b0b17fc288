package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/weihanlu/investrack/internal/clients/twse"
	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/reliability"
	"github.com/weihanlu/investrack/internal/scheduler"
	"github.com/weihanlu/investrack/internal/web"
)

// SystemHandlers exposes operational endpoints: health details, database
// statistics, rate-limiter usage, and backup operations.
type SystemHandlers struct {
	db        *database.DB
	dataDir   string
	limiter   *twse.DailyLimiter
	backups   *reliability.BackupService
	jobs      map[string]scheduler.Job
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. backups may be nil when no
// backup bucket is configured.
func NewSystemHandlers(db *database.DB, dataDir string, limiter *twse.DailyLimiter, backups *reliability.BackupService, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		dataDir:   dataDir,
		limiter:   limiter,
		backups:   backups,
		jobs:      map[string]scheduler.Job{},
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// RegisterJob makes a scheduled job triggerable through the API.
func (h *SystemHandlers) RegisterJob(job scheduler.Job) {
	h.jobs[job.Name()] = job
}

type systemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	CPUPercent    float64           `json:"cpuPercent"`
	MemoryPercent float64           `json:"memoryPercent"`
	Database      dbStatsResponse   `json:"database"`
	TWSELimiter   twse.LimiterState `json:"twseLimiter"`
	Time          string            `json:"time"`
}

type dbStatsResponse struct {
	Driver     string  `json:"driver"`
	SizeMB     float64 `json:"sizeMb"`
	WALSizeMB  float64 `json:"walSizeMb"`
	OpenConns  int     `json:"openConns"`
	InUseConns int     `json:"inUseConns"`
}

// HandleSystemStatus returns process and dependency health in one view.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()
	stats := h.db.GetStats()

	web.JSON(w, http.StatusOK, systemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Database: dbStatsResponse{
			Driver:     string(h.db.Driver()),
			SizeMB:     float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB:  float64(stats.WALSizeBytes) / 1024 / 1024,
			OpenConns:  stats.OpenConns,
			InUseConns: stats.InUseConns,
		},
		TWSELimiter: h.limiter.State(),
		Time:        time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleDatabaseStats returns database size and pool statistics.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := h.db.GetStats()
	web.JSON(w, http.StatusOK, dbStatsResponse{
		Driver:     string(h.db.Driver()),
		SizeMB:     float64(stats.SizeBytes) / 1024 / 1024,
		WALSizeMB:  float64(stats.WALSizeBytes) / 1024 / 1024,
		OpenConns:  stats.OpenConns,
		InUseConns: stats.InUseConns,
	})
}

type diskUsageResponse struct {
	DataDirMB     float64 `json:"dataDirMb"`
	VolumeUsedPct float64 `json:"volumeUsedPct"`
	VolumeFreeMB  float64 `json:"volumeFreeMb"`
}

// HandleDiskUsage returns data-directory and volume usage.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	resp := diskUsageResponse{DataDirMB: h.dirSizeMB(h.dataDir)}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		resp.VolumeUsedPct = usage.UsedPercent
		resp.VolumeFreeMB = float64(usage.Free) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to read volume usage")
	}

	web.JSON(w, http.StatusOK, resp)
}

// HandleTriggerJob runs a registered scheduled job immediately.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request, name string) {
	job, ok := h.jobs[name]
	if !ok {
		web.JSON(w, http.StatusNotFound, web.ErrorResponse{
			Error:      "unknown job " + name,
			StatusCode: http.StatusNotFound,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	if err := job.Run(); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

// HandleListBackups lists uploaded backup archives, newest first.
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		web.BadRequest(w, "backups are not configured")
		return
	}

	objects, err := h.backups.ListBackups(r.Context())
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]interface{}{"backups": objects})
}

// HandleTriggerBackup creates and uploads a backup immediately.
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		web.BadRequest(w, "backups are not configured")
		return
	}

	if err := h.backups.CreateAndUploadBackup(r.Context()); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// systemStats reads CPU and memory usage. A 100ms CPU sample keeps the
// status endpoint responsive.
func (h *SystemHandlers) systemStats() (float64, float64) {
	var cpuPercent float64
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	var memPercent float64
	if stat, err := mem.VirtualMemory(); err == nil {
		memPercent = stat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	return cpuPercent, memPercent
}

func (h *SystemHandlers) dirSizeMB(dir string) float64 {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dir).Msg("Failed to calculate directory size")
		return 0
	}
	return float64(total) / 1024 / 1024
}
