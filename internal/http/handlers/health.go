package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jmylchreest/meetrec/internal/database"
	"github.com/jmylchreest/meetrec/internal/recorder"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *database.DB
	manager   *recorder.Manager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database used for health checks.
func (h *HealthHandler) WithDB(db *database.DB) *HealthHandler {
	h.db = db
	return h
}

// WithManager sets the session manager reported on.
func (h *HealthHandler) WithManager(manager *recorder.Manager) *HealthHandler {
	h.manager = manager
	return h
}

// CPUInfo reports CPU load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports system and process memory use.
type MemoryInfo struct {
	TotalMemoryMB   float64 `json:"total_memory_mb"`
	UsedMemoryMB    float64 `json:"used_memory_mb"`
	FreeMemoryMB    float64 `json:"free_memory_mb"`
	UsedPercent     float64 `json:"used_percent"`
	ProcessAllocMB  float64 `json:"process_alloc_mb"`
	ProcessSysMB    float64 `json:"process_sys_mb"`
	GoroutineCount  int     `json:"goroutine_count"`
}

// DatabaseHealth reports database reachability.
type DatabaseHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RecorderHealth reports session manager load.
type RecorderHealth struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

// HealthResponse is the body of the health check.
type HealthResponse struct {
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	CPUInfo       CPUInfo        `json:"cpu"`
	Memory        MemoryInfo     `json:"memory"`
	Database      DatabaseHealth `json:"database"`
	Recorder      RecorderHealth `json:"recorder"`
}

// HealthOutput wraps the health check response.
type HealthOutput struct {
	Body HealthResponse
}

// LivezOutput is the liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzOutput is the readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// GetLivez reports process liveness.
func (h *HealthHandler) GetLivez(_ context.Context, _ *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetReadyz reports whether the service can take traffic.
func (h *HealthHandler) GetReadyz(ctx context.Context, _ *struct{}) (*ReadyzOutput, error) {
	out := &ReadyzOutput{}
	out.Body.Components = make(map[string]string)

	ready := true
	if h.db == nil {
		out.Body.Components["database"] = "not_configured"
		ready = false
	} else if err := h.db.Ping(ctx); err != nil {
		out.Body.Components["database"] = "error"
		ready = false
	} else {
		out.Body.Components["database"] = "ok"
	}

	if h.manager == nil {
		out.Body.Components["recorder"] = "not_configured"
		ready = false
	} else {
		out.Body.Components["recorder"] = "ok"
	}

	if ready {
		out.Body.Status = "ready"
	} else {
		out.Body.Status = "not_ready"
	}
	return out, nil
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.getDatabaseHealth(ctx)

	recHealth := RecorderHealth{Status: "ok"}
	if h.manager != nil {
		recHealth.ActiveSessions = len(h.manager.Active())
	}

	status := "healthy"
	if dbHealth.Status != "ok" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(),
			Memory:        h.getMemoryInfo(),
			Database:      dbHealth,
			Recorder:      recHealth,
		},
	}, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{GoroutineCount: runtime.NumGoroutine()}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.UsedPercent = vmStat.UsedPercent
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	info.ProcessAllocMB = float64(memStats.Alloc) / 1024 / 1024
	info.ProcessSysMB = float64(memStats.Sys) / 1024 / 1024
	return info
}

func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "unconfigured"}
	}
	if err := h.db.Ping(ctx); err != nil {
		return DatabaseHealth{Status: "error", Message: err.Error()}
	}
	return DatabaseHealth{Status: "ok"}
}
