package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

// QueueLength reports the number of reports waiting for the archive.
type QueueLength func(ctx context.Context) (int64, error)

// SystemHandler reports liveness and runtime state of the server.
type SystemHandler struct {
	sessionService *service.SessionService
	checks         map[string]HealthCheck
	archiveQueue   QueueLength
	startTime      time.Time
	log            zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. checks are keyed by dependency
// name; archiveQueue may be nil.
func NewSystemHandler(
	sessionService *service.SessionService,
	checks map[string]HealthCheck,
	archiveQueue QueueLength,
	log zerolog.Logger,
) *SystemHandler {
	return &SystemHandler{
		sessionService: sessionService,
		checks:         checks,
		archiveQueue:   archiveQueue,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type systemStatus struct {
	Timestamp    int64              `json:"timestamp"`
	Uptime       string             `json:"uptime"`
	Goroutines   int                `json:"goroutines"`
	HeapAlloc    uint64             `json:"heap_alloc"`
	HeapSys      uint64             `json:"heap_sys"`
	NumGC        uint32             `json:"num_gc"`
	GoVersion    string             `json:"go_version"`
	NumCPU       int                `json:"num_cpu"`
	Sessions     model.MonitorStats `json:"sessions"`
	ArchiveQueue *int64             `json:"archive_queue,omitempty"`
}

// Health godoc
// GET /health
// Returns 503 when any configured dependency does not answer.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{Status: "ok", Dependencies: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			report.Dependencies[name] = "down"
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Dependencies[name] = "up"
	}

	c.JSON(status, report)
}

// Status godoc
// GET /api/v1/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := systemStatus{
		Timestamp:  time.Now().Unix(),
		Uptime:     formatDuration(time.Since(h.startTime)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
		Sessions:   h.sessionService.Stats(),
	}

	if h.archiveQueue != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if n, err := h.archiveQueue(ctx); err == nil {
			st.ArchiveQueue = &n
		}
	}

	response.Success(c, http.StatusOK, st)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
