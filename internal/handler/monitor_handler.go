package handler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams the examiner's live view of all sessions.
type MonitorHandler struct {
	examService    *service.ExamService
	sessionService *service.SessionService
	monitorService *service.MonitorService
	log            zerolog.Logger

	keepAlive time.Duration
}

func NewMonitorHandler(
	examService *service.ExamService,
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		examService:    examService,
		sessionService: sessionService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		keepAlive:      keepAliveInterval,
	}
}

// MonitorSSE godoc
// GET /api/v1/exam/monitor
// Sends a snapshot of the held sessions, then every lifecycle event
// followed by refreshed stats.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so no event falls between the two.
	feed, unsubscribe := h.monitorService.Subscribe(reqCtx)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	snapshot := model.MonitorSnapshot{
		Stats:    h.sessionService.Stats(),
		Sessions: h.sessionService.Summaries(),
	}
	exam, err := h.examService.Active(reqCtx)
	switch {
	case err == nil:
		snapshot.Exam = exam
	case !errors.Is(err, model.ErrNoActiveExam):
		h.log.Warn().Err(err).Msg("Failed to load active exam for monitor snapshot")
	}
	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	h.log.Info().Msg("Examiner attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Examiner detached from live monitor")
			return

		case payload, ok := <-feed:
			if !ok {
				return
			}
			// Forward raw JSON, it already is a MonitorEvent.
			c.SSEvent("session", json.RawMessage(payload))
			c.SSEvent("stats", h.sessionService.Stats())
			c.Writer.Flush()

		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}
