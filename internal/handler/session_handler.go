package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler handles server-side proctored sessions.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// SignalResult is returned for a reported environment signal.
type SignalResult struct {
	Accepted       bool `json:"accepted"`
	PreventDefault bool `json:"prevent_default"`
}

// StartSession godoc
// POST /api/v1/sessions
// Starts a session against the active exam and returns its token.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	started, err := h.sessionService.Start(c.Request.Context(), req.CandidateName)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, started)
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.sessionService.Get(c.Param("session_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// RecordAnswer godoc
// PUT /api/v1/sessions/:session_id/answers/:index
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidIndex)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.RecordAnswer(c.Param("session_id"), index, req.Value); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"index": index, "value": req.Value})
}

// ReportSignal godoc
// POST /api/v1/sessions/:session_id/signals
// Feeds an environment signal into the session's integrity monitor.
func (h *SessionHandler) ReportSignal(c *gin.Context) {
	var req model.SignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sig := proctor.Signal(req.Signal)
	accepted, err := h.sessionService.Signal(c.Request.Context(), c.Param("session_id"), sig)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, SignalResult{
		Accepted:       accepted,
		PreventDefault: sig == proctor.SignalUnloadAttempted,
	})
}

// SubmitSession godoc
// POST /api/v1/sessions/:session_id/submit
// Ends the session normally and returns its single outcome. Submitting an
// ended session returns the outcome of whatever ended it.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	view, err := h.sessionService.Submit(c.Request.Context(), c.Param("session_id"))
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, view)
	case view == nil:
		fail(c, err)
	case errors.Is(err, grading.ErrDegenerateExam):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrDegenerateExam)
	default:
		_ = c.Error(err)
		response.FailWithDetail(c, http.StatusBadGateway, response.ErrSubmissionFailed, view.Error)
	}
}
