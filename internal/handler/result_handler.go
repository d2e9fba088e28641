package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	defaultResultLimit = 100
	maxResultLimit     = 1000
)

// ResultLister reads archived results.
type ResultLister interface {
	ListByExam(ctx context.Context, examID string, limit int) ([]repository.ArchivedResult, error)
}

// ResultHandler exposes the result archive to the examiner.
type ResultHandler struct {
	results     ResultLister
	examService *service.ExamService
}

// NewResultHandler creates a new ResultHandler. results is nil when the
// archive is disabled.
func NewResultHandler(results ResultLister, examService *service.ExamService) *ResultHandler {
	return &ResultHandler{results: results, examService: examService}
}

// ListResults godoc
// GET /api/v1/exam/results?examId=&limit=
// Lists archived results of an exam, newest first. Defaults to the active exam.
func (h *ResultHandler) ListResults(c *gin.Context) {
	if h.results == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrArchiveDisabled)
		return
	}

	limit := defaultResultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"limit": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxResultLimit)
	}

	examID := c.Query("examId")
	if examID == "" {
		exam, err := h.examService.Active(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		examID = exam.ID
	}

	results, err := h.results.ListByExam(c.Request.Context(), examID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "results": results})
}
