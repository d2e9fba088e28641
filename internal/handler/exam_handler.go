package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ExamHandler handles exam configuration and stateless submission.
type ExamHandler struct {
	examService    *service.ExamService
	gradingService *service.GradingService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, gradingService *service.GradingService) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		gradingService: gradingService,
	}
}

// ConfigureExam godoc
// PUT /api/v1/exam (alias POST /api/v1/exam/setup)
// Replaces the active exam. Running sessions keep their snapshot.
func (h *ExamHandler) ConfigureExam(c *gin.Context) {
	var req model.ConfigureExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if len(req.SolutionKey) != len(req.Questions) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrSolutionKey, map[string]string{
			"solutionKey": fmt.Sprintf("expected %d entries, got %d", len(req.Questions), len(req.SolutionKey)),
		})
		return
	}

	id, err := h.examService.Configure(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, model.ConfigureExamResponse{ExamID: id})
}

// GetActiveExam godoc
// GET /api/v1/exam/active
// Returns the active exam without its solution key.
func (h *ExamHandler) GetActiveExam(c *gin.Context) {
	exam, err := h.examService.Active(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// SubmitExam godoc
// POST /api/v1/exam/submit
// Grades a session run entirely on the client and dispatches the report.
// A failed dispatch does not change the response.
func (h *ExamHandler) SubmitExam(c *gin.Context) {
	var req model.SubmitSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	reason, err := model.ParseTerminationReason(req.TerminationReason)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, map[string]string{
			"terminationReason": err.Error(),
		})
		return
	}

	result, err := h.gradingService.SubmitSession(c.Request.Context(), &model.GradingRequest{
		ExamID:            req.ExamID,
		CandidateName:     req.CandidateName,
		Responses:         req.Responses,
		StartedAt:         req.StartedAt,
		EndedAt:           req.EndedAt,
		TerminationReason: reason,
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, model.SubmitSessionResponse{
		Score:             result.Score,
		TotalQuestions:    result.TotalQuestions,
		Percentage:        result.Percentage,
		TerminationReason: result.TerminationReason,
	})
}
