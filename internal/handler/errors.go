package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// errorStatus maps domain errors to an HTTP status and error code.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, model.ErrNoActiveExam):
		return http.StatusNotFound, response.ErrNoActiveExam
	case errors.Is(err, model.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, model.ErrInvalidIndex):
		return http.StatusBadRequest, response.ErrInvalidIndex
	case errors.Is(err, model.ErrInvalidSolution):
		return http.StatusBadRequest, response.ErrSolutionKey
	case errors.Is(err, grading.ErrLengthMismatch), errors.Is(err, model.ErrUnknownReason):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.Is(err, service.ErrUnknownSignal):
		return http.StatusBadRequest, response.ErrInvalidSignal
	case errors.Is(err, grading.ErrDegenerateExam):
		return http.StatusUnprocessableEntity, response.ErrDegenerateExam
	case errors.Is(err, service.ErrSessionNotActive), errors.Is(err, proctor.ErrInvalidState):
		return http.StatusConflict, response.ErrSessionNotActive
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the error response for err. Unexpected errors are attached to
// the context for the request logger instead of being shown to the client.
func fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if code == response.ErrInternal {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
