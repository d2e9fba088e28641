package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, errBody *response.ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":     data,
		"error":    errBody,
		"metadata": response.Metadata{RequestID: "req-1", Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func TestClient_SubmitSession(t *testing.T) {
	var got model.SubmitSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/exam/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusOK, model.SubmitSessionResponse{
			Score:             2,
			TotalQuestions:    3,
			Percentage:        66.67,
			TerminationReason: model.ReasonFocusLost,
		}, nil)
	}))
	defer srv.Close()

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := New(srv.URL + "/")
	result, err := c.SubmitSession(context.Background(), &model.GradingRequest{
		ExamID:            "9b2f4c1e-0000-4000-8000-000000000001",
		CandidateName:     "Ada",
		Responses:         []string{"Paris", "", "Madrid"},
		StartedAt:         start,
		EndedAt:           start.Add(90 * time.Second),
		TerminationReason: model.ReasonFocusLost,
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", got.CandidateName)
	assert.Equal(t, []string{"Paris", "", "Madrid"}, got.Responses)
	assert.Equal(t, "FOCUS_LOST", got.TerminationReason)

	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 3, result.TotalQuestions)
	assert.Equal(t, model.ReasonFocusLost, result.TerminationReason)
	assert.Equal(t, int64(90), result.DurationSeconds)
}

func TestClient_ConfigureAndActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/exam":
			writeEnvelope(w, http.StatusCreated, model.ConfigureExamResponse{ExamID: "exam-1"}, nil)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/exam/active":
			writeEnvelope(w, http.StatusOK, model.ExamDefinition{
				ID:        "exam-1",
				Title:     "Geography",
				Questions: []model.Question{{ID: "q1", Text: "Capital of France?", Options: []string{"Paris", "Lyon"}}},
			}, nil)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, err := c.ConfigureExam(context.Background(), &model.ConfigureExamRequest{Title: "Geography"})
	require.NoError(t, err)
	assert.Equal(t, "exam-1", id)

	exam, err := c.ActiveExam(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Geography", exam.Title)
	require.Len(t, exam.Questions, 1)
	assert.Equal(t, []string{"Paris", "Lyon"}, exam.Questions[0].Options)
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   response.ErrCode
		target error
	}{
		{"no active exam", http.StatusNotFound, response.ErrNoActiveExam, model.ErrNoActiveExam},
		{"unknown exam", http.StatusNotFound, response.ErrExamNotFound, model.ErrExamNotFound},
		{"key mismatch", http.StatusBadRequest, response.ErrSolutionKey, model.ErrInvalidSolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, nil, &response.ErrorBody{
					Code:    tt.code,
					Message: response.GetMessage(tt.code),
				})
			}))
			defer srv.Close()

			_, err := New(srv.URL).ActiveExam(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "req-1", apiErr.RequestID)
			assert.False(t, IsUnavailable(err))
		})
	}
}

func TestClient_ServerFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ActiveExam(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "HTTP 502")

	srv.Close()
	_, err = New(srv.URL).ActiveExam(context.Background())
	assert.True(t, IsUnavailable(err))
}
