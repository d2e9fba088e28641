// Package client talks to a proctor server over its HTTP API. It is the
// remote grading ingress of sessions that run outside the server, such as
// the terminal client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
)

var _ proctor.GradingIngress = (*Client)(nil)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx reply carrying the server's error envelope.
type APIError struct {
	Status    int
	Code      response.ErrCode
	Message   string
	Fields    map[string]string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("proctor server: HTTP %d", e.Status)
	}
	return fmt.Sprintf("proctor server: %s: %s", e.Code, e.Message)
}

// Unwrap maps error codes back to the domain errors they stand for.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case response.ErrNoActiveExam:
		return model.ErrNoActiveExam
	case response.ErrExamNotFound:
		return model.ErrExamNotFound
	case response.ErrSessionNotFound:
		return model.ErrSessionNotFound
	case response.ErrDegenerateExam:
		return grading.ErrDegenerateExam
	case response.ErrInvalidIndex:
		return model.ErrInvalidIndex
	case response.ErrSolutionKey:
		return model.ErrInvalidSolution
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "proctor_client").Logger() }
}

// Client is a thin wrapper around the proctor HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigureExam replaces the active exam and returns its id.
func (c *Client) ConfigureExam(ctx context.Context, req *model.ConfigureExamRequest) (string, error) {
	var out model.ConfigureExamResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/exam", req, &out); err != nil {
		return "", err
	}
	return out.ExamID, nil
}

// ActiveExam fetches the candidate-facing definition of the active exam.
func (c *Client) ActiveExam(ctx context.Context) (*model.ExamDefinition, error) {
	var out model.ExamDefinition
	if err := c.do(ctx, http.MethodGet, "/api/v1/exam/active", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitSession sends a finished session for grading. The server replies
// with the summary only, so the evaluation stays empty and the duration is
// computed from the request.
func (c *Client) SubmitSession(ctx context.Context, req *model.GradingRequest) (*model.GradedResult, error) {
	body := model.SubmitSessionRequest{
		ExamID:            req.ExamID,
		CandidateName:     req.CandidateName,
		Responses:         req.Responses,
		StartedAt:         req.StartedAt,
		EndedAt:           req.EndedAt,
		TerminationReason: string(req.TerminationReason),
	}

	var out model.SubmitSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/exam/submit", body, &out); err != nil {
		return nil, err
	}
	return &model.GradedResult{
		Score:             out.Score,
		TotalQuestions:    out.TotalQuestions,
		Percentage:        out.Percentage,
		TerminationReason: out.TerminationReason,
		DurationSeconds:   grading.DurationSeconds(req.StartedAt, req.EndedAt),
	}, nil
}

type envelope struct {
	Data     json.RawMessage     `json:"data"`
	Error    *response.ErrorBody `json:"error"`
	Metadata response.Metadata   `json:"metadata"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("request_id", env.Metadata.RequestID).
		Dur("latency", time.Since(start)).
		Msg("Proctor API call")

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: env.Metadata.RequestID}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// IsUnavailable reports whether err means the server could not be reached
// or failed internally, as opposed to rejecting the request.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return err != nil
}
