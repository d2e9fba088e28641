package proctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotTerminating is returned when the pipeline receives a record that has
// not been finalized by its controller.
var ErrNotTerminating = errors.New("session record is not terminating")

// GradingIngress is the solution-key side of grading. It scores the request
// and notifies the examiner; report delivery failures never surface here.
type GradingIngress interface {
	SubmitSession(ctx context.Context, req *model.GradingRequest) (*model.GradedResult, error)
}

// Pipeline packages a finalized session and forwards it for grading.
type Pipeline struct {
	ingress GradingIngress
	log     zerolog.Logger
}

// NewPipeline creates a pipeline bound to ingress.
func NewPipeline(ingress GradingIngress, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		ingress: ingress,
		log:     log.With().Str("component", "submission_pipeline").Logger(),
	}
}

// Submit builds one grading request from record and sends it. Every call
// builds the request from scratch; exactly-once delivery is the
// controller's job.
func (p *Pipeline) Submit(ctx context.Context, record model.SessionRecord) (*model.GradedResult, error) {
	if record.State != model.SessionStateTerminating || record.EndedAt == nil {
		return nil, ErrNotTerminating
	}

	req := &model.GradingRequest{
		ExamID:            record.ExamID,
		CandidateName:     record.CandidateName,
		Responses:         append([]string(nil), record.Responses...),
		StartedAt:         record.StartedAt,
		EndedAt:           *record.EndedAt,
		TerminationReason: record.TerminationReason,
	}

	result, err := p.ingress.SubmitSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit session %s: %w", record.ID, err)
	}

	p.log.Debug().
		Str("session_id", record.ID).
		Str("exam_id", record.ExamID).
		Int("score", result.Score).
		Msg("Grading request accepted")
	return result, nil
}
