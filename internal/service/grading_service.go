package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/report"
)

// dispatchTimeout bounds report delivery, which outlives the HTTP request.
const dispatchTimeout = 10 * time.Second

// ResultArchiver stores a copy of every graded report.
type ResultArchiver interface {
	Enqueue(ctx context.Context, r *model.ResultReport) error
}

// GradingService is the solution-key side of a submission: it grades a
// finished session and hands the report to the examiner. It is the
// in-process grading ingress of every session controller.
type GradingService struct {
	exams      *ExamService
	dispatcher report.Dispatcher
	archive    ResultArchiver
	fallback   string
	log        zerolog.Logger
	now        func() time.Time
}

// NewGradingService creates a GradingService. archive may be nil.
func NewGradingService(
	exams *ExamService,
	dispatcher report.Dispatcher,
	archive ResultArchiver,
	fallbackRecipient string,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		exams:      exams,
		dispatcher: dispatcher,
		archive:    archive,
		fallback:   fallbackRecipient,
		log:        log.With().Str("component", "grading_service").Logger(),
		now:        time.Now,
	}
}

// SubmitSession grades req against the exam it names, or the active exam
// when it names none. Report delivery and archiving failures are logged and
// never returned.
func (s *GradingService) SubmitSession(ctx context.Context, req *model.GradingRequest) (*model.GradedResult, error) {
	cfg, err := s.lookup(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	result, err := grading.Grade(grading.Input{
		Questions: cfg.Definition.Questions,
		Key:       cfg.SolutionKey,
		Responses: req.Responses,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
		Reason:    req.TerminationReason,
	})
	if err != nil {
		return nil, fmt.Errorf("grade exam %s: %w", cfg.Definition.ID, err)
	}

	rep := &model.ResultReport{
		ReportID:      uuid.NewString(),
		ExamID:        cfg.Definition.ID,
		ExamTitle:     cfg.Definition.Title,
		CandidateName: req.CandidateName,
		Recipient:     s.recipient(cfg),
		StartedAt:     req.StartedAt,
		EndedAt:       req.EndedAt,
		Result:        *result,
		SubmittedAt:   s.now().UTC(),
	}

	s.log.Info().
		Str("exam_id", rep.ExamID).
		Str("candidate", rep.CandidateName).
		Int("score", result.Score).
		Int("total", result.TotalQuestions).
		Float64("percentage", result.Percentage).
		Str("reason", string(result.TerminationReason)).
		Msg("Session graded")

	s.deliver(ctx, rep)
	return result, nil
}

func (s *GradingService) lookup(ctx context.Context, examID string) (*model.ExamConfig, error) {
	if examID == "" {
		return s.exams.ActiveConfig(ctx)
	}
	cfg, err := s.exams.Get(ctx, examID)
	if errors.Is(err, model.ErrExamNotFound) {
		return nil, fmt.Errorf("exam %s: %w", examID, err)
	}
	return cfg, err
}

func (s *GradingService) recipient(cfg *model.ExamConfig) string {
	if cfg.ExaminerContact != "" {
		return cfg.ExaminerContact
	}
	return s.fallback
}

// deliver makes the single dispatch attempt and queues the archive copy.
func (s *GradingService) deliver(ctx context.Context, rep *model.ResultReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, rep); err != nil {
			s.log.Error().
				Err(err).
				Str("report_id", rep.ReportID).
				Str("recipient", rep.Recipient).
				Msg("Report delivery failed")
		}
	}

	if s.archive != nil {
		if err := s.archive.Enqueue(ctx, rep); err != nil {
			s.log.Error().Err(err).Str("report_id", rep.ReportID).Msg("Failed to queue report for archive")
		}
	}
}
