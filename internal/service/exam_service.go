package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// ExamService manages the active exam configuration.
type ExamService struct {
	store repository.ExamStore
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(store repository.ExamStore, log zerolog.Logger) *ExamService {
	return &ExamService{
		store: store,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// Configure validates req and replaces the active exam. Sessions already
// running keep grading against the exam they started with.
func (s *ExamService) Configure(ctx context.Context, req *model.ConfigureExamRequest) (string, error) {
	if len(req.SolutionKey) != len(req.Questions) {
		return "", fmt.Errorf("%w: %d questions, %d key entries",
			model.ErrInvalidSolution, len(req.Questions), len(req.SolutionKey))
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = model.Question{
			ID:      strings.TrimSpace(q.ID),
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
		}
	}

	cfg := &model.ExamConfig{
		Definition: model.ExamDefinition{
			Title:            strings.TrimSpace(req.Title),
			Description:      req.Description,
			TimeLimitMinutes: req.TimeLimitMinutes,
			Questions:        questions,
		},
		SolutionKey:     append(model.SolutionKey(nil), req.SolutionKey...),
		ExaminerContact: strings.TrimSpace(req.ExaminerContact),
	}

	id, err := s.store.Replace(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("store exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", id).
		Str("title", cfg.Definition.Title).
		Int("questions", len(questions)).
		Int("time_limit_minutes", req.TimeLimitMinutes).
		Msg("Active exam replaced")
	return id, nil
}

// Active returns the candidate-facing definition of the active exam. The
// solution key never leaves this method.
func (s *ExamService) Active(ctx context.Context) (*model.ExamDefinition, error) {
	cfg, err := s.store.Active(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Definition.Clone(), nil
}

// ActiveConfig returns the full configuration of the active exam.
func (s *ExamService) ActiveConfig(ctx context.Context) (*model.ExamConfig, error) {
	return s.store.Active(ctx)
}

// Get returns the full configuration of a stored exam.
func (s *ExamService) Get(ctx context.Context, id string) (*model.ExamConfig, error) {
	return s.store.GetByID(ctx, id)
}
