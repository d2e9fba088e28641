// Package grading scores a candidate's responses against a solution key.
//
// Grade is a pure function: it reads only its input, keeps no state and
// returns identical results for identical input.
package grading

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	// ErrDegenerateExam is returned for exams with zero questions, where a
	// percentage is undefined.
	ErrDegenerateExam = errors.New("exam has no questions")
	// ErrLengthMismatch is returned when the key or the responses are not
	// index-aligned with the questions.
	ErrLengthMismatch = errors.New("responses or solution key do not match question count")
)

// Input bundles everything needed to grade one session.
type Input struct {
	Questions []model.Question
	Key       model.SolutionKey
	Responses []string
	StartedAt time.Time
	EndedAt   time.Time
	Reason    model.TerminationReason
}

// Grade evaluates every question by exact, case-sensitive comparison of the
// selected option text with the correct option text.
func Grade(in Input) (*model.GradedResult, error) {
	total := len(in.Questions)
	if total == 0 {
		return nil, ErrDegenerateExam
	}
	if len(in.Key) != total {
		return nil, fmt.Errorf("%w: %d questions, %d key entries", ErrLengthMismatch, total, len(in.Key))
	}
	if len(in.Responses) != total {
		return nil, fmt.Errorf("%w: %d questions, %d responses", ErrLengthMismatch, total, len(in.Responses))
	}

	score := 0
	evaluation := make([]model.QuestionEvaluation, total)
	for i, q := range in.Questions {
		answer := in.Responses[i]
		correct := answer != "" && answer == in.Key[i]
		if correct {
			score++
		}
		if answer == "" {
			answer = model.NoAnswer
		}
		evaluation[i] = model.QuestionEvaluation{
			Question:        q.Text,
			CandidateAnswer: answer,
			CorrectAnswer:   in.Key[i],
			IsCorrect:       correct,
		}
	}

	return &model.GradedResult{
		Score:             score,
		TotalQuestions:    total,
		Percentage:        Percentage(score, total),
		Evaluation:        evaluation,
		TerminationReason: in.Reason,
		DurationSeconds:   DurationSeconds(in.StartedAt, in.EndedAt),
	}, nil
}

// Percentage returns score/total*100 rounded to two decimals.
func Percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*100*100) / 100
}

// DurationSeconds rounds the elapsed time to whole seconds.
func DurationSeconds(start, end time.Time) int64 {
	return int64(math.Round(end.Sub(start).Seconds()))
}
