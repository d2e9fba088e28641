package model

import (
	"time"
)

// Question is a single multiple-choice item. Answers address options by their
// literal text, so option order is significant for presentation only.
type Question struct {
	ID      string   `json:"id" binding:"required,max=64"`
	Text    string   `json:"text" binding:"required,max=2000"`
	Options []string `json:"options" binding:"required,min=2,max=20,dive,required,max=500"`
}

// ExamDefinition is the candidate-facing part of an exam. It never carries the
// solution key.
type ExamDefinition struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"timeLimitMinutes"`
	Questions        []Question `json:"questions"`
}

// TimeLimit returns the countdown length, or zero when the exam is untimed.
func (d *ExamDefinition) TimeLimit() time.Duration {
	if d.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(d.TimeLimitMinutes) * time.Minute
}

// Clone returns a deep copy so that sessions never share slices with the store.
func (d *ExamDefinition) Clone() *ExamDefinition {
	if d == nil {
		return nil
	}
	out := *d
	out.Questions = make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	return &out
}

// SolutionKey holds the correct option text per question index.
type SolutionKey []string

// ExamConfig is the unit held by the exam configuration store.
type ExamConfig struct {
	Definition      ExamDefinition `json:"definition"`
	SolutionKey     SolutionKey    `json:"solutionKey"`
	ExaminerContact string         `json:"examinerContact"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Clone returns a deep copy of the configuration.
func (c *ExamConfig) Clone() *ExamConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Definition = *c.Definition.Clone()
	out.SolutionKey = append(SolutionKey(nil), c.SolutionKey...)
	return &out
}

// ConfigureExamRequest is the payload for replacing the active exam.
type ConfigureExamRequest struct {
	Title            string     `json:"title" binding:"required,min=1,max=255"`
	Description      string     `json:"description" binding:"max=5000"`
	Questions        []Question `json:"questions" binding:"required,min=1,max=500,dive"`
	SolutionKey      []string   `json:"solutionKey" binding:"required,min=1"`
	ExaminerContact  string     `json:"examinerContact" binding:"omitempty,email"`
	TimeLimitMinutes int        `json:"timeLimitMinutes" binding:"min=0,max=480"`
}

// ConfigureExamResponse is returned after the exam was stored.
type ConfigureExamResponse struct {
	ExamID string `json:"examId"`
}
