package model

import (
	"time"
)

// NoAnswer is rendered in evaluations for unanswered questions.
const NoAnswer = "No Answer"

// QuestionEvaluation is the per-question outcome of grading.
type QuestionEvaluation struct {
	Question        string `json:"question"`
	CandidateAnswer string `json:"studentAnswer"`
	CorrectAnswer   string `json:"correctAnswer"`
	IsCorrect       bool   `json:"isCorrect"`
}

// GradedResult is produced once per submitted session.
type GradedResult struct {
	Score             int                  `json:"score"`
	TotalQuestions    int                  `json:"totalQuestions"`
	Percentage        float64              `json:"percentage"`
	Evaluation        []QuestionEvaluation `json:"evaluation"`
	TerminationReason TerminationReason    `json:"terminationReason"`
	DurationSeconds   int64                `json:"durationSeconds"`
}

// CandidateResult is the part of a GradedResult a candidate may see. The
// per-question evaluation carries the solution key and stays with the
// examiner.
type CandidateResult struct {
	Score             int               `json:"score"`
	TotalQuestions    int               `json:"totalQuestions"`
	Percentage        float64           `json:"percentage"`
	TerminationReason TerminationReason `json:"terminationReason"`
	DurationSeconds   int64             `json:"durationSeconds"`
}

// ForCandidate strips the evaluation from r.
func (r *GradedResult) ForCandidate() *CandidateResult {
	if r == nil {
		return nil
	}
	return &CandidateResult{
		Score:             r.Score,
		TotalQuestions:    r.TotalQuestions,
		Percentage:        r.Percentage,
		TerminationReason: r.TerminationReason,
		DurationSeconds:   r.DurationSeconds,
	}
}

// GradingRequest is what the submission pipeline sends to the grading ingress.
type GradingRequest struct {
	ExamID            string            `json:"examId,omitempty"`
	CandidateName     string            `json:"candidateName"`
	Responses         []string          `json:"responses"`
	StartedAt         time.Time         `json:"startTimestamp"`
	EndedAt           time.Time         `json:"endTimestamp"`
	TerminationReason TerminationReason `json:"terminationReason"`
}

// SubmitSessionRequest is the wire form of a client-side session submission.
// The reason is kept as a string so legacy labels can be parsed.
type SubmitSessionRequest struct {
	ExamID            string    `json:"examId" binding:"omitempty,uuid"`
	CandidateName     string    `json:"candidateName" binding:"required,min=1,max=255"`
	Responses         []string  `json:"responses" binding:"required,dive,max=500"`
	StartedAt         time.Time `json:"startTimestamp" binding:"required"`
	EndedAt           time.Time `json:"endTimestamp" binding:"required,gtefield=StartedAt"`
	TerminationReason string    `json:"terminationReason" binding:"omitempty,max=64,reason"`
}

// SubmitSessionResponse is the reply of the stateless submit endpoint.
type SubmitSessionResponse struct {
	Score             int               `json:"score"`
	TotalQuestions    int               `json:"totalQuestions"`
	Percentage        float64           `json:"percentage"`
	TerminationReason TerminationReason `json:"terminationReason"`
}

// ResultReport is handed to the report dispatcher.
type ResultReport struct {
	ReportID      string       `json:"report_id"`
	ExamID        string       `json:"exam_id"`
	ExamTitle     string       `json:"exam_title"`
	CandidateName string       `json:"candidate_name"`
	Recipient     string       `json:"recipient,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	Result        GradedResult `json:"result"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}
