package model

import "time"

// MonitorEventType names entries of the examiner's live feed.
type MonitorEventType string

const (
	MonitorSessionStarted    MonitorEventType = "session_started"
	MonitorSessionTerminated MonitorEventType = "session_terminated"
	MonitorSessionSubmitted  MonitorEventType = "session_submitted"
	MonitorSessionFailed     MonitorEventType = "session_failed"
)

// MonitorEvent is published for every session lifecycle change.
type MonitorEvent struct {
	Type               MonitorEventType  `json:"type"`
	SessionID          string            `json:"session_id"`
	ExamID             string            `json:"exam_id"`
	CandidateName      string            `json:"candidate_name"`
	TerminationReason  TerminationReason `json:"termination_reason,omitempty"`
	IntegrityViolation bool              `json:"integrity_violation,omitempty"`
	Score              *int              `json:"score,omitempty"`
	TotalQuestions     int               `json:"total_questions,omitempty"`
	Error              string            `json:"error,omitempty"`
	At                 time.Time         `json:"at"`
}

// MonitorStats summarizes the sessions currently held by the server.
type MonitorStats struct {
	TotalJoined     int `json:"total_joined"`
	TotalActive     int `json:"total_active"`
	TotalSubmitted  int `json:"total_submitted"`
	TotalFailed     int `json:"total_failed"`
	TotalViolations int `json:"total_violations"`
}

// MonitorSnapshot is the first message of a live monitor stream.
type MonitorSnapshot struct {
	Exam     *ExamDefinition  `json:"exam,omitempty"`
	Stats    MonitorStats     `json:"stats"`
	Sessions []SessionSummary `json:"sessions"`
}
