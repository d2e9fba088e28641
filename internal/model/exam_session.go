package model

import (
	"errors"
	"strings"
	"time"
)

// SessionState enumerates the lifecycle of a proctored session.
type SessionState string

const (
	SessionStateCreated     SessionState = "CREATED"
	SessionStateActive      SessionState = "ACTIVE"
	SessionStateTerminating SessionState = "TERMINATING"
	SessionStateSubmitted   SessionState = "SUBMITTED"
)

// TerminationReason classifies why a session ended.
type TerminationReason string

const (
	ReasonNone             TerminationReason = ""
	ReasonNormalSubmission TerminationReason = "NORMAL_SUBMISSION"
	ReasonTimeExpired      TerminationReason = "TIME_EXPIRED"
	ReasonTabSwitch        TerminationReason = "TAB_SWITCH"
	ReasonFocusLost        TerminationReason = "FOCUS_LOST"
	ReasonUnloadAttempted  TerminationReason = "UNLOAD_ATTEMPTED"
)

// ErrUnknownReason is returned for termination reasons outside the enum.
var ErrUnknownReason = errors.New("unknown termination reason")

var reasonLabels = map[TerminationReason]string{
	ReasonNormalSubmission: "Normal Submission",
	ReasonTimeExpired:      "Time Expired",
	ReasonTabSwitch:        "Tab Switch / Window Hidden",
	ReasonFocusLost:        "Window Focus Lost",
	ReasonUnloadAttempted:  "Page Refresh Attempted",
}

// Label returns the human-readable form shown to examiners.
func (r TerminationReason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return string(r)
}

// Valid reports whether r is one of the known reasons.
func (r TerminationReason) Valid() bool {
	_, ok := reasonLabels[r]
	return ok
}

// IsIntegrityViolation is true for every reason except normal submission and expiry.
func (r TerminationReason) IsIntegrityViolation() bool {
	return r.Valid() && r != ReasonNormalSubmission && r != ReasonTimeExpired
}

// ParseTerminationReason accepts canonical values as well as the legacy
// labels older clients send. Empty input means a normal submission.
func ParseTerminationReason(s string) (TerminationReason, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ReasonNormalSubmission, nil
	}
	if r := TerminationReason(strings.ToUpper(s)); r.Valid() {
		return r, nil
	}
	for r, label := range reasonLabels {
		if strings.EqualFold(label, s) {
			return r, nil
		}
	}
	return ReasonNone, ErrUnknownReason
}

// SessionRecord is the state owned by a session controller.
type SessionRecord struct {
	ID                string            `json:"id"`
	ExamID            string            `json:"exam_id"`
	CandidateName     string            `json:"candidate_name"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	Responses         []string          `json:"responses"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	State             SessionState      `json:"state"`
}

// Clone copies the record including its responses.
func (r SessionRecord) Clone() SessionRecord {
	r.Responses = append([]string(nil), r.Responses...)
	if r.EndedAt != nil {
		t := *r.EndedAt
		r.EndedAt = &t
	}
	return r
}

// SessionSummary is a SessionRecord as the examiner's monitor shows it:
// progress only, no answers.
type SessionSummary struct {
	ID                string            `json:"id"`
	ExamID            string            `json:"exam_id"`
	CandidateName     string            `json:"candidate_name"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	Answered          int               `json:"answered"`
	TotalQuestions    int               `json:"total_questions"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	State             SessionState      `json:"state"`
}

// Summary drops the responses from r, keeping how many were answered.
func (r SessionRecord) Summary() SessionSummary {
	answered := 0
	for _, v := range r.Responses {
		if v != "" {
			answered++
		}
	}
	return SessionSummary{
		ID:                r.ID,
		ExamID:            r.ExamID,
		CandidateName:     r.CandidateName,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		Answered:          answered,
		TotalQuestions:    len(r.Responses),
		TerminationReason: r.TerminationReason,
		State:             r.State,
	}
}

// StartSessionRequest is the payload for beginning a server-side session.
type StartSessionRequest struct {
	CandidateName string `json:"candidateName" binding:"required,min=1,max=255"`
}

// RecordAnswerRequest sets the answer for one question. An empty value clears it.
type RecordAnswerRequest struct {
	Value string `json:"value" binding:"max=500"`
}

// SignalRequest reports an environment signal for a session.
type SignalRequest struct {
	Signal string `json:"signal" binding:"required,oneof=visibility-hidden focus-lost unload-attempted"`
}

// SessionView is what the session endpoints return.
type SessionView struct {
	Session          SessionRecord    `json:"session"`
	RemainingSeconds *int             `json:"remaining_seconds,omitempty"`
	Result           *CandidateResult `json:"result,omitempty"`
	Error            string           `json:"error,omitempty"`
}
