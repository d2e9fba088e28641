package websocket

import "github.com/stemsi/exstem-proctor/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSignal Action = "signal"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest sets the answer of one question. An empty value clears it.
type AnswerRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
	Value  string `json:"value" binding:"max=500"`
}

// SignalRequest reports an environment signal observed by the client.
type SignalRequest struct {
	Action Action `json:"action"`
	Signal string `json:"signal" binding:"required,oneof=visibility-hidden focus-lost unload-attempted"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved      Event = "saved"
	EventSignal     Event = "signal"
	EventTick       Event = "tick"
	EventTerminated Event = "terminated"
	EventGraded     Event = "graded"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

// SignalResponse acknowledges a signal. PreventDefault asks the client to
// suppress the default action of the event, such as leaving the page.
type SignalResponse struct {
	Event          Event `json:"event"`
	Accepted       bool  `json:"accepted"`
	PreventDefault bool  `json:"prevent_default"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type TerminatedResponse struct {
	Event  Event                   `json:"event"`
	Reason model.TerminationReason `json:"reason"`
	Label  string                  `json:"label"`
}

type GradedResponse struct {
	Event  Event                  `json:"event"`
	Result *model.CandidateResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
