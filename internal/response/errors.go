package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Session tokens ────────────────────────────────────────────────
	ErrTokenRequired   ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid    ErrCode = "TOKEN_INVALID"
	ErrTokenExpired    ErrCode = "TOKEN_EXPIRED"
	ErrSessionMismatch ErrCode = "SESSION_MISMATCH"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidIndex   ErrCode = "INVALID_INDEX"
	ErrInvalidSignal  ErrCode = "INVALID_SIGNAL"

	// ─── Exam ──────────────────────────────────────────────────────────
	ErrNoActiveExam    ErrCode = "NO_ACTIVE_EXAM"
	ErrExamNotFound    ErrCode = "EXAM_NOT_FOUND"
	ErrDegenerateExam  ErrCode = "DEGENERATE_EXAM"
	ErrSolutionKey     ErrCode = "SOLUTION_KEY_MISMATCH"
	ErrArchiveDisabled ErrCode = "ARCHIVE_DISABLED"

	// ─── Sessions ──────────────────────────────────────────────────────
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrSessionNotActive ErrCode = "SESSION_NOT_ACTIVE"
	ErrSubmissionFailed ErrCode = "SUBMISSION_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Session tokens ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "A session token is required."
	case ErrTokenInvalid:
		return "The session token is invalid."
	case ErrTokenExpired:
		return "The session token has expired."
	case ErrSessionMismatch:
		return "The session token belongs to a different session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidIndex:
		return "Question index is out of range."
	case ErrInvalidSignal:
		return "Unknown environment signal."

	// ─── Exam ──────────────────────────────────────────────────────────
	case ErrNoActiveExam:
		return "No exam is currently configured."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrDegenerateExam:
		return "The exam has no questions and cannot be graded."
	case ErrSolutionKey:
		return "The solution key must have one entry per question."
	case ErrArchiveDisabled:
		return "The result archive is not enabled on this server."

	// ─── Sessions ──────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Session not found."
	case ErrSessionNotActive:
		return "The session is no longer active."
	case ErrSubmissionFailed:
		return "The session ended but could not be graded."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
