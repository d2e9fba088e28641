package model

import "errors"

// Domain errors shared by the store, the session controller and the handlers.
var (
	ErrNoActiveExam    = errors.New("no active exam")
	ErrExamNotFound    = errors.New("exam not found")
	ErrInvalidIndex    = errors.New("question index out of range")
	ErrInvalidSolution = errors.New("solution key does not match questions")
	ErrSessionNotFound = errors.New("session not found")
)
