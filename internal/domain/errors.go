package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session has not been opened.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the competition or its questions could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates an answer referenced an unknown question ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidAnswer indicates the answer shape does not match the question type.
	ErrInvalidAnswer = errors.New("invalid answer for question type")
	// ErrWordLimitExceeded is returned when a written answer is over its word limit.
	ErrWordLimitExceeded = errors.New("answer exceeds word limit")
	// ErrInvalidTransition is returned for quiz actions not allowed in the current state.
	ErrInvalidTransition = errors.New("action not allowed in current quiz state")
	// ErrInvalidRound is returned for round numbers outside 1..4.
	ErrInvalidRound = errors.New("invalid round number")
	// ErrRoundNotAvailable is returned when a round action is attempted out of sequence.
	ErrRoundNotAvailable = errors.New("round not available for participant")
	// ErrUnauthenticated means the session could not be refreshed and was cleared.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrValidation is returned when input fails validation before any backend call.
	ErrValidation = errors.New("validation failed")
)
