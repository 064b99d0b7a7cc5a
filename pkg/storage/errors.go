package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a survey, response or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an edit keeps losing its compare-and-swap
	// against concurrent writers.
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidSurveyID is returned when a survey id cannot name a partition.
	ErrInvalidSurveyID = errors.New("invalid survey id")
)
