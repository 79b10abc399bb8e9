package clausegraph

import (
	"errors"

	"github.com/brunobiangulo/clausegraph/failure"
)

var (
	// ErrGenerationFailed matches any failure while producing Cypher.
	ErrGenerationFailed = failure.ErrGeneration

	// ErrExecutionFailed matches any failure while running Cypher.
	ErrExecutionFailed = failure.ErrExecution

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("clausegraph: invalid configuration")

	// ErrUnknownQuery is returned for a showcase id that does not exist.
	ErrUnknownQuery = errors.New("clausegraph: unknown query id")

	// ErrEmptyQuestion is returned when neither a question nor a query id
	// was supplied.
	ErrEmptyQuestion = errors.New("clausegraph: question is empty")

	// ErrNoSearcher is returned by the similarity path when no vector
	// backend is configured.
	ErrNoSearcher = errors.New("clausegraph: similarity search not configured")

	// ErrNoCache is returned by WarmCache when no envelope cache exists.
	ErrNoCache = errors.New("clausegraph: envelope cache not configured")
)
