package pipeline

import "errors"

var (
	// ErrUnbound is returned when a pipeline without a source is run.
	ErrUnbound = errors.New("pipeline is not bound to a dataset")

	// ErrUnknownAction is returned for a step whose name resolves to no
	// action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrNotStarted is returned by NextBatch before Reset.
	ErrNotStarted = errors.New("pipeline iteration has not been started")
)
