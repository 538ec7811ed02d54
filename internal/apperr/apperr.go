package apperr

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessed signals a change request that already left PENDING.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrObjectNotFound signals a URN that does not resolve to a registered object.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoActiveGeneration signals a query against a workspace with no ACTIVE generation.
	ErrNoActiveGeneration = errors.New("no active generation")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
