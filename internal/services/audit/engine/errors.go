package engine

import "errors"

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrPersistenceFailure    = errors.New("persistence failure")
)
