package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks client errors: malformed or unsupported search
	// parameters, chains and include targets.
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrUnsupportedInclude marks an include entry naming a relationship the
	// source type does not declare.
	ErrUnsupportedInclude = errors.New("unsupported include")

	// ErrSnapshotNotFound is returned when a paging token has no cached id list.
	ErrSnapshotNotFound = errors.New("search snapshot not found")
)

// InvalidRequestError describes why a search request was rejected.
type InvalidRequestError struct {
	Param  string
	Reason string
	kind   error
}

func (e *InvalidRequestError) Error() string {
	if e.Param == "" {
		return e.Reason
	}
	return fmt.Sprintf("search parameter %q: %s", e.Param, e.Reason)
}

// Is makes errors.Is match ErrInvalidRequest, and ErrUnsupportedInclude for
// include failures.
func (e *InvalidRequestError) Is(target error) bool {
	if target == ErrInvalidRequest {
		return true
	}
	return e.kind != nil && target == e.kind
}

func invalidParam(param, format string, args ...interface{}) error {
	return &InvalidRequestError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

func unsupportedInclude(raw, format string, args ...interface{}) error {
	return &InvalidRequestError{Param: raw, Reason: fmt.Sprintf(format, args...), kind: ErrUnsupportedInclude}
}

// IsInvalidRequest reports whether err is a client error.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
