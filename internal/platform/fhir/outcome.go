package fhir

import (
	"context"
	"errors"
	"net/http"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// WarningOutcome creates a warning OperationOutcome.
// Use this when an operation succeeded but produced non-fatal warnings that
// the client should be aware of.
func WarningOutcome(message string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityWarning, IssueTypeProcessing, message)
}

// SearchErrorOutcome maps a search failure to an HTTP status and outcome.
// Invalid requests name the offending parameter in the issue expression;
// anything else is a server fault whose details are not echoed.
func SearchErrorOutcome(err error) (int, *OperationOutcome) {
	var ire *search.InvalidRequestError
	switch {
	case errors.As(err, &ire):
		code := IssueTypeInvalid
		if errors.Is(err, search.ErrUnsupportedInclude) {
			code = IssueTypeNotSupported
		}
		oo := NewOperationOutcome(IssueSeverityError, code, ire.Error())
		if ire.Param != "" {
			oo.Issue[0].Expression = []string{ire.Param}
		}
		return http.StatusBadRequest, oo
	case search.IsInvalidRequest(err):
		return http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, err.Error())
	case errors.Is(err, search.ErrSnapshotNotFound):
		return http.StatusGone, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, "search results have expired; repeat the search")
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, NewOperationOutcome(IssueSeverityError, IssueTypeTimeout, "search exceeded the allowed time limit")
	}
	return http.StatusInternalServerError, InternalErrorOutcome("search failed")
}
