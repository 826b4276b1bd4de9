// Package apperr defines the error taxonomy shared by the linking flow and
// the query API. Every failure that crosses a handler boundary is tagged with
// one of these codes so the process-wide responder can pick the right HTTP
// status; everything else falls through as a plain 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	// CodeBadRequest marks malformed client input, e.g. an options blob
	// that is not valid base64 or JSON.
	CodeBadRequest Code = "bad_request"

	// CodeUnauthorized marks a shared-secret mismatch on the query API.
	CodeUnauthorized Code = "unauthorized"

	// CodeMissingLinkState marks a linking step invoked out of sequence.
	CodeMissingLinkState Code = "missing_link_state"

	// CodeNoBalanceData marks an aggregator account with no balance
	// entries. Fatal for the enclosing mapping batch.
	CodeNoBalanceData Code = "no_balance_data"

	// CodeUpstream marks a failed aggregator or context-store call.
	CodeUpstream Code = "upstream_error"
)

// Error carries a failure class and the HTTP status it maps to.
type Error struct {
	Code   Code
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest tags malformed client input.
func BadRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Status: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// Unauthorized tags a shared-secret mismatch.
func Unauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Err: errors.New("token mismatch")}
}

// MissingLinkState tags a linking step invoked before its prerequisites were
// established.
func MissingLinkState(format string, args ...any) *Error {
	return &Error{Code: CodeMissingLinkState, Status: http.StatusConflict, Err: fmt.Errorf(format, args...)}
}

// NoBalanceData tags an account whose balance list came back empty.
func NoBalanceData(accountID string) *Error {
	return &Error{Code: CodeNoBalanceData, Status: http.StatusBadGateway, Err: fmt.Errorf("no balance entries on account %s", accountID)}
}

// Upstream wraps a failed call to the aggregator or the context store.
func Upstream(err error) *Error {
	return &Error{Code: CodeUpstream, Status: http.StatusBadGateway, Err: err}
}

// Upstreamf wraps a formatted upstream failure.
func Upstreamf(format string, args ...any) *Error {
	return Upstream(fmt.Errorf(format, args...))
}

// CodeOf extracts the failure class from err, or "" when err is untagged.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// StatusOf extracts the HTTP status from err, defaulting to 500 for
// untagged errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
