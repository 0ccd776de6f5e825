// Package domainerrors defines the typed error taxonomy for the blood bank
// workflow. Services return these instead of bare strings so handlers can map
// them to HTTP statuses and callers can branch on the failure class without
// string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	// Safety-gate failures. None of these may be downgraded to warnings.
	CodeDonorIneligible             Code = "DONOR_INELIGIBLE"
	CodeInvalidStateTransition      Code = "INVALID_STATE_TRANSITION"
	CodeAlreadyReserved             Code = "ALREADY_RESERVED"
	CodeDiscrepancyBlock            Code = "DISCREPANCY_BLOCK"
	CodeBedsideVerificationFailed   Code = "BEDSIDE_VERIFICATION_FAILED"
	CodeHighRiskOverrideRequired    Code = "HIGH_RISK_OVERRIDE_REQUIRED"
	CodeSlotOccupied                Code = "SLOT_OCCUPIED"
	CodeBreachReviewPending         Code = "BREACH_REVIEW_PENDING"
	CodePartialTransferRejected     Code = "PARTIAL_TRANSFER_REJECTED"

	// General failures.
	CodeNotFound   Code = "NOT_FOUND"
	CodeForbidden  Code = "FORBIDDEN"
	CodeBadRequest Code = "BAD_REQUEST"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL"
)

// Error carries a Code plus a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a typed error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf builds a typed error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal when err is
// not a typed domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status handlers should respond with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeAlreadyReserved, CodeSlotOccupied, CodeConflict:
		return http.StatusConflict
	case CodeInternal:
		return http.StatusInternalServerError
	case CodeDonorIneligible, CodeInvalidStateTransition, CodeDiscrepancyBlock,
		CodeBedsideVerificationFailed, CodeHighRiskOverrideRequired,
		CodeBreachReviewPending, CodePartialTransferRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
