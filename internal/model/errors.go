package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for callers.
type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	CodeDiscoveryFailed   ErrorCode = "DISCOVERY_FAILED"
	CodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"
	CodeArtifactNotFound  ErrorCode = "ARTIFACT_NOT_FOUND"
	CodeAmbiguousArtifact ErrorCode = "AMBIGUOUS_ARTIFACT"
	CodeStreamingFailed   ErrorCode = "STREAMING_FAILED"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeInternal          ErrorCode = "SERVICE_ERROR"
)

// Error is a classified failure. Detail holds diagnostic text such as the
// captured output of the extractor.
type Error struct {
	Code    ErrorCode
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetail attaches diagnostic text and returns the same error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// CodeOf returns the classification of err, or CodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// AsError extracts the classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
