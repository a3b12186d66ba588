// Package errors defines the failure taxonomy shared by the lookup, discovery
// and import layers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream error")
	ErrNoResponse   = errors.New("no response from upstream")
	ErrPersistence  = errors.New("persistence error")
)

// InvalidInputError is raised for malformed identifiers and names. It is never retried.
type InvalidInputError struct {
	Field   string
	Value   string
	Message string
}

func NewInvalidInput(field, value, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func (e *InvalidInputError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("field", e.Field)
}

// UpstreamError carries a non-success response from the lookup service.
type UpstreamError struct {
	StatusCode int
	Message    string
	Attempts   int
}

func NewUpstream(statusCode int, message string) *UpstreamError {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &UpstreamError{StatusCode: statusCode, Message: message, Attempts: 1}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Retryable reports whether the failure is server-class.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

func (e *UpstreamError) ToHTTPError() *httperror.HTTPError {
	status := http.StatusBadGateway
	if e.StatusCode == http.StatusNotFound {
		status = http.StatusNotFound
	}
	return httperror.NewHTTPError(status, e.Error()).
		AddMetaValue("upstream_status", strconv.Itoa(e.StatusCode)).
		AddMetaValue("attempts", strconv.Itoa(e.Attempts))
}

// NoResponseError is a network-level failure where upstream sent nothing back.
type NoResponseError struct {
	Op  string
	Err error
}

func NewNoResponse(op string, err error) *NoResponseError {
	return &NoResponseError{Op: op, Err: err}
}

func (e *NoResponseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: no response from upstream", e.Op)
	}
	return fmt.Sprintf("%s: no response from upstream: %v", e.Op, e.Err)
}

func (e *NoResponseError) Unwrap() error {
	return e.Err
}

func (e *NoResponseError) Is(target error) bool {
	return target == ErrNoResponse
}

func (e *NoResponseError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusServiceUnavailable, e.Error())
}

// PersistenceError aborts the node being processed and is recorded on the run.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, e.Error()).AddMetaValue("op", e.Op)
}

// IsNotFound reports whether err is an upstream or repository 404.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode == http.StatusNotFound
	}
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

// IsRetryable reports whether the lookup client should try again.
func IsRetryable(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.Retryable()
}

// Message returns the human readable form recorded in run error lists.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
