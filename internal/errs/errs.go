// Package errs defines the gateway's error taxonomy: validation,
// admission, execution, timeout and internal errors, each carrying enough
// context for the gateway handler to render the right HTTP status and for
// the logger to record the right severity.
package errs

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an error for logging severity and HTTP status mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindAdmission
	KindExecution
	KindTimeout
	KindInternal
)

// GatewayError wraps a cause with a Kind and an optional HTTP status.
type GatewayError struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error { return e.Cause }

func newErr(kind Kind, status int, message string, cause error) *GatewayError {
	return &GatewayError{Kind: kind, Status: status, Message: message, Cause: cause}
}

// Validation wraps bad-input errors: bad method, bad media type, malformed
// body, empty/oversized source, forbidden import.
func Validation(message string, cause error) *GatewayError {
	return newErr(KindValidation, http.StatusBadRequest, message, cause)
}

// Admission wraps rate-limit rejections.
func Admission(message string) *GatewayError {
	return newErr(KindAdmission, http.StatusTooManyRequests, message, nil)
}

// Execution wraps subprocess/setup/I-O failures.
func Execution(message string, cause error) *GatewayError {
	return newErr(KindExecution, http.StatusOK, message, cause)
}

// Timeout wraps a context-deadline-exceeded execution failure. It is an
// ExecutionError distinguished by cause, per spec.
func Timeout(cause error) *GatewayError {
	return newErr(KindTimeout, http.StatusOK, "execution timed out", cause)
}

// Internal wraps transport/encoding failures that never reach the child.
func Internal(message string, cause error) *GatewayError {
	return newErr(KindInternal, http.StatusInternalServerError, message, cause)
}

// Wrap attaches additional context to an existing error without changing
// its Kind, mirroring the original package's Wrap/Wrapf helpers.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// As is re-exported so callers don't need a second import for the common
// errors.As(err, &target) idiom used throughout this repo.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// IsTimeout reports whether err (or something it wraps) is a TimeoutError.
func IsTimeout(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == KindTimeout
}
