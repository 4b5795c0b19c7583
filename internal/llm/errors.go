package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a reasoning-service failure.
type ErrorKind string

const (
	// KindRateLimited means the service rejected the call for budget reasons; retry with backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient is a network or service hiccup; retry a small number of times.
	KindTransient ErrorKind = "transient"
	// KindFatal is an auth/configuration/content failure; never retried.
	KindFatal ErrorKind = "fatal"
)

// ClientError is the typed error returned by every Client backend.
type ClientError struct {
	Kind ErrorKind
	// Detail is a short human-readable description kept in stage history.
	Detail string
	// RetryAfter is the service's hint for RateLimited errors, zero if absent.
	RetryAfter time.Duration
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// RateLimited builds a RateLimited error.
func RateLimited(detail string, retryAfter time.Duration, cause error) *ClientError {
	return &ClientError{Kind: KindRateLimited, Detail: detail, RetryAfter: retryAfter, Cause: cause}
}

// Transient builds a Transient error.
func Transient(detail string, cause error) *ClientError {
	return &ClientError{Kind: KindTransient, Detail: detail, Cause: cause}
}

// Fatal builds a Fatal error.
func Fatal(detail string, cause error) *ClientError {
	return &ClientError{Kind: KindFatal, Detail: detail, Cause: cause}
}

// KindOf returns the kind of err, treating unclassified errors as Fatal.
func KindOf(err error) ErrorKind {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindFatal
}

// Detail returns the human-readable detail of err for audit records.
func Detail(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Detail
	}
	return err.Error()
}

// classifyStatus maps an HTTP status code onto the error taxonomy.
func classifyStatus(code int, retryAfter time.Duration, detail string, cause error) *ClientError {
	switch {
	case code == 429:
		return RateLimited(detail, retryAfter, cause)
	case code == 408 || code >= 500:
		return Transient(detail, cause)
	default:
		return Fatal(detail, cause)
	}
}
