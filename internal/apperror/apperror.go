// Package apperror maps raw failures from the provider, the store and the
// network into a closed taxonomy with retry and severity semantics.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/songgift/api/internal/client"
)

// Code identifies a failure class
type Code string

const (
	CodeNetworkError  Code = "NETWORK_ERROR"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeTimeout       Code = "TIMEOUT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeProviderError Code = "PROVIDER_ERROR"
	CodeStoreError    Code = "STORE_ERROR"
	CodeAuthError     Code = "AUTH_ERROR"
	CodeServerError   Code = "SERVER_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Severity grades a failure
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// MaxRetryAttempts is the retry ceiling applied by ShouldRetry
const MaxRetryAttempts = 3

// ClassifiedError is a raw failure annotated with its class
type ClassifiedError struct {
	Code        Code
	Message     string
	UserMessage string
	Retryable   bool
	Severity    Severity
	Err         error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify maps an arbitrary failure from a provider call into the taxonomy.
// It is idempotent: an already classified error passes through unchanged.
func Classify(err error) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Code:        CodeTimeout,
			Message:     err.Error(),
			UserMessage: "The music service took too long to respond. Please try again.",
			Retryable:   true,
			Severity:    SeverityWarning,
			Err:         err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ClassifiedError{
				Code:        CodeTimeout,
				Message:     err.Error(),
				UserMessage: "The music service took too long to respond. Please try again.",
				Retryable:   true,
				Severity:    SeverityWarning,
				Err:         err,
			}
		}
		return &ClassifiedError{
			Code:        CodeNetworkError,
			Message:     err.Error(),
			UserMessage: "Could not reach the music service. Please try again.",
			Retryable:   true,
			Severity:    SeverityWarning,
			Err:         err,
		}
	}

	return &ClassifiedError{
		Code:        CodeUnknownError,
		Message:     err.Error(),
		UserMessage: "Something went wrong. Please try again later.",
		Retryable:   false,
		Severity:    SeverityError,
		Err:         err,
	}
}

func classifyAPIError(apiErr *client.APIError) *ClassifiedError {
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return &ClassifiedError{
			Code:        CodeAuthError,
			Message:     apiErr.Error(),
			UserMessage: "The music service rejected our credentials.",
			Retryable:   false,
			Severity:    SeverityCritical,
			Err:         apiErr,
		}
	case apiErr.StatusCode == http.StatusNotFound:
		return &ClassifiedError{
			Code:        CodeNotFound,
			Message:     apiErr.Error(),
			UserMessage: "The generation task could not be found.",
			Retryable:   false,
			Severity:    SeverityError,
			Err:         apiErr,
		}
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return &ClassifiedError{
			Code:        CodeRateLimited,
			Message:     apiErr.Error(),
			UserMessage: "The music service is busy. Please try again shortly.",
			Retryable:   true,
			Severity:    SeverityWarning,
			Err:         apiErr,
		}
	case apiErr.StatusCode >= 500:
		return &ClassifiedError{
			Code:        CodeServerError,
			Message:     apiErr.Error(),
			UserMessage: "The music service had a problem. Please try again.",
			Retryable:   true,
			Severity:    SeverityError,
			Err:         apiErr,
		}
	default:
		return &ClassifiedError{
			Code:        CodeProviderError,
			Message:     apiErr.Error(),
			UserMessage: "The music service could not process this request.",
			Retryable:   false,
			Severity:    SeverityError,
			Err:         apiErr,
		}
	}
}

// NewStoreError wraps a persistence failure. Store failures are never
// retried against the provider; they indicate the local database is unwell.
func NewStoreError(err error) *ClassifiedError {
	return &ClassifiedError{
		Code:        CodeStoreError,
		Message:     err.Error(),
		UserMessage: "We could not load your song right now. Please try again.",
		Retryable:   true,
		Severity:    SeverityCritical,
		Err:         err,
	}
}

// NewProviderFailure represents an explicit terminal failure reported by the
// provider for a task (e.g. GENERATE_AUDIO_FAILED).
func NewProviderFailure(message string) *ClassifiedError {
	if message == "" {
		message = "generation failed"
	}
	return &ClassifiedError{
		Code:        CodeProviderError,
		Message:     message,
		UserMessage: "Song generation failed. Please try a different request.",
		Retryable:   false,
		Severity:    SeverityError,
	}
}

// ShouldRetry reports whether a classified failure warrants another attempt
func ShouldRetry(err *ClassifiedError, attemptCount int) bool {
	return err.Retryable && attemptCount < MaxRetryAttempts && err.Severity != SeverityCritical
}

// BackoffDelay returns the wait before retry attempt n (0-based): an
// exponential base of 1s doubling per attempt, plus random jitter up to 1s,
// capped at 30s.
func BackoffDelay(attemptCount int) time.Duration {
	const (
		base     = time.Second
		maxDelay = 30 * time.Second
	)

	delay := base << uint(attemptCount)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	if delay+jitter > maxDelay {
		return maxDelay
	}
	return delay + jitter
}
