package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/songgift/api/internal/client"
)

func TestClassify_APIErrors(t *testing.T) {
	cases := []struct {
		statusCode    int
		wantCode      Code
		wantRetryable bool
	}{
		{401, CodeAuthError, false},
		{403, CodeAuthError, false},
		{404, CodeNotFound, false},
		{429, CodeRateLimited, true},
		{500, CodeServerError, true},
		{503, CodeServerError, true},
		{400, CodeProviderError, false},
	}

	for _, tc := range cases {
		classified := Classify(&client.APIError{StatusCode: tc.statusCode, Body: "test"})
		if classified.Code != tc.wantCode {
			t.Errorf("status %d: expected code %s, got %s", tc.statusCode, tc.wantCode, classified.Code)
		}
		if classified.Retryable != tc.wantRetryable {
			t.Errorf("status %d: expected retryable=%v", tc.statusCode, tc.wantRetryable)
		}
		if classified.UserMessage == "" {
			t.Errorf("status %d: missing user message", tc.statusCode)
		}
	}
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	classified := Classify(fmt.Errorf("poll task: %w", context.DeadlineExceeded))

	if classified.Code != CodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", classified.Code)
	}
	if !classified.Retryable {
		t.Error("timeouts should be retryable")
	}
}

func TestClassify_Unknown(t *testing.T) {
	classified := Classify(errors.New("weird failure"))

	if classified.Code != CodeUnknownError {
		t.Errorf("expected UNKNOWN_ERROR, got %s", classified.Code)
	}
	if classified.Retryable {
		t.Error("unknown errors should not be retryable")
	}
}

func TestClassify_PassThrough(t *testing.T) {
	original := NewProviderFailure("generation failed")
	classified := Classify(fmt.Errorf("wrapped: %w", original))

	if classified != original {
		t.Error("expected already-classified error to pass through")
	}
}

func TestShouldRetry(t *testing.T) {
	retryable := &ClassifiedError{Code: CodeTimeout, Retryable: true, Severity: SeverityWarning}

	if !ShouldRetry(retryable, 0) || !ShouldRetry(retryable, 2) {
		t.Error("expected retry below the attempt ceiling")
	}
	if ShouldRetry(retryable, 3) {
		t.Error("expected no retry at the ceiling")
	}

	critical := NewStoreError(errors.New("connection refused"))
	if ShouldRetry(critical, 0) {
		t.Error("critical severity must never retry")
	}

	terminal := NewProviderFailure("bad prompt")
	if ShouldRetry(terminal, 0) {
		t.Error("non-retryable errors must never retry")
	}
}

func TestBackoffDelay(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		delay := BackoffDelay(attempt)

		minDelay := time.Second << uint(attempt)
		if minDelay > 30*time.Second || minDelay <= 0 {
			minDelay = 30 * time.Second
		}
		if delay > 30*time.Second {
			t.Errorf("attempt %d: delay %v exceeds 30s cap", attempt, delay)
		}
		if delay < minDelay && delay != 30*time.Second {
			t.Errorf("attempt %d: delay %v below exponential base %v", attempt, delay, minDelay)
		}
	}
}

func TestClassifiedError_Unwrap(t *testing.T) {
	inner := &client.APIError{StatusCode: 500, Body: "boom"}
	classified := Classify(inner)

	var unwrapped *client.APIError
	if !errors.As(classified, &unwrapped) {
		t.Error("expected errors.As to reach the wrapped APIError")
	}
}
