package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestErrorKindRetryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindServerError:    true,
		KindTimeout:        true,
		KindNetwork:        true,
		KindRateLimit:      false,
		KindAuth:           false,
		KindBilling:        false,
		KindInvalidRequest: false,
		KindNotFound:       false,
		KindApplication:    false,
		KindUnknown:        false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", kind, got, want)
		}
	}
}

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{402, KindBilling},
		{429, KindRateLimit},
		{400, KindInvalidRequest},
		{404, KindNotFound},
		{408, KindTimeout},
		{422, KindApplication},
		{418, KindInvalidRequest},
		{500, KindServerError},
		{503, KindServerError},
		{529, KindServerError},
		{200, KindUnknown},
	}
	for _, tt := range tests {
		if got := classifyStatusCode(tt.status); got != tt.want {
			t.Errorf("classifyStatusCode(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"canceled", fmt.Errorf("post: %w", context.Canceled), KindUnknown},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", timeoutError{}, KindTimeout},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindNetwork},
		{"reset text", errors.New("read: connection reset by peer"), KindNetwork},
		{"rate limit text", errors.New("Too Many Requests"), KindRateLimit},
		{"other", errors.New("something odd"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProviderErrorCodeRefinesUnknownOnly(t *testing.T) {
	err := (&ProviderError{Kind: KindUnknown}).WithCode("overloaded_error")
	if err.Kind != KindServerError {
		t.Errorf("Kind = %s, want server_error", err.Kind)
	}

	err = (&ProviderError{Kind: KindUnknown}).WithStatus(422).WithCode("invalid_request_error")
	if err.Kind != KindApplication {
		t.Errorf("Kind = %s, want application", err.Kind)
	}
}

func TestProviderErrorChain(t *testing.T) {
	cause := fmt.Errorf("post: %w", context.Canceled)
	err := fmt.Errorf("request: %w", NewProviderError("openai", "m", cause))

	if !errors.Is(err, context.Canceled) {
		t.Error("errors.Is(err, context.Canceled) = false")
	}
	pe, ok := GetProviderError(err)
	if !ok {
		t.Fatal("GetProviderError() ok = false")
	}
	if pe.Retryable() {
		t.Error("cancelled request reported retryable")
	}
	want := "[unknown] openai model=m post: context canceled"
	if pe.Error() != want {
		t.Errorf("Error() = %q, want %q", pe.Error(), want)
	}
}
