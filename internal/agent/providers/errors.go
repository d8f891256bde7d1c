package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind categorizes why a provider request failed.
type ErrorKind string

const (
	// KindServerError indicates server-side issues (HTTP 5xx).
	KindServerError ErrorKind = "server_error"

	// KindTimeout indicates the request or connection timed out.
	KindTimeout ErrorKind = "timeout"

	// KindNetwork indicates a connection-level failure.
	KindNetwork ErrorKind = "network"

	// KindRateLimit indicates rate limiting (HTTP 429).
	KindRateLimit ErrorKind = "rate_limit"

	// KindAuth indicates authentication failure (HTTP 401, 403).
	KindAuth ErrorKind = "auth"

	// KindBilling indicates payment or quota issues (HTTP 402).
	KindBilling ErrorKind = "billing"

	// KindInvalidRequest indicates client-side issues (HTTP 400).
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindNotFound indicates an unknown model or endpoint (HTTP 404).
	KindNotFound ErrorKind = "not_found"

	// KindApplication indicates a well-formed response carrying an error
	// payload, or one that cannot be used.
	KindApplication ErrorKind = "application"

	// KindUnknown indicates an unclassified error.
	KindUnknown ErrorKind = "unknown"
)

// Retryable reports whether another attempt may succeed. Rate limits are
// not retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindServerError, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// ProviderError is a structured failure from a model endpoint.
type ProviderError struct {
	Kind      ErrorKind
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Kind)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable implements the retry contract the agent loop checks for.
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewProviderError wraps cause and classifies it.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Kind: KindUnknown}
	if cause != nil {
		err.Message = cause.Error()
		err.Kind = ClassifyError(cause)
	}
	return err
}

// WithStatus records the HTTP status and reclassifies.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if kind := classifyStatusCode(status); kind != KindUnknown {
		e.Kind = kind
	}
	return e
}

// WithCode records a provider-specific code. A code only refines the kind
// when the status did not already settle it.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if e.Kind != KindUnknown {
		return e
	}
	if kind := classifyErrorCode(code); kind != KindUnknown {
		e.Kind = kind
	}
	return e
}

// ClassifyError inspects a transport-level error.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return KindNetwork
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return KindRateLimit
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"):
		return KindAuth
	default:
		return KindUnknown
	}
}

func classifyStatusCode(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindBilling
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusBadRequest:
		return KindInvalidRequest
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusUnprocessableEntity:
		return KindApplication
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

func classifyErrorCode(code string) ErrorKind {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return KindRateLimit
	case "authentication_error", "invalid_api_key", "permission_error":
		return KindAuth
	case "billing_error", "insufficient_quota":
		return KindBilling
	case "not_found_error", "model_not_found":
		return KindNotFound
	case "api_error", "server_error", "internal_error", "overloaded_error":
		return KindServerError
	case "invalid_request_error":
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}
