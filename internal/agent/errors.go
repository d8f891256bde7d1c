package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidSequence indicates a message would break conversation ordering.
	ErrInvalidSequence = errors.New("invalid conversation sequence")

	// ErrNoTransport indicates the loop was built without a transport.
	ErrNoTransport = errors.New("no transport configured")

	// ErrNoDispatcher indicates the loop was built without a dispatcher.
	ErrNoDispatcher = errors.New("no dispatcher configured")

	// ErrNoObserver indicates the loop was built without a capture source.
	ErrNoObserver = errors.New("no observer configured")

	// ErrBudgetExhausted is reported when the iteration budget runs out.
	ErrBudgetExhausted = errors.New("iteration budget exhausted")

	// errRunFinished cancels the run context once Run returns.
	errRunFinished = errors.New("run finished")
)

// TerminationReason is why a run stopped.
type TerminationReason string

const (
	ReasonCompleted       TerminationReason = "completed"
	ReasonBudgetExhausted TerminationReason = "budget_exhausted"
	ReasonTransportError  TerminationReason = "transport_error"
	ReasonUserInterrupt   TerminationReason = "user_interrupt"
	ReasonSafetyAbort     TerminationReason = "safety_abort"
	// ReasonDispatchError means a tool call could not be turned into a
	// recorded observation, usually because the screen could not be
	// captured, so the conversation cannot continue.
	ReasonDispatchError TerminationReason = "dispatch_error"
)

// Description is a human readable summary of the reason.
func (r TerminationReason) Description() string {
	switch r {
	case ReasonCompleted:
		return "task completed"
	case ReasonBudgetExhausted:
		return "iteration budget exhausted"
	case ReasonTransportError:
		return "model request failed"
	case ReasonUserInterrupt:
		return "interrupted by operator"
	case ReasonSafetyAbort:
		return "safety corner triggered"
	case ReasonDispatchError:
		return "tool dispatch failed"
	default:
		return string(r)
	}
}

// LoopError records where a run failed.
type LoopError struct {
	Phase     Phase
	Iteration int
	Reason    TerminationReason
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%s during %s (iteration %d): %v", e.Reason, e.Phase, e.Iteration, e.Cause)
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}

// retryable is implemented by transport errors that know whether a later
// attempt may succeed.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether a transport failure is worth another attempt:
// server-side and connection-level failures are, application errors are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
