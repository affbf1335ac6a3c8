package stripebridge

import (
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
)

type ErrorCode string

// Canonical error codes for the checkout bridge
const (
	// Configuration errors (rejected before any remote call, non-retryable)
	ErrInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	ErrTooManyDiscounts   ErrorCode = "TOO_MANY_DISCOUNTS"
	ErrMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"

	// Provider errors (retryable for session creation only)
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrGatewayTimeout    ErrorCode = "GATEWAY_TIMEOUT"
	ErrCircuitOpen       ErrorCode = "CIRCUIT_OPEN"

	// Capture rejections (terminal for the session)
	ErrStatusRejected        ErrorCode = "STATUS_REJECTED"
	ErrPaymentStatusRejected ErrorCode = "PAYMENT_STATUS_REJECTED"
	ErrSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionMismatch       ErrorCode = "SESSION_MISMATCH"
	ErrIntentMissing         ErrorCode = "INTENT_MISSING"

	// Local state errors
	ErrPersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	ErrRecordImmutable   ErrorCode = "RECORD_IMMUTABLE"
	ErrOrderLocked       ErrorCode = "ORDER_LOCKED"

	// Best-effort remote sync (logged, never propagated)
	ErrIdentityLinkFailed ErrorCode = "IDENTITY_LINK_FAILED"
	ErrAnnotationFailed   ErrorCode = "ANNOTATION_FAILED"
)

type ErrorClassification string

const (
	ErrorClassRetryable  ErrorClassification = "RETRYABLE"
	ErrorClassTerminal   ErrorClassification = "TERMINAL"
	ErrorClassClientSide ErrorClassification = "CLIENT_SIDE"
	ErrorClassFatal      ErrorClassification = "FATAL"
)

// ClassifyError maps a code to its retry behavior
func ClassifyError(code ErrorCode) ErrorClassification {
	switch code {
	case ErrRemoteUnavailable, ErrRateLimited, ErrGatewayTimeout:
		return ErrorClassRetryable
	case ErrInvalidAmount, ErrTooManyDiscounts, ErrMissingCredentials, ErrInvalidConfig:
		return ErrorClassClientSide
	case ErrStatusRejected, ErrPaymentStatusRejected, ErrSessionNotFound,
		ErrSessionMismatch, ErrIntentMissing, ErrCircuitOpen:
		return ErrorClassTerminal
	default:
		return ErrorClassFatal
	}
}

// GatewayError wraps a failure with its canonical code and the local order id
type GatewayError struct {
	Code      ErrorCode
	Message   string
	OrderID   int64
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func NewGatewayError(code ErrorCode, message string, orderID int64, cause error) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		OrderID:   orderID,
		Retryable: ClassifyError(code) == ErrorClassRetryable,
		Err:       cause,
	}
}

// CodeOf extracts the canonical code from an error chain
func CodeOf(err error) ErrorCode {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsRetryable reports whether the error may be retried with a fresh attempt
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// wrapStripeError normalizes a Stripe SDK error into the canonical taxonomy
// using the transport status code. Anything that is not recognizably a
// throttle or server-side outage is treated as non-retryable.
func wrapStripeError(op string, orderID int64, err error) *GatewayError {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == 429:
			return NewGatewayError(ErrRateLimited, op, orderID, err)
		case se.HTTPStatusCode == 408 || se.HTTPStatusCode == 504:
			return NewGatewayError(ErrGatewayTimeout, op, orderID, err)
		case se.HTTPStatusCode >= 500:
			return NewGatewayError(ErrRemoteUnavailable, op, orderID, err)
		default:
			return NewGatewayError(ErrInvalidConfig, op, orderID, err)
		}
	}
	// Transport-level failures (dial, reset, deadline) arrive untyped.
	return NewGatewayError(ErrRemoteUnavailable, op, orderID, err)
}
