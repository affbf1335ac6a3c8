package stripebridge

import (
	"errors"
)

// CheckoutState tracks one checkout attempt over the life of an order.
type CheckoutState int

const (
	StateNew CheckoutState = iota
	StateSessionCreated
	StateCapturePending
	StateCaptured
	StateFinalized
	StateCaptureRejected
)

func (s CheckoutState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSessionCreated:
		return "SESSION_CREATED"
	case StateCapturePending:
		return "CAPTURE_PENDING"
	case StateCaptured:
		return "CAPTURED"
	case StateFinalized:
		return "FINALIZED"
	case StateCaptureRejected:
		return "CAPTURE_REJECTED"
	default:
		return "UNKNOWN"
	}
}

var ErrInvalidStateChange = errors.New("invalid checkout state change")

// NEW -> SESSION_CREATED
// SESSION_CREATED -> CAPTURE_PENDING, SESSION_CREATED (fresh session)
// CAPTURE_PENDING -> CAPTURED, CAPTURE_REJECTED
// CAPTURED -> FINALIZED
// CAPTURE_REJECTED -> SESSION_CREATED (retry with a new session)
// FINALIZED is terminal. ABANDONED has no state of its own: an order stuck
// in SESSION_CREATED that the buyer never returns for simply stays there.

// CanTransition reports whether the state change is legal.
func CanTransition(from, to CheckoutState) bool {
	switch from {
	case StateNew:
		return to == StateSessionCreated
	case StateSessionCreated:
		return to == StateCapturePending || to == StateSessionCreated
	case StateCapturePending:
		return to == StateCaptured || to == StateCaptureRejected
	case StateCaptured:
		return to == StateFinalized
	case StateCaptureRejected:
		return to == StateSessionCreated
	default:
		return false
	}
}

// Transition validates and returns the new state.
func Transition(from, to CheckoutState) (CheckoutState, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidStateChange
	}
	return to, nil
}

// DeriveState reconstructs the checkout state from durable order state.
// CAPTURE_PENDING and CAPTURE_REJECTED only exist inside a return-processing
// request and are never derived from storage.
func DeriveState(o *Order) CheckoutState {
	rec := ReadPaymentRecord(o)

	switch {
	case rec.Captured() && o.CheckedOut:
		return StateFinalized
	case rec.Captured():
		return StateCaptured
	case rec.ClientSession != "":
		return StateSessionCreated
	default:
		return StateNew
	}
}
