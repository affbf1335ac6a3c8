package stripebridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to CheckoutState }{
		{StateNew, StateSessionCreated},
		{StateSessionCreated, StateSessionCreated},
		{StateSessionCreated, StateCapturePending},
		{StateCapturePending, StateCaptured},
		{StateCapturePending, StateCaptureRejected},
		{StateCaptured, StateFinalized},
		{StateCaptureRejected, StateSessionCreated},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to CheckoutState }{
		{StateNew, StateCaptured},
		{StateNew, StateFinalized},
		{StateSessionCreated, StateFinalized},
		{StateCaptured, StateSessionCreated},
		{StateFinalized, StateSessionCreated},
		{StateFinalized, StateCaptured},
		{StateCaptureRejected, StateCaptured},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionRejectsInvalidChange(t *testing.T) {
	state, err := Transition(StateFinalized, StateSessionCreated)
	assert.ErrorIs(t, err, ErrInvalidStateChange)
	assert.Equal(t, StateFinalized, state)

	state, err = Transition(StateCaptured, StateFinalized)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, state)
}

func TestDeriveState(t *testing.T) {
	order := testOrder()
	assert.Equal(t, StateNew, DeriveState(order))

	require.NoError(t, WritePaymentRecord(order, PaymentRecord{ClientSession: "cs_test_1"}))
	assert.Equal(t, StateSessionCreated, DeriveState(order))

	require.NoError(t, WritePaymentRecord(order, PaymentRecord{
		ClientSession: "cs_test_1",
		PaymentIntent: "pi_test_1",
	}))
	assert.Equal(t, StateCaptured, DeriveState(order))

	order.CheckedOut = true
	assert.Equal(t, StateFinalized, DeriveState(order))
}
