package stripebridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptureReconciler(provider *fakeProvider, cfg *Config) *CaptureReconciler {
	log := testLogger()
	return NewCaptureReconciler(provider, cfg, NewIdentityLinker(provider, log), log)
}

func TestCaptureExtractsPaymentIntent(t *testing.T) {
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_test_1",
			Status:        SessionStatusComplete,
			PaymentStatus: PaymentStatusPaid,
			PaymentIntent: "pi_test_1",
		},
	}
	r := newCaptureReconciler(provider, testConfig())

	intent, err := r.Capture(context.Background(), "cs_test_1", "", testOrder())
	require.NoError(t, err)
	assert.Equal(t, "pi_test_1", intent)
	assert.Equal(t, 1, provider.retrieveCalls)
}

func TestCaptureRejectsOpenSessionEvenWhenPaid(t *testing.T) {
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_test_1",
			Status:        "open",
			PaymentStatus: PaymentStatusPaid,
			PaymentIntent: "pi_test_1",
		},
	}
	r := newCaptureReconciler(provider, testConfig())

	_, err := r.Capture(context.Background(), "cs_test_1", "", testOrder())
	require.Error(t, err)
	assert.Equal(t, ErrStatusRejected, CodeOf(err))
}

func TestCaptureRejectsUnpaidSession(t *testing.T) {
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_test_1",
			Status:        SessionStatusComplete,
			PaymentStatus: "unpaid",
			PaymentIntent: "pi_test_1",
		},
	}
	r := newCaptureReconciler(provider, testConfig())

	_, err := r.Capture(context.Background(), "cs_test_1", "", testOrder())
	require.Error(t, err)
	assert.Equal(t, ErrPaymentStatusRejected, CodeOf(err))
}

func TestCaptureHonorsWhitelistExtras(t *testing.T) {
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_test_1",
			Status:        "open",
			PaymentStatus: "no_payment_required",
		},
	}
	cfg := testConfig()
	cfg.WhitelistStatus = []string{"open"}
	cfg.WhitelistPaymentStatus = []string{"no_payment_required"}
	r := newCaptureReconciler(provider, cfg)

	_, err := r.Capture(context.Background(), "cs_test_1", "", testOrder())
	require.Error(t, err)
	// Statuses pass the widened whitelists; only the missing intent fails.
	assert.Equal(t, ErrIntentMissing, CodeOf(err))
}

func TestCaptureMissingSession(t *testing.T) {
	provider := &fakeProvider{session: &CheckoutSession{}}
	r := newCaptureReconciler(provider, testConfig())

	_, err := r.Capture(context.Background(), "cs_gone", "", testOrder())
	require.Error(t, err)
	assert.Equal(t, ErrSessionNotFound, CodeOf(err))
}

func TestCaptureRetrieveFailureIsRetryable(t *testing.T) {
	provider := &fakeProvider{retrieveErr: assert.AnError}
	r := newCaptureReconciler(provider, testConfig())

	_, err := r.Capture(context.Background(), "cs_test_1", "", testOrder())
	require.Error(t, err)
	assert.Equal(t, ErrRemoteUnavailable, CodeOf(err))
	assert.True(t, IsRetryable(err))
}

func TestCaptureLinksCustomerIdentity(t *testing.T) {
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_test_1",
			Status:        SessionStatusComplete,
			PaymentStatus: PaymentStatusPaid,
			PaymentIntent: "pi_test_1",
			Customer:      "cus_42",
		},
		customers: map[string]*RemoteCustomer{
			"cus_42": {ID: "cus_42"},
		},
	}
	r := newCaptureReconciler(provider, testConfig())

	_, err := r.Capture(context.Background(), "cs_test_1", "member_7", testOrder())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.updateCustomerCalls)
	assert.Equal(t, "member_7", provider.lastCustomerUpdate.Metadata[metadataReferenceKey])
}

func TestCaptureDoesNotMutateOrder(t *testing.T) {
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_test_1",
			Status:        SessionStatusComplete,
			PaymentStatus: PaymentStatusPaid,
			PaymentIntent: "pi_test_1",
		},
	}
	r := newCaptureReconciler(provider, testConfig())

	order := testOrder()
	_, err := r.Capture(context.Background(), "cs_test_1", "", order)
	require.NoError(t, err)

	assert.False(t, order.CheckedOut)
	assert.True(t, order.DatePaid.IsZero())
	assert.True(t, ReadPaymentRecord(order).IsZero())
}
