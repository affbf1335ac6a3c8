package stripebridge

import (
	"context"
	"slices"
)

// CaptureReconciler validates a finished remote session and extracts the
// payment intent. It is a pure read+validate+link step: it never mutates
// local order state, and every remote failure collapses into a typed
// capture-failed result for the caller to act on.
type CaptureReconciler struct {
	client ProviderClient
	cfg    *Config
	linker *IdentityLinker
	log    *StructuredLogger
}

func NewCaptureReconciler(client ProviderClient, cfg *Config, linker *IdentityLinker, log *StructuredLogger) *CaptureReconciler {
	return &CaptureReconciler{
		client: client,
		cfg:    cfg,
		linker: linker,
		log:    log,
	}
}

// Capture retrieves the session, checks its status and payment status
// against the configured whitelists, links the customer identity and
// returns the payment intent id. A rejection is terminal for this
// session; the caller decides whether to clear pending state for a retry.
func (r *CaptureReconciler) Capture(ctx context.Context, clientSession, referenceID string, order *Order) (string, error) {
	sess, err := r.client.RetrieveSession(ctx, clientSession)
	if err != nil {
		ge := wrapStripeError("retrieve session", order.ID, err)
		LogProviderFailure(r.log, order.ID, clientSession, "retrieve_session", ge.Code, err)
		return "", ge
	}
	if sess == nil || sess.ID == "" {
		return "", NewGatewayError(ErrSessionNotFound, "provider returned no session", order.ID, nil)
	}

	if !slices.Contains(r.cfg.ValidStatuses(), sess.Status) {
		LogCaptureDecision(r.log, order.ID, clientSession, false, "status "+sess.Status)
		return "", NewGatewayError(ErrStatusRejected,
			"session status "+sess.Status+" is not accepted", order.ID, nil)
	}

	if !slices.Contains(r.cfg.ValidPaymentStatuses(), sess.PaymentStatus) {
		LogCaptureDecision(r.log, order.ID, clientSession, false, "payment status "+sess.PaymentStatus)
		return "", NewGatewayError(ErrPaymentStatusRejected,
			"payment status "+sess.PaymentStatus+" is not accepted", order.ID, nil)
	}

	r.linker.Link(ctx, sess.Customer, referenceID, order)

	if sess.PaymentIntent == "" {
		return "", NewGatewayError(ErrIntentMissing, "session carries no payment intent", order.ID, nil)
	}

	LogCaptureDecision(r.log, order.ID, clientSession, true, "")
	return sess.PaymentIntent, nil
}
