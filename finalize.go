package stripebridge

import (
	"context"
	"time"
)

// OrderFinalizer commits the local paid transition after a successful
// capture. The claim of the payment intent and the payment-data write
// happen in one durable conditional step, so a racing second finalize
// becomes a no-op instead of a double transition.
type OrderFinalizer struct {
	store  OrderStore
	client ProviderClient
	cfg    *Config
	log    *StructuredLogger
}

func NewOrderFinalizer(store OrderStore, client ProviderClient, cfg *Config, log *StructuredLogger) *OrderFinalizer {
	return &OrderFinalizer{
		store:  store,
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// Finalize stores the captured record, marks the order checked out and
// paid, applies the configured paid status and saves. A record that
// already holds this intent re-runs only the local transition, which lets
// an interrupted finalize complete on the next return request.
func (f *OrderFinalizer) Finalize(ctx context.Context, order *Order, sessionID, referenceID, intentID string) error {
	if intentID == "" {
		return NewGatewayError(ErrIntentMissing, "finalize requires a payment intent", order.ID, nil)
	}

	rec := ReadPaymentRecord(order)

	switch rec.PaymentIntent {
	case "":
		claimed := PaymentRecord{
			ClientSession:     sessionID,
			ClientReferenceID: referenceID,
			ProductName:       rec.ProductName,
			PaymentIntent:     intentID,
		}

		ok, err := f.store.ClaimPaymentIntent(ctx, order, claimed)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent request won the claim and is completing the
			// transition; nothing left to do here.
			f.log.Warn("Payment intent already claimed", map[string]interface{}{
				"order_id":       order.ID,
				"session_id":     sessionID,
				"payment_intent": intentID,
				"operation":      "finalize",
			})
			return nil
		}

		if err := WritePaymentRecord(order, claimed); err != nil {
			return err
		}

	case intentID:
		// Resuming an interrupted finalize.

	default:
		return NewGatewayError(ErrSessionMismatch,
			"order already finalized with a different payment intent", order.ID, nil)
	}

	order.CheckedOut = true
	if order.DatePaid.IsZero() {
		order.DatePaid = time.Now()
	}
	order.Status = f.cfg.PaidOrderStatus

	if err := f.store.Save(ctx, order); err != nil {
		return err
	}

	f.log.Info("Order finalized", map[string]interface{}{
		"order_id":       order.ID,
		"session_id":     sessionID,
		"payment_intent": intentID,
		"operation":      "finalize",
		"status":         order.Status,
	})

	f.annotateIntent(ctx, order, intentID)

	return nil
}

// annotateIntent stamps the order's document number onto the remote
// intent's description and metadata. Best-effort: a failure is logged and
// the finalize stands.
func (f *OrderFinalizer) annotateIntent(ctx context.Context, order *Order, intentID string) {
	if order.DocumentNumber == "" {
		return
	}

	intent, err := f.client.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		LogProviderFailure(f.log, order.ID, "", "annotate_intent", ErrAnnotationFailed, err)
		return
	}
	if intent == nil || intent.ID != intentID {
		return
	}

	update := IntentUpdate{
		Description: order.DocumentNumber,
		Metadata:    map[string]string{"order_id": order.DocumentNumber},
	}

	if err := f.client.UpdatePaymentIntent(ctx, intentID, update); err != nil {
		LogProviderFailure(f.log, order.ID, "", "annotate_intent", ErrAnnotationFailed, err)
	}
}
