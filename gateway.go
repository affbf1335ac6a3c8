package stripebridge

import (
	"context"
	"fmt"
	"net/url"
)

// Redirect is an instruction to the surrounding web layer. The
// reconciliation logic never performs redirects itself.
type Redirect string

const (
	RedirectNone     Redirect = ""
	RedirectComplete Redirect = "complete"
	RedirectFailed   Redirect = "failed"
)

// CheckoutURLs are the pipeline-provided step URLs for one checkout.
type CheckoutURLs struct {
	// Process is the step the provider redirects the buyer back to.
	Process string
	// Cancel is the failed-checkout step.
	Cancel string
}

// CheckoutForm carries everything the template layer needs to embed the
// hosted checkout.
type CheckoutForm struct {
	ClientSecret string
	SessionID    string
	PublicKey    string

	// ReturnURL is the process URL with the signed return token attached.
	ReturnURL string
	CancelURL string
}

// PaymentInfo is the operator-facing view of an order's remote payment.
type PaymentInfo struct {
	PaymentIntent string
	IntentStatus  string
	PaymentMethod string
	ProductName   string
}

// PaymentMethod is the capability surface the order-checkout pipeline
// programs against. Gateway is its one implementation here.
type PaymentMethod interface {
	IsAvailable(order *Order) bool
	RenderCheckoutForm(ctx context.Context, order *Order, urls CheckoutURLs) (*CheckoutForm, Redirect, error)
	ProcessReturn(ctx context.Context, rctx ReturnContext) (bool, Redirect)
}

// Gateway composes the session builder, capture reconciler, identity
// linker and finalizer into the payment method exposed to the pipeline.
type Gateway struct {
	cfg        *Config
	client     ProviderClient
	store      OrderStore
	locker     OrderLocker
	builder    *SessionBuilder
	reconciler *CaptureReconciler
	finalizer  *OrderFinalizer
	log        *StructuredLogger
}

// NewGateway wires a gateway instance from its collaborators.
func NewGateway(cfg *Config, client ProviderClient, store OrderStore, locker OrderLocker, log *StructuredLogger) *Gateway {
	linker := NewIdentityLinker(client, log)

	return &Gateway{
		cfg:        cfg,
		client:     client,
		store:      store,
		locker:     locker,
		builder:    NewSessionBuilder(client, cfg, log),
		reconciler: NewCaptureReconciler(client, cfg, linker, log),
		finalizer:  NewOrderFinalizer(store, client, cfg, log),
		log:        log,
	}
}

// IsAvailable reports whether this gateway can take the order at all.
func (g *Gateway) IsAvailable(order *Order) bool {
	if g.cfg.Validate() != nil {
		return false
	}
	return order != nil && order.Total.IsPositive()
}

// ReferenceID derives the client reference id and the payment-method-save
// policy for the order. Orders with a linked member get a durable
// member-scoped reference; guests fall back to the ephemeral
// address-scoped one.
func (g *Gateway) ReferenceID(order *Order) (string, bool) {
	if !order.IsGuest() {
		return fmt.Sprintf("member_%d", order.MemberID), g.cfg.SaveForMembers
	}
	if order.Billing.ID != 0 {
		return fmt.Sprintf("address_%d", order.Billing.ID), g.cfg.SaveForGuests
	}
	return "", false
}

// RenderCheckoutForm creates a hosted session for the order and persists
// the pending reference. The pending session id must be durable before
// the buyer is handed to the provider; when storage fails the whole
// attempt fails so no detached remote session is ever trusted later.
func (g *Gateway) RenderCheckoutForm(ctx context.Context, order *Order, urls CheckoutURLs) (*CheckoutForm, Redirect, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, RedirectFailed, err
	}

	if DeriveState(order) == StateFinalized || DeriveState(order) == StateCaptured {
		// A captured order never re-enters checkout.
		return nil, RedirectComplete, nil
	}

	referenceID, save := g.ReferenceID(order)

	created, err := g.builder.Build(ctx, order, urls.Process, referenceID, save)
	if err != nil {
		return nil, RedirectFailed, err
	}

	release, err := g.locker.Lock(ctx, order.ID)
	if err != nil {
		return nil, RedirectFailed, err
	}
	defer release()

	pending := PaymentRecord{
		ClientSession:     created.SessionID,
		ClientReferenceID: referenceID,
		ProductName:       created.ProductName,
	}
	if err := WritePaymentRecord(order, pending); err != nil {
		return nil, RedirectFailed, err
	}
	if err := g.store.Save(ctx, order); err != nil {
		g.log.Error("Pending session not stored, failing checkout attempt", map[string]interface{}{
			"order_id":   order.ID,
			"session_id": created.SessionID,
			"operation":  "render_checkout",
			"cause":      err.Error(),
		})
		return nil, RedirectFailed, err
	}

	returnURL, err := g.signedReturnURL(urls.Process, order.ID, created.SessionID)
	if err != nil {
		return nil, RedirectFailed, NewGatewayError(ErrInvalidConfig, "sign return token", order.ID, err)
	}

	return &CheckoutForm{
		ClientSecret: created.ClientSecret,
		SessionID:    created.SessionID,
		PublicKey:    g.cfg.PublicKey,
		ReturnURL:    returnURL,
		CancelURL:    urls.Cancel,
	}, RedirectNone, nil
}

// ProcessReturn runs the capture and finalize half of the flow when the
// buyer comes back from the provider. The boolean tells the pipeline
// whether payment succeeded; the redirect tells the web layer where to
// send the buyer.
func (g *Gateway) ProcessReturn(ctx context.Context, rctx ReturnContext) (bool, Redirect) {
	release, err := g.locker.Lock(ctx, rctx.OrderID)
	if err != nil {
		// Another request is already capturing this order; do not run a
		// second capture beside it.
		g.log.Warn("Return processing skipped", map[string]interface{}{
			"order_id":   rctx.OrderID,
			"session_id": rctx.SessionID,
			"operation":  "process_return",
			"error_code": string(CodeOf(err)),
		})
		return false, RedirectFailed
	}
	defer release()

	order, err := g.store.Load(ctx, rctx.OrderID)
	if err != nil {
		g.log.Error("Order not loadable on return", map[string]interface{}{
			"order_id":   rctx.OrderID,
			"session_id": rctx.SessionID,
			"operation":  "process_return",
			"cause":      err.Error(),
		})
		return false, RedirectFailed
	}

	rec := ReadPaymentRecord(order)

	if rec.Captured() {
		// Replay of a finished capture. At most the interrupted local
		// transition is completed; no second remote capture happens.
		if !order.CheckedOut {
			if err := g.finalizer.Finalize(ctx, order, rec.ClientSession, rec.ClientReferenceID, rec.PaymentIntent); err != nil {
				return false, RedirectFailed
			}
		}
		return true, RedirectComplete
	}

	if rec.ClientSession == "" || rec.ClientSession != rctx.SessionID {
		g.log.Warn("Return session does not match stored session", map[string]interface{}{
			"order_id":   order.ID,
			"session_id": rctx.SessionID,
			"operation":  "process_return",
			"stored":     rec.ClientSession,
		})
		return false, RedirectFailed
	}

	intentID, err := g.reconciler.Capture(ctx, rec.ClientSession, rec.ClientReferenceID, order)
	if err != nil {
		if ClassifyError(CodeOf(err)) == ErrorClassTerminal {
			// Terminal for this session: clear the pending reference so a
			// fresh checkout attempt can replace it.
			if clearErr := ClearPendingSession(order); clearErr == nil {
				if saveErr := g.store.Save(ctx, order); saveErr != nil {
					g.log.Error("Pending session not cleared", map[string]interface{}{
						"order_id":  order.ID,
						"operation": "process_return",
						"cause":     saveErr.Error(),
					})
				}
			}
		}
		return false, RedirectFailed
	}

	if err := g.finalizer.Finalize(ctx, order, rec.ClientSession, rec.ClientReferenceID, intentID); err != nil {
		return false, RedirectFailed
	}

	return true, RedirectComplete
}

// PaymentInfo fetches intent status and payment method type for operator
// inspection. Remote lookups are best-effort; local record data is always
// returned.
func (g *Gateway) PaymentInfo(ctx context.Context, order *Order) *PaymentInfo {
	rec := ReadPaymentRecord(order)

	info := &PaymentInfo{
		PaymentIntent: rec.PaymentIntent,
		ProductName:   rec.ProductName,
	}

	if rec.PaymentIntent == "" {
		return info
	}

	intent, err := g.client.RetrievePaymentIntent(ctx, rec.PaymentIntent)
	if err != nil || intent == nil || intent.ID != rec.PaymentIntent {
		return info
	}
	info.IntentStatus = intent.Status

	if intent.PaymentMethod != "" {
		if methodType, err := g.client.RetrievePaymentMethodType(ctx, intent.PaymentMethod); err == nil {
			info.PaymentMethod = methodType
		}
	}

	return info
}

// signedReturnURL attaches the signed return token to the process URL.
func (g *Gateway) signedReturnURL(processURL string, orderID int64, sessionID string) (string, error) {
	token, err := SignReturnToken(g.cfg.TokenSecret, ReturnContext{OrderID: orderID, SessionID: sessionID})
	if err != nil {
		return "", err
	}

	u, err := url.Parse(processURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("payment_token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
