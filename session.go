package stripebridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreatedSession is the result of a successful session build. Nothing is
// persisted by the builder; the caller stores the pending reference only
// after this is returned.
type CreatedSession struct {
	ClientSecret string
	SessionID    string

	// ProductName is the opaque label shown in the hosted checkout when
	// detail view is disabled; empty otherwise.
	ProductName string
}

// SessionBuilder constructs the remote checkout session for an order.
type SessionBuilder struct {
	client  ProviderClient
	cfg     *Config
	retry   *RetryStrategy
	breaker *CircuitBreaker
	log     *StructuredLogger
}

// NewSessionBuilder wires a builder with the gateway's retry and breaker
// policy for session creation.
func NewSessionBuilder(client ProviderClient, cfg *Config, log *StructuredLogger) *SessionBuilder {
	return &SessionBuilder{
		client:  client,
		cfg:     cfg,
		retry:   NewRetryStrategy(DefaultRetryConfig()),
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		log:     log,
	}
}

// Build validates the order's amounts, derives line items and at most one
// discount, resolves the remote customer directive and creates the hosted
// session. All local validation happens before the first remote call.
func (b *SessionBuilder) Build(ctx context.Context, order *Order, redirectURL, referenceID string, savePaymentMethod bool) (*CreatedSession, error) {
	lineItems, discount, productName, err := b.buildLineItems(order)
	if err != nil {
		return nil, err
	}

	req := SessionRequest{
		ReturnURL:         redirectURL,
		LineItems:         lineItems,
		SavePaymentMethod: savePaymentMethod && referenceID != "",
		IdempotencyKey:    uuid.NewString(),
	}

	if discount != nil {
		couponID, err := b.createCoupon(ctx, order, *discount)
		if err != nil {
			return nil, err
		}
		req.CouponID = couponID
	}

	if referenceID != "" {
		existing, err := b.client.SearchCustomerByReference(ctx, referenceID)
		if err != nil {
			// Search is an optimization; fall back to creating a fresh
			// customer rather than failing the checkout.
			ge := wrapStripeError("search customer", order.ID, err)
			LogProviderFailure(b.log, order.ID, "", "search_customer", ge.Code, err)
			existing = nil
		}
		if existing != nil {
			req.Customer = existing.ID
		} else {
			req.CreateCustomer = true
		}
	}

	var sess *CheckoutSession
	err = b.breaker.Execute(func() error {
		return b.retry.Do(ctx, func() error {
			created, err := b.client.CreateSession(ctx, req)
			if err != nil {
				return wrapStripeError("create session", order.ID, err)
			}
			sess = created
			return nil
		})
	})
	if err != nil {
		LogProviderFailure(b.log, order.ID, "", "create_session", CodeOf(err), err)
		return nil, err
	}

	b.log.Info("Checkout session created", map[string]interface{}{
		"order_id":   order.ID,
		"session_id": sess.ID,
		"operation":  "create_session",
		"line_items": len(lineItems),
	})

	return &CreatedSession{
		ClientSecret: sess.ClientSecret,
		SessionID:    sess.ID,
		ProductName:  productName,
	}, nil
}

// buildLineItems derives the remote line items and at most one discount.
// A non-positive line item or discount amount is a data bug in the order,
// rejected before any remote call; so is a second discount, because the
// provider supports a single coupon per session.
func (b *SessionBuilder) buildLineItems(order *Order) ([]CheckoutLineItem, *CouponRequest, string, error) {
	currency := order.Currency

	if !b.cfg.DetailView {
		total := MinorUnits(order.Total)
		if total <= 0 {
			return nil, nil, "", NewGatewayError(ErrInvalidAmount,
				fmt.Sprintf("order total %s is not positive", order.Total), order.ID, nil)
		}

		productName := ProductNameHash(b.cfg.HashSecret, order.ID)
		items := []CheckoutLineItem{{
			Name:       productName,
			UnitAmount: total,
			Currency:   currency,
			Quantity:   1,
		}}
		return items, nil, productName, nil
	}

	var items []CheckoutLineItem
	var discount *CouponRequest

	for _, item := range order.Items {
		amount := MinorUnits(item.UnitPrice)
		if amount <= 0 {
			return nil, nil, "", NewGatewayError(ErrInvalidAmount,
				fmt.Sprintf("item %q unit amount %d is not positive", item.Name, amount), order.ID, nil)
		}

		name := stripMarkup(item.Name)
		if item.SKU != "" {
			name = fmt.Sprintf("%s [%s]", name, item.SKU)
		}

		items = append(items, CheckoutLineItem{
			Name:       name,
			UnitAmount: amount,
			Currency:   currency,
			Quantity:   item.Quantity,
		})
	}

	for _, surcharge := range order.Surcharges {
		if !surcharge.AddToTotal {
			continue
		}

		amount := MinorUnits(surcharge.Total)

		if amount < 0 && surcharge.Type == SurchargeTypeRule {
			if discount != nil {
				return nil, nil, "", NewGatewayError(ErrTooManyDiscounts,
					"only one discount per session is supported", order.ID, nil)
			}
			discount = &CouponRequest{
				Name:      surcharge.Label,
				AmountOff: -amount,
				Currency:  currency,
			}
			continue
		}

		if amount <= 0 {
			return nil, nil, "", NewGatewayError(ErrInvalidAmount,
				fmt.Sprintf("surcharge %q amount %d is not positive", surcharge.Label, amount), order.ID, nil)
		}

		items = append(items, CheckoutLineItem{
			Name:       stripMarkup(surcharge.Label),
			UnitAmount: amount,
			Currency:   currency,
			Quantity:   1,
		})
	}

	return items, discount, "", nil
}

func (b *SessionBuilder) createCoupon(ctx context.Context, order *Order, req CouponRequest) (string, error) {
	if req.AmountOff <= 0 {
		return "", NewGatewayError(ErrInvalidAmount,
			fmt.Sprintf("discount amount %d is not positive", req.AmountOff), order.ID, nil)
	}

	couponID, err := b.client.CreateCoupon(ctx, req)
	if err != nil {
		ge := wrapStripeError("create coupon", order.ID, err)
		LogProviderFailure(b.log, order.ID, "", "create_coupon", ge.Code, err)
		return "", ge
	}

	return couponID, nil
}
