package stripebridge

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Session status values reported by the provider.
const (
	SessionStatusComplete = "complete"
	PaymentStatusPaid     = "paid"
)

// CheckoutLineItem is one line of a hosted checkout session.
type CheckoutLineItem struct {
	Name       string
	UnitAmount int64 // minor units
	Currency   string
	Quantity   int64
}

// CouponRequest describes an amount-off coupon applied to a session.
type CouponRequest struct {
	Name      string
	AmountOff int64 // minor units, positive
	Currency  string
}

// SessionRequest is the normalized create-session payload. Mode, UI mode
// and redirect policy are fixed by this gateway (payment / embedded /
// if_required) and set by the client implementation.
type SessionRequest struct {
	ReturnURL         string
	LineItems         []CheckoutLineItem
	CouponID          string // at most one, provider constraint
	Customer          string // reuse this remote customer when set
	CreateCustomer    bool   // otherwise instruct the provider to create one
	SavePaymentMethod bool
	IdempotencyKey    string
}

// CheckoutSession is the normalized view of a remote session. Expanded
// object references are flattened to ids at this boundary.
type CheckoutSession struct {
	ID            string
	ClientSecret  string
	Status        string
	PaymentStatus string
	PaymentIntent string
	Customer      string
}

// CustomerAddress is the structured address pushed to the remote customer.
type CustomerAddress struct {
	Line1      string
	City       string
	PostalCode string
	Country    string // two-letter upper case
	State      string // optional
}

// RemoteCustomer is the provider-side customer identity record.
type RemoteCustomer struct {
	ID       string
	Name     string
	Email    string
	Metadata map[string]string
}

// CustomerUpdate carries the fields the identity linker keeps in sync.
type CustomerUpdate struct {
	Metadata map[string]string
	Name     string
	Email    string // empty means leave unset
	Address  *CustomerAddress
}

// RemotePaymentIntent is the provider's record of an attempted charge.
type RemotePaymentIntent struct {
	ID            string
	Status        string
	Description   string
	PaymentMethod string
}

// IntentUpdate annotates a finalized intent with local order references.
type IntentUpdate struct {
	Description string
	Metadata    map[string]string
}

// ProviderClient is the remote payment provider contract. The concrete
// implementation talks to Stripe; tests substitute a recording fake.
type ProviderClient interface {
	CreateSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCoupon(ctx context.Context, req CouponRequest) (string, error)
	SearchCustomerByReference(ctx context.Context, referenceID string) (*RemoteCustomer, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*RemoteCustomer, error)
	UpdateCustomer(ctx context.Context, customerID string, update CustomerUpdate) error
	RetrievePaymentIntent(ctx context.Context, intentID string) (*RemotePaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, intentID string, update IntentUpdate) error
	RetrievePaymentMethodType(ctx context.Context, paymentMethodID string) (string, error)
}

// StripeClient implements ProviderClient over the Stripe SDK with an
// instance-scoped API client, so two gateway configurations with different
// keys can coexist in one process.
type StripeClient struct {
	api *client.API
}

// NewStripeClient creates a provider client bound to the given secret key.
func NewStripeClient(privateKey string) *StripeClient {
	api := &client.API{}
	api.Init(privateKey, nil)
	return &StripeClient{api: api}
}

func (c *StripeClient) CreateSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:                 stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:               stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		RedirectOnCompletion: stripe.String(string(stripe.CheckoutSessionRedirectOnCompletionIfRequired)),
		ReturnURL:            stripe.String(req.ReturnURL),
	}
	params.Context = ctx

	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	if req.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(req.CouponID)},
		}
	}

	if req.Customer != "" {
		params.Customer = stripe.String(req.Customer)
	} else if req.CreateCustomer {
		params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
	}

	if req.SavePaymentMethod {
		params.SavedPaymentMethodOptions = &stripe.CheckoutSessionSavedPaymentMethodOptionsParams{
			PaymentMethodSave: stripe.String("enabled"),
		}
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}

	return normalizeSession(sess), nil
}

func (c *StripeClient) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}

	return normalizeSession(sess), nil
}

func (c *StripeClient) CreateCoupon(ctx context.Context, req CouponRequest) (string, error) {
	params := &stripe.CouponParams{
		AmountOff: stripe.Int64(req.AmountOff),
		Currency:  stripe.String(req.Currency),
		Duration:  stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.Context = ctx
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}

	coupon, err := c.api.Coupons.New(params)
	if err != nil {
		return "", err
	}

	return coupon.ID, nil
}

func (c *StripeClient) SearchCustomerByReference(ctx context.Context, referenceID string) (*RemoteCustomer, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['clientReferenceId']:'%s'", referenceID),
		},
	}
	params.Context = ctx

	iter := c.api.Customers.Search(params)
	for iter.Next() {
		return normalizeCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return nil, nil
}

func (c *StripeClient) RetrieveCustomer(ctx context.Context, customerID string) (*RemoteCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, err
	}

	return normalizeCustomer(cust), nil
}

func (c *StripeClient) UpdateCustomer(ctx context.Context, customerID string, update CustomerUpdate) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	for k, v := range update.Metadata {
		params.AddMetadata(k, v)
	}
	if update.Name != "" {
		params.Name = stripe.String(update.Name)
	}
	if update.Email != "" {
		params.Email = stripe.String(update.Email)
	}
	if update.Address != nil {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(update.Address.Line1),
			City:       stripe.String(update.Address.City),
			PostalCode: stripe.String(update.Address.PostalCode),
			Country:    stripe.String(update.Address.Country),
		}
		if update.Address.State != "" {
			params.Address.State = stripe.String(update.Address.State)
		}
	}

	_, err := c.api.Customers.Update(customerID, params)
	return err
}

func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, intentID string) (*RemotePaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := c.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, err
	}

	out := &RemotePaymentIntent{
		ID:          intent.ID,
		Status:      string(intent.Status),
		Description: intent.Description,
	}
	if intent.PaymentMethod != nil {
		out.PaymentMethod = intent.PaymentMethod.ID
	}

	return out, nil
}

func (c *StripeClient) UpdatePaymentIntent(ctx context.Context, intentID string, update IntentUpdate) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	if update.Description != "" {
		params.Description = stripe.String(update.Description)
	}
	for k, v := range update.Metadata {
		params.AddMetadata(k, v)
	}

	_, err := c.api.PaymentIntents.Update(intentID, params)
	return err
}

func (c *StripeClient) RetrievePaymentMethodType(ctx context.Context, paymentMethodID string) (string, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := c.api.PaymentMethods.Get(paymentMethodID, params)
	if err != nil {
		return "", err
	}

	return string(pm.Type), nil
}

// normalizeSession flattens expanded payment_intent and customer
// references to plain ids.
func normalizeSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		ClientSecret:  sess.ClientSecret,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntent = sess.PaymentIntent.ID
	}
	if sess.Customer != nil {
		out.Customer = sess.Customer.ID
	}
	return out
}

func normalizeCustomer(cust *stripe.Customer) *RemoteCustomer {
	return &RemoteCustomer{
		ID:       cust.ID,
		Name:     cust.Name,
		Email:    cust.Email,
		Metadata: cust.Metadata,
	}
}
