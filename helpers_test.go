package stripebridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/shopspring/decimal"
)

func testLogger() *StructuredLogger {
	logger := NewStructuredLogger(LogLevelError, true)
	logger.output = io.Discard
	return logger
}

func testConfig() *Config {
	return &Config{
		PrivateKey:      "sk_test_abc",
		PublicKey:       "pk_test_abc",
		PaidOrderStatus: "paid",
		HashSecret:      "test-hash-secret",
		TokenSecret:     "test-token-secret",
		SaveForMembers:  true,
	}
}

func testOrder() *Order {
	return &Order{
		ID:             4711,
		DocumentNumber: "INV-2026-0042",
		Total:          decimal.RequireFromString("49.99"),
		Currency:       "EUR",
		Items: []OrderItem{
			{Name: "Espresso Beans", SKU: "EB-250", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 2},
			{Name: "Filter Paper", UnitPrice: decimal.RequireFromString("10.01"), Quantity: 1},
		},
		Billing: Address{
			ID:         99,
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Email:      "ada@example.org",
			Street:     "Analytical Lane 1",
			City:       "London",
			PostalCode: "EC1",
			Country:    "gb",
		},
	}
}

// fakeProvider is a recording ProviderClient for tests.
type fakeProvider struct {
	created      *CheckoutSession
	createErr    error
	createErrs   []error // consumed one per CreateSession call before createErr
	session      *CheckoutSession
	retrieveErr  error
	couponID     string
	couponErr    error
	searchResult *RemoteCustomer
	searchErr    error
	customers    map[string]*RemoteCustomer
	customerErr  error
	updateErr    error
	intents      map[string]*RemotePaymentIntent
	intentErr    error
	methodTypes  map[string]string

	createCalls         int
	retrieveCalls       int
	couponCalls         int
	searchCalls         int
	retrieveCustCalls   int
	updateCustomerCalls int
	updateIntentCalls   int

	lastSessionReq     SessionRequest
	lastCoupon         CouponRequest
	lastCustomerUpdate CustomerUpdate
	lastIntentUpdate   IntentUpdate
}

func (f *fakeProvider) CreateSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error) {
	f.createCalls++
	f.lastSessionReq = req
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if f.createErr != nil {
		return nil, f.createErr
	}
	if f.created != nil {
		return f.created, nil
	}
	return &CheckoutSession{ID: "cs_test_1", ClientSecret: "cs_test_1_secret"}, nil
}

func (f *fakeProvider) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	f.retrieveCalls++
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	if f.session == nil {
		return nil, errors.New("no such session")
	}
	return f.session, nil
}

func (f *fakeProvider) CreateCoupon(ctx context.Context, req CouponRequest) (string, error) {
	f.couponCalls++
	f.lastCoupon = req
	if f.couponErr != nil {
		return "", f.couponErr
	}
	if f.couponID == "" {
		return "coupon_1", nil
	}
	return f.couponID, nil
}

func (f *fakeProvider) SearchCustomerByReference(ctx context.Context, referenceID string) (*RemoteCustomer, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeProvider) RetrieveCustomer(ctx context.Context, customerID string) (*RemoteCustomer, error) {
	f.retrieveCustCalls++
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	if c, ok := f.customers[customerID]; ok {
		return c, nil
	}
	return nil, errors.New("no such customer")
}

func (f *fakeProvider) UpdateCustomer(ctx context.Context, customerID string, update CustomerUpdate) error {
	f.updateCustomerCalls++
	f.lastCustomerUpdate = update
	return f.updateErr
}

func (f *fakeProvider) RetrievePaymentIntent(ctx context.Context, intentID string) (*RemotePaymentIntent, error) {
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	if in, ok := f.intents[intentID]; ok {
		return in, nil
	}
	return nil, errors.New("no such intent")
}

func (f *fakeProvider) UpdatePaymentIntent(ctx context.Context, intentID string, update IntentUpdate) error {
	f.updateIntentCalls++
	f.lastIntentUpdate = update
	return f.intentErr
}

func (f *fakeProvider) RetrievePaymentMethodType(ctx context.Context, paymentMethodID string) (string, error) {
	if t, ok := f.methodTypes[paymentMethodID]; ok {
		return t, nil
	}
	return "", errors.New("no such payment method")
}

// memStore is an in-memory OrderStore.
type memStore struct {
	orders   map[int64]*Order
	claimed  map[int64]string
	saveErr  error
	claimErr error
}

func newMemStore(orders ...*Order) *memStore {
	s := &memStore{
		orders:  make(map[int64]*Order),
		claimed: make(map[int64]string),
	}
	for _, o := range orders {
		s.orders[o.ID] = copyOrder(o)
		if intent := ReadPaymentRecord(o).PaymentIntent; intent != "" {
			s.claimed[o.ID] = intent
		}
	}
	return s
}

func (s *memStore) Load(ctx context.Context, orderID int64) (*Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, NewGatewayError(ErrPersistenceFailed, "no such order", orderID, nil)
	}
	return copyOrder(o), nil
}

func (s *memStore) Save(ctx context.Context, order *Order) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *memStore) ClaimPaymentIntent(ctx context.Context, order *Order, rec PaymentRecord) (bool, error) {
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if s.claimed[order.ID] != "" {
		return false, nil
	}
	s.claimed[order.ID] = rec.PaymentIntent

	stored, ok := s.orders[order.ID]
	if !ok {
		stored = copyOrder(order)
		s.orders[order.ID] = stored
	}
	if err := WritePaymentRecord(stored, rec); err != nil {
		return false, err
	}
	return true, nil
}

func copyOrder(o *Order) *Order {
	dup := *o
	dup.Items = append([]OrderItem(nil), o.Items...)
	dup.Surcharges = append([]Surcharge(nil), o.Surcharges...)
	if o.PaymentData != nil {
		dup.PaymentData = make(map[string]json.RawMessage, len(o.PaymentData))
		for k, v := range o.PaymentData {
			dup.PaymentData[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &dup
}
