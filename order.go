package stripebridge

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address is the billing address attached to an order.
type Address struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	Email       string `json:"email"`
	Street      string `json:"street_1"`
	City        string `json:"city"`
	PostalCode  string `json:"postal"`
	Country     string `json:"country"`
	Subdivision string `json:"subdivision"`
}

// OrderItem is one purchased line of an order.
type OrderItem struct {
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

// SurchargeTypeRule marks rule-generated surcharges; negative rule
// surcharges are the only ones turned into checkout discounts.
const SurchargeTypeRule = "rule"

// Surcharge is an order-level price modification (shipping, tax, rule).
type Surcharge struct {
	Label      string          `json:"label"`
	Total      decimal.Decimal `json:"total_price"`
	AddToTotal bool            `json:"add_to_total"`
	Type       string          `json:"type"`
}

// Order mirrors the shop backend's order record as far as this gateway
// needs it. The gateway reads line items and the billing address and
// mutates only the payment data blob and the paid/checkout lifecycle
// fields.
type Order struct {
	ID             int64
	DocumentNumber string
	Total          decimal.Decimal
	Currency       string
	Items          []OrderItem
	Surcharges     []Surcharge
	Billing        Address

	// MemberID is zero for guest checkouts.
	MemberID int64

	// PaymentData is the free-form per-gateway blob on the order record.
	// This gateway owns only the PaymentDataKey entry.
	PaymentData map[string]json.RawMessage

	CheckedOut bool
	DatePaid   time.Time
	Status     string
}

// IsGuest reports whether the order has no linked member account.
func (o *Order) IsGuest() bool {
	return o.MemberID == 0
}

// stripMarkup removes HTML tags from an item name before it is sent to
// the provider. Shop item names may carry inline formatting.
func stripMarkup(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
