package stripebridge

import (
	"encoding/json"
)

// PaymentDataKey is the reserved entry in the order's payment data blob
// that belongs to this gateway.
const PaymentDataKey = "STRIPE_PAYMENT"

// paymentRecordVersion is bumped when the stored shape changes.
const paymentRecordVersion = 1

// PaymentRecord is the gateway's durable state on an order, stored under
// PaymentDataKey. ClientSession exists from session creation until capture
// or invalidation. PaymentIntent is set only after a successful capture and
// is the authoritative signal that the order has a finalized remote charge.
type PaymentRecord struct {
	Version           int    `json:"version,omitempty"`
	ClientSession     string `json:"clientSession,omitempty"`
	ClientReferenceID string `json:"clientReferenceId,omitempty"`
	ProductName       string `json:"productName,omitempty"`
	PaymentIntent     string `json:"paymentIntent,omitempty"`
}

// IsZero reports whether the record carries no state at all.
func (r PaymentRecord) IsZero() bool {
	return r.ClientSession == "" && r.ClientReferenceID == "" &&
		r.ProductName == "" && r.PaymentIntent == ""
}

// Captured reports whether a remote charge has been finalized for this
// record.
func (r PaymentRecord) Captured() bool {
	return r.PaymentIntent != ""
}

// ReadPaymentRecord decodes the gateway's record from the order blob.
// An absent key is an empty record, not an error.
func ReadPaymentRecord(o *Order) PaymentRecord {
	var rec PaymentRecord

	if o == nil || o.PaymentData == nil {
		return rec
	}

	raw, ok := o.PaymentData[PaymentDataKey]
	if !ok {
		return rec
	}

	if err := json.Unmarshal(raw, &rec); err != nil {
		// A blob this gateway cannot decode is treated as state it does
		// not own rather than destroyed.
		return PaymentRecord{}
	}

	return rec
}

// WritePaymentRecord encodes the record back into the order blob. A record
// holding a captured payment intent must never be replaced by an empty one;
// clearing is only legal before capture.
func WritePaymentRecord(o *Order, rec PaymentRecord) error {
	existing := ReadPaymentRecord(o)
	if existing.Captured() && rec.IsZero() {
		return NewGatewayError(ErrRecordImmutable,
			"refusing to clear payment data holding a captured intent", o.ID, nil)
	}

	rec.Version = paymentRecordVersion

	raw, err := json.Marshal(rec)
	if err != nil {
		return NewGatewayError(ErrPersistenceFailed, "encode payment record", o.ID, err)
	}

	if o.PaymentData == nil {
		o.PaymentData = make(map[string]json.RawMessage, 1)
	}
	o.PaymentData[PaymentDataKey] = raw

	return nil
}

// ClearPendingSession drops the pending session reference so a fresh
// checkout attempt can replace it. The captured intent, if any, survives.
func ClearPendingSession(o *Order) error {
	rec := ReadPaymentRecord(o)
	rec.ClientSession = ""
	rec.ClientReferenceID = ""
	rec.ProductName = ""
	if rec.IsZero() {
		delete(o.PaymentData, PaymentDataKey)
		return nil
	}
	return WritePaymentRecord(o, rec)
}
