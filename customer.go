package stripebridge

import (
	"context"
	"regexp"
	"strings"
)

const metadataReferenceKey = "clientReferenceId"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IdentityLinker keeps the remote customer record converged with the
// local buyer identity. All of this is best-effort: a failed sync is
// logged with the order id and never blocks finalization.
type IdentityLinker struct {
	client ProviderClient
	log    *StructuredLogger
}

func NewIdentityLinker(client ProviderClient, log *StructuredLogger) *IdentityLinker {
	return &IdentityLinker{client: client, log: log}
}

// Link resolves the session's customer reference and pushes the local
// reference id, display name, email and address onto it. When the remote
// metadata already carries the matching reference id the write is skipped
// entirely.
func (l *IdentityLinker) Link(ctx context.Context, customerID, referenceID string, order *Order) {
	if referenceID == "" || customerID == "" {
		return
	}

	customer, err := l.client.RetrieveCustomer(ctx, customerID)
	if err != nil {
		l.logFailure(order.ID, customerID, err)
		return
	}

	if customer.Metadata[metadataReferenceKey] == referenceID {
		return
	}

	update := buildCustomerUpdate(referenceID, order.Billing)

	if err := l.client.UpdateCustomer(ctx, customer.ID, update); err != nil {
		l.logFailure(order.ID, customerID, err)
		return
	}

	l.log.Info("Customer identity linked", map[string]interface{}{
		"order_id":     order.ID,
		"operation":    "link_customer",
		"customer":     customer.ID,
		"reference_id": referenceID,
	})
}

func (l *IdentityLinker) logFailure(orderID int64, customerID string, err error) {
	l.log.Error("Customer update failed", map[string]interface{}{
		"order_id":   orderID,
		"operation":  "link_customer",
		"customer":   customerID,
		"error_code": string(ErrIdentityLinkFailed),
		"cause":      err.Error(),
	})
}

// buildCustomerUpdate assembles the update payload from the billing
// address. Email is only set when syntactically valid; the address only
// when street, city, postal code and country are all present.
func buildCustomerUpdate(referenceID string, billing Address) CustomerUpdate {
	update := CustomerUpdate{
		Metadata: map[string]string{
			metadataReferenceKey: referenceID,
			"email":              billing.Email,
		},
		Name: strings.TrimSpace(billing.FirstName + " " + billing.LastName),
	}

	email := strings.TrimSpace(billing.Email)
	if email != "" && emailPattern.MatchString(email) {
		update.Email = email
	}

	if billing.Street != "" && billing.City != "" &&
		billing.PostalCode != "" && billing.Country != "" {

		update.Address = &CustomerAddress{
			Line1:      billing.Street,
			City:       billing.City,
			PostalCode: billing.PostalCode,
			Country:    strings.ToUpper(billing.Country),
		}
		if billing.Subdivision != "" {
			update.Address.State = billing.Subdivision
		}
	}

	return update
}
