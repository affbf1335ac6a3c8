package stripebridge

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the per-gateway-instance configuration. One Config maps to
// one configured payment method in the shop backend.
type Config struct {
	// Stripe credentials
	PrivateKey string
	PublicKey  string

	// DetailView toggles per-item line items versus a single opaque
	// grand-total line item in the hosted checkout.
	DetailView bool

	// Additional session statuses accepted on capture besides "complete",
	// and additional payment statuses besides "paid".
	WhitelistStatus        []string
	WhitelistPaymentStatus []string

	// Order status code applied when an order is finalized as paid.
	PaidOrderStatus string

	// HashSecret salts the opaque product-name hash of the order id.
	HashSecret string

	// TokenSecret signs the return-context token embedded in the
	// provider redirect URL.
	TokenSecret string

	// Payment-method persistence policy. Members get saved payment
	// methods by default; address-scoped (guest) references do not.
	SaveForMembers bool
	SaveForGuests  bool
}

// LoadConfig reads the gateway configuration from the environment,
// loading a .env file first when one is present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine, the environment may be populated directly.
	_ = godotenv.Load()

	cfg := &Config{
		PrivateKey:             os.Getenv("STRIPE_PRIVATE_KEY"),
		PublicKey:              os.Getenv("STRIPE_PUBLIC_KEY"),
		DetailView:             envBool("STRIPE_DETAIL_VIEW", false),
		WhitelistStatus:        envList("STRIPE_WHITELIST_STATUS"),
		WhitelistPaymentStatus: envList("STRIPE_WHITELIST_PAYMENT_STATUS"),
		PaidOrderStatus:        envDefault("ORDER_STATUS_PAID", "paid"),
		HashSecret:             os.Getenv("STRIPE_HASH_SECRET"),
		TokenSecret:            os.Getenv("STRIPE_TOKEN_SECRET"),
		SaveForMembers:         envBool("STRIPE_SAVE_FOR_MEMBERS", true),
		SaveForGuests:          envBool("STRIPE_SAVE_FOR_GUESTS", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the credentials before any remote call is attempted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return NewGatewayError(ErrMissingCredentials, "stripe private key is not configured", 0, nil)
	}
	if strings.TrimSpace(c.PublicKey) == "" {
		return NewGatewayError(ErrMissingCredentials, "stripe public key is not configured", 0, nil)
	}
	if strings.TrimSpace(c.PaidOrderStatus) == "" {
		return NewGatewayError(ErrInvalidConfig, "paid order status is not configured", 0, nil)
	}
	return nil
}

// ValidStatuses returns the accepted session statuses: the base set plus
// whatever the operator whitelisted. "complete" is always included.
func (c *Config) ValidStatuses() []string {
	return appendUnique([]string{SessionStatusComplete}, c.WhitelistStatus)
}

// ValidPaymentStatuses returns the accepted payment statuses. "paid" is
// always included.
func (c *Config) ValidPaymentStatuses() []string {
	return appendUnique([]string{PaymentStatusPaid}, c.WhitelistPaymentStatus)
}

func appendUnique(base []string, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range extra {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
