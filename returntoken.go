package stripebridge

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ReturnContext identifies the order and session a buyer is returning
// for. It is built explicitly by the checkout pipeline and handed to
// ProcessReturn; nothing in this package reads ambient request state.
type ReturnContext struct {
	OrderID   int64
	SessionID string
}

type returnClaims struct {
	OrderID   int64  `json:"order_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// returnTokenTTL bounds how long a return link stays usable. Hosted
// checkout sessions themselves expire after 24 hours.
const returnTokenTTL = 24 * time.Hour

// SignReturnToken encodes the return context into a signed token embedded
// in the provider's return URL, so the context cannot be tampered with in
// transit through the buyer's browser.
func SignReturnToken(secret string, rctx ReturnContext) (string, error) {
	claims := returnClaims{
		OrderID:   rctx.OrderID,
		SessionID: rctx.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(returnTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseReturnToken verifies the token and recovers the return context.
func ParseReturnToken(secret, tokenString string) (ReturnContext, error) {
	var claims returnClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return ReturnContext{}, err
	}
	if !token.Valid || claims.OrderID == 0 || claims.SessionID == "" {
		return ReturnContext{}, errors.New("invalid return token")
	}

	return ReturnContext{OrderID: claims.OrderID, SessionID: claims.SessionID}, nil
}
