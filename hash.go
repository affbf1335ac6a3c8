package stripebridge

import (
	"strconv"
	"time"

	"github.com/speps/go-hashids/v2"
)

const productHashAlphabet = "abcdefghijkmnopqrstuvwxyz"

// ProductNameHash derives a deterministic opaque label from the order id.
// The hosted checkout shows this label instead of the real order number so
// sequential order volume is not leaked through the payment UI.
func ProductNameHash(secret string, orderID int64) string {
	hd := &hashids.HashIDData{
		Alphabet:  productHashAlphabet,
		MinLength: 8,
		Salt:      secret,
	}

	h, err := hashids.NewWithData(hd)
	if err != nil {
		return strconv.FormatInt(time.Now().Unix(), 10)
	}

	encoded, err := h.EncodeInt64([]int64{orderID})
	if err != nil {
		return strconv.FormatInt(time.Now().Unix(), 10)
	}

	return encoded
}
