package discount

import (
	"crypto/rand"
	"math/big"
)

// FreeShippingSavingCents is the assumed customer saving attached to a
// free-shipping discount.
const FreeShippingSavingCents int64 = 1000

// freeShippingFactor is the cart-to-minimum multiple that unlocks free
// shipping on top of the percentage tier.
const freeShippingFactor = 1.5

// TierPercentage maps the cart-total-to-minimum ratio onto the fixed
// percentage step table. It returns 0 when the cart does not meet the
// minimum (including a non-positive minimum, which disables discounting).
func TierPercentage(totalCents, minimumCents int64) int64 {
	if minimumCents <= 0 || totalCents < minimumCents {
		return 0
	}

	ratio := float64(totalCents) / float64(minimumCents)
	switch {
	case ratio >= 3:
		return 15
	case ratio >= 2:
		return 10
	case ratio >= 1.5:
		return 7
	default:
		return 5
	}
}

// QualifiesFreeShipping reports whether the cart total unlocks the
// free-shipping bonus.
func QualifiesFreeShipping(totalCents, minimumCents int64) bool {
	if minimumCents <= 0 {
		return false
	}
	return float64(totalCents) >= freeShippingFactor*float64(minimumCents)
}

// AppliedAmountCents computes the cents saved by a percentage discount,
// truncating fractional cents.
func AppliedAmountCents(totalCents, percentage int64) int64 {
	return totalCents * percentage / 100
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCode builds a human-legible discount code: the given prefix followed
// by 8 random alphanumerics. Collisions are possible; the store enforces
// uniqueness and callers regenerate on conflict.
func NewCode(prefix string) (string, error) {
	suffix := make([]byte, 8)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(suffix), nil
}
