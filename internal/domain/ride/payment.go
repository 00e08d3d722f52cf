package ride

import (
	"errors"
	"strings"
)

// PaymentMethod is how the passenger intends to pay.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card"
)

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// ParsePaymentMethod normalizes (lowercases+trims) and validates a payment method string.
// An empty string defaults to cash.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	pm := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if pm == "" {
		return PaymentCash, nil
	}
	if pm.Valid() {
		return pm, nil
	}
	return "", ErrInvalidPaymentMethod
}

// Valid reports whether pm is one of the allowed payment method constants.
func (pm PaymentMethod) Valid() bool {
	switch pm {
	case PaymentCash, PaymentWallet, PaymentCard:
		return true
	default:
		return false
	}
}

// String returns the string representation of the PaymentMethod.
func (pm PaymentMethod) String() string {
	return string(pm)
}
