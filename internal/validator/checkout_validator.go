package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"storefront/internal/domain/model"
)

var (
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrShippingRequired     = errors.New("shipping_address is required")
	ErrAddressTooLong       = errors.New("address too long")
	ErrInvalidIdempotency   = errors.New("invalid idempotency key")
)

const (
	MaxAddressLen        = 1000
	MaxIdempotencyKeyLen = 255
)

// printable ASCII without spaces
var idempotencyKeyRe = regexp.MustCompile(`^[\x21-\x7E]+$`)

type CheckoutInput struct {
	PaymentMethod   model.PaymentMethod
	ShippingAddress string
	BillingAddress  string
	CouponCode      string
	IdempotencyKey  string
}

// NormalizeCheckout trims the fields and checks them. The coupon code is only
// trimmed: a bad code is ignored at checkout, never rejected here.
func NormalizeCheckout(in CheckoutInput) (CheckoutInput, error) {
	out := CheckoutInput{
		PaymentMethod:   model.PaymentMethod(strings.ToUpper(strings.TrimSpace(string(in.PaymentMethod)))),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		BillingAddress:  strings.TrimSpace(in.BillingAddress),
		CouponCode:      strings.TrimSpace(in.CouponCode),
		IdempotencyKey:  strings.TrimSpace(in.IdempotencyKey),
	}

	if !out.PaymentMethod.Valid() {
		return CheckoutInput{}, ErrInvalidPaymentMethod
	}
	if out.ShippingAddress == "" {
		return CheckoutInput{}, ErrShippingRequired
	}
	if utf8.RuneCountInString(out.ShippingAddress) > MaxAddressLen ||
		utf8.RuneCountInString(out.BillingAddress) > MaxAddressLen {
		return CheckoutInput{}, ErrAddressTooLong
	}
	if out.IdempotencyKey != "" &&
		(len(out.IdempotencyKey) > MaxIdempotencyKeyLen || !idempotencyKeyRe.MatchString(out.IdempotencyKey)) {
		return CheckoutInput{}, ErrInvalidIdempotency
	}
	return out, nil
}
