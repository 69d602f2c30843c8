package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError carries the status and the message shown to the client. Err keeps
// the underlying cause for logs and errors.Is/As.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func NewHTTPError(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

func WrapHTTPError(status int, message string, cause error) error {
	return &HTTPError{Status: status, Message: message, Err: cause}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func dbError(err error) error {
	return WrapHTTPError(http.StatusInternalServerError, "db error", err)
}

var ErrEmptyCart = errors.New("cart is empty")

// InvalidDiscountError explains why a coupon was ignored. Checkout logs it and
// carries on without a discount.
type InvalidDiscountError struct {
	Code   string
	Reason string
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount %q not applied: %s", e.Code, e.Reason)
}

// PaymentVerificationError means a success callback could not be trusted.
// The order stays unpaid.
type PaymentVerificationError struct {
	SessionID string
	Reason    string
	Err       error
}

func (e *PaymentVerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment session %q: %s: %v", e.SessionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("payment session %q: %s", e.SessionID, e.Reason)
}

func (e *PaymentVerificationError) Unwrap() error { return e.Err }

const paymentVerificationMessage = "We could not verify your payment. Your order has not been marked as paid."

func verificationFailed(sessionID, reason string, cause error) error {
	return WrapHTTPError(http.StatusPaymentRequired, paymentVerificationMessage, &PaymentVerificationError{
		SessionID: sessionID,
		Reason:    reason,
		Err:       cause,
	})
}
