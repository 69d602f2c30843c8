package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

type LineItem struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int64
}

type CheckoutSessionInput struct {
	LineItems         []LineItem
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type GatewaySession struct {
	ID            string
	PaymentStatus PaymentStatus
	Metadata      map[string]string
}

// PaymentGateway is a hosted checkout provider.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (GatewaySession, error)
}

// OrderEvent is what leaves the service when an order notification is
// recorded.
type OrderEvent struct {
	Kind        model.NotificationKind `json:"kind"`
	UserID      int64                  `json:"user_id"`
	OrderID     int64                  `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	Status      model.OrderStatus      `json:"status"`
	IsPaid      bool                   `json:"is_paid"`
	GrandTotal  decimal.Decimal        `json:"grand_total"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...OrderEvent) error
}
