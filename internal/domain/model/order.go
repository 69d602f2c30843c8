package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// allowed forward moves; DELIVERED and CANCELLED are terminal
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "COD"
	PaymentCreditCard     PaymentMethod = "CC"
	PaymentPayPal         PaymentMethod = "PP"
	PaymentStripe         PaymentMethod = "STRIPE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentCreditCard, PaymentPayPal, PaymentStripe:
		return true
	}
	return false
}

// IsOnline reports whether payment goes through the hosted checkout.
func (m PaymentMethod) IsOnline() bool {
	return m == PaymentStripe
}

type Order struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber      string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"order_number"`
	UserID           int64           `gorm:"not null;index;uniqueIndex:idx_orders_user_idempotency" json:"user_id"`
	Status           OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod    PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	ShippingAddress  string          `gorm:"type:text;not null" json:"shipping_address"`
	BillingAddress   string          `gorm:"type:text" json:"billing_address"`
	OrderTotal       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"order_total"`
	DiscountAmount   decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"discount_amount"`
	DiscountCodeID   *int64          `gorm:"index" json:"discount_code_id,omitempty"`
	Tax              decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"tax"`
	ShippingCost     decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"shipping_cost"`
	IsPaid           bool            `gorm:"not null;default:false" json:"is_paid"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	PaymentSessionID string          `gorm:"type:varchar(255);index" json:"-"`
	IdempotencyKey   string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_user_idempotency" json:"-"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// GrandTotal is what the customer pays: order total plus shipping and tax.
func (o Order) GrandTotal() decimal.Decimal {
	return o.OrderTotal.Add(o.ShippingCost).Add(o.Tax)
}

func (o Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// NewOrderNumber returns ten upper-case hex characters.
func NewOrderNumber() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
