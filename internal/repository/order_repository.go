package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	IsPaid *bool
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// FindByIDForUpdate row-locks the order until the transaction ends.
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	// Create fills order.ID. A duplicate idempotency key or order number
	// returns gorm.ErrDuplicatedKey.
	Create(ctx context.Context, order *model.Order) error
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, deliveredAt *time.Time) error
	SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error

	// MarkPaid flips is_paid only when it is still false and reports whether
	// this call did it.
	MarkPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error)

	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
}
