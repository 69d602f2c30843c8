package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderUsecase struct {
	tx       repo.TransactionManager
	notifier *orderNotifier
	clock    Clock
}

func NewOrderUsecase(tx repo.TransactionManager, publisher EventPublisher, clock Clock, log *zap.Logger) *OrderUsecase {
	return &OrderUsecase{tx: tx, notifier: newOrderNotifier(publisher, log), clock: clock}
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	LineCost  decimal.Decimal `json:"line_cost"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	OrderNumber     string            `json:"order_number"`
	UserID          int64             `json:"user_id"`
	Status          string            `json:"status"`
	PaymentMethod   string            `json:"payment_method"`
	ShippingAddress string            `json:"shipping_address"`
	BillingAddress  string            `json:"billing_address,omitempty"`
	OrderTotal      decimal.Decimal   `json:"order_total"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	ShippingCost    decimal.Decimal   `json:"shipping_cost"`
	Tax             decimal.Decimal   `json:"tax"`
	GrandTotal      decimal.Decimal   `json:"grand_total"`
	IsPaid          bool              `json:"is_paid"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	CanBeCancelled  bool              `json:"can_be_cancelled"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	out := OrderListOutput{Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return dbError(err)
		}
		out.Total = total
		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOwnedOrder(ctx, r, userID, orderID, false)
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return dbError(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// CancelMyOrder lets a customer cancel while the order is still pending or
// processing.
func (u *OrderUsecase) CancelMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	var events []OrderEvent
	now := u.clock.Now()

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		events = nil
		o, err := findOwnedOrder(ctx, r, userID, orderID, true)
		if err != nil {
			return err
		}
		if !o.CanBeCancelled() {
			return NewHTTPError(http.StatusConflict, "order can no longer be cancelled")
		}
		if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusCancelled, nil); err != nil {
			return dbError(err)
		}
		o.Status = model.OrderStatusCancelled

		ev, ok, err := u.notifier.record(ctx, r, o, model.NotificationOrderCancelled, now)
		if err != nil {
			return dbError(err)
		}
		if ok {
			events = append(events, ev)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	u.notifier.publish(ctx, events)
	return out, nil
}

// findOwnedOrder hides other users' orders behind 404.
func findOwnedOrder(ctx context.Context, r repo.TxRepos, userID, orderID int64, lock bool) (model.Order, error) {
	var o model.Order
	var err error
	if lock {
		o, err = r.Orders().FindByIDForUpdate(ctx, orderID)
	} else {
		o, err = r.Orders().FindByID(ctx, orderID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Order{}, dbError(err)
	}
	if o.UserID != userID {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return o, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineCost:  it.LineCost(),
		})
	}

	return OrderOutput{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		OrderTotal:      o.OrderTotal,
		DiscountAmount:  o.DiscountAmount,
		ShippingCost:    o.ShippingCost,
		Tax:             o.Tax,
		GrandTotal:      o.GrandTotal(),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		DeliveredAt:     o.DeliveredAt,
		CanBeCancelled:  o.CanBeCancelled(),
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
