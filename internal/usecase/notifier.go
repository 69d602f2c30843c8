package usecase

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

var notificationText = map[model.NotificationKind][2]string{
	model.NotificationOrderPlaced:    {"Order Placed", "Your order #%s has been placed successfully."},
	model.NotificationOrderPaid:      {"Payment Received", "We received your payment for order #%s."},
	model.NotificationOrderShipped:   {"Order Shipped", "Your order #%s has been shipped."},
	model.NotificationOrderDelivered: {"Order Delivered", "Your order #%s has been delivered."},
	model.NotificationOrderCancelled: {"Order Cancelled", "Your order #%s has been cancelled."},
}

// orderNotifier writes order notifications inside the caller's transaction
// and publishes them once the transaction has committed.
type orderNotifier struct {
	publisher EventPublisher
	log       *zap.Logger
}

func newOrderNotifier(publisher EventPublisher, log *zap.Logger) *orderNotifier {
	return &orderNotifier{publisher: publisher, log: log}
}

// record returns ok=false when the same notification already exists.
func (n *orderNotifier) record(ctx context.Context, r repo.TxRepos, o model.Order, kind model.NotificationKind, now time.Time) (OrderEvent, bool, error) {
	text := notificationText[kind]
	orderID := o.ID
	created, err := r.Notifications().Create(ctx, &model.Notification{
		UserID:    o.UserID,
		Kind:      kind,
		Title:     text[0],
		Message:   fmt.Sprintf(text[1], o.OrderNumber),
		OrderID:   &orderID,
		DedupeKey: fmt.Sprintf("order:%d:%s", o.ID, kind),
		CreatedAt: now,
	})
	if err != nil || !created {
		return OrderEvent{}, false, err
	}
	return OrderEvent{
		Kind:        kind,
		UserID:      o.UserID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		IsPaid:      o.IsPaid,
		GrandTotal:  o.GrandTotal(),
		OccurredAt:  now,
	}, true, nil
}

// publish never fails the request; the notification row is already stored.
func (n *orderNotifier) publish(ctx context.Context, events []OrderEvent) {
	if n.publisher == nil || len(events) == 0 {
		return
	}
	if err := n.publisher.Publish(ctx, events...); err != nil {
		n.log.Warn("publish order events failed", zap.Int("count", len(events)), zap.Error(err))
	}
}
