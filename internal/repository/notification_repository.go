package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type NotificationRepository interface {
	// Create inserts unless a row with the same dedupe key exists; the bool
	// reports whether a row was written.
	Create(ctx context.Context, n *model.Notification) (bool, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Notification, int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID int64, notificationID int64) error
}
