package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type DiscountCodeRepository interface {
	Create(ctx context.Context, code *model.DiscountCode) error
	// FindByCodeForUpdate locks the row so validation and consumption happen
	// under the same lock.
	FindByCodeForUpdate(ctx context.Context, code string) (model.DiscountCode, error)
	FindActiveByUserID(ctx context.Context, userID int64, now time.Time) (model.DiscountCode, bool, error)
	MarkUsed(ctx context.Context, id int64, orderID int64, usedAt time.Time) (bool, error)
}
