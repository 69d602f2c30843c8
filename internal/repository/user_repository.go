package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type UserRepository interface {
	// FindByID returns ErrNotFound for unknown ids.
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	// LockByID takes a row lock on the user for the rest of the transaction.
	LockByID(ctx context.Context, userID int64) error
}
