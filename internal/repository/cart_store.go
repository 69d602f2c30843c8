package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// CartStore persists one cart per owner. Load returns a fresh empty cart when
// nothing is stored.
type CartStore interface {
	Load(ctx context.Context, owner model.CartOwner) (model.Cart, error)
	Save(ctx context.Context, owner model.CartOwner, cart model.Cart) error
	Delete(ctx context.Context, owner model.CartOwner) error
}
