package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// ProductListQuery bounds and sorts on the effective price (discount price when
// it applies, else the list price).
type ProductListQuery struct {
	Page        int
	Limit       int
	Q           string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Sort        string
	InStockOnly bool
}

// ProductRepository is the read side of the catalog.
type ProductRepository interface {
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	// FindByIDs returns the active, non-deleted products among ids. Missing
	// ids are simply absent from the result.
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
}
