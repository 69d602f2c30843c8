package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

const maxCatalogPage = 100

type ProductUsecase struct {
	productRepo repo.ProductRepository
}

func NewProductUsecase(productRepo repo.ProductRepository) *ProductUsecase {
	return &ProductUsecase{productRepo: productRepo}
}

// ProductView is a catalog entry with the price a cart would snapshot right now.
type ProductView struct {
	model.Product
	EffectivePrice decimal.Decimal `json:"effective_price"`
	OnSale         bool            `json:"on_sale"`
	InStock        bool            `json:"in_stock"`
}

func NewProductView(p model.Product) ProductView {
	eff := p.EffectivePrice()
	return ProductView{
		Product:        p,
		EffectivePrice: eff,
		OnSale:         eff.LessThan(p.Price),
		InStock:        p.Stock > 0,
	}
}

// ListProductsInput filters and sorts by the effective price.
type ListProductsInput struct {
	Page        int
	Limit       int
	Q           string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Sort        string
	InStockOnly bool
}

type ProductListOutput struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (in ListProductsInput) validate() error {
	switch {
	case in.Page < 1:
		return NewHTTPError(http.StatusBadRequest, "invalid page")
	case in.Limit < 1 || in.Limit > maxCatalogPage:
		return NewHTTPError(http.StatusBadRequest, "invalid limit")
	case len(in.Q) > 100:
		return NewHTTPError(http.StatusBadRequest, "q too long")
	case in.MinPrice != nil && in.MinPrice.IsNegative():
		return NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	case in.MaxPrice != nil && in.MaxPrice.IsNegative():
		return NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	case in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice):
		return NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
		return nil
	default:
		return NewHTTPError(http.StatusBadRequest, "invalid sort")
	}
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if err := in.validate(); err != nil {
		return ProductListOutput{}, err
	}

	products, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:        in.Page,
		Limit:       in.Limit,
		Q:           strings.TrimSpace(in.Q),
		MinPrice:    in.MinPrice,
		MaxPrice:    in.MaxPrice,
		Sort:        in.Sort,
		InStockOnly: in.InStockOnly,
	})
	if err != nil {
		return ProductListOutput{}, dbError(err)
	}

	items := make([]ProductView, 0, len(products))
	for _, p := range products {
		items = append(items, NewProductView(p))
	}
	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// GetProductDetail hides inactive products behind 404, same as deleted ones.
func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (ProductView, error) {
	if productID <= 0 {
		return ProductView{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ProductView{}, NewHTTPError(http.StatusNotFound, "not found")
	case err != nil:
		return ProductView{}, dbError(err)
	case !p.IsActive:
		return ProductView{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return NewProductView(p), nil
}
