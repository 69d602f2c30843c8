package usecase

import (
	"context"
	"errors"
	"iter"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartUsecase works on the cart of the current request's owner. Anonymous
// carts and user carts live in different stores.
type CartUsecase struct {
	sessionCarts repo.CartStore
	userCarts    repo.CartStore
	products     repo.ProductRepository
	log          *zap.Logger
}

func NewCartUsecase(sessionCarts, userCarts repo.CartStore, products repo.ProductRepository, log *zap.Logger) *CartUsecase {
	return &CartUsecase{
		sessionCarts: sessionCarts,
		userCarts:    userCarts,
		products:     products,
		log:          log,
	}
}

// CartLine is one iterated entry, resolved against the catalog.
type CartLine struct {
	Product   model.Product
	UnitPrice decimal.Decimal
	Quantity  int64
	LineTotal decimal.Decimal
}

type CartItemResponse struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartResponse reports two totals: TotalPrice from stored snapshots and
// LinesTotal from the lines still resolvable in the catalog.
type CartResponse struct {
	Items      []CartItemResponse `json:"items"`
	TotalItems int64              `json:"total_items"`
	TotalPrice decimal.Decimal    `json:"total_price"`
	LinesTotal decimal.Decimal    `json:"lines_total"`
}

type AddCartInput struct {
	ProductID      int64
	Quantity       int64
	UpdateQuantity bool
}

func (u *CartUsecase) storeFor(owner model.CartOwner) (repo.CartStore, error) {
	if owner.IsAuthenticated() {
		return u.userCarts, nil
	}
	if owner.SessionKey != "" {
		return u.sessionCarts, nil
	}
	return nil, NewHTTPError(http.StatusUnauthorized, "no cart session")
}

// Load returns the owner's cart. A signed-in user who still has an anonymous
// session cart gets it merged in, and the session copy is dropped.
func (u *CartUsecase) Load(ctx context.Context, owner model.CartOwner) (model.Cart, error) {
	store, err := u.storeFor(owner)
	if err != nil {
		return model.Cart{}, err
	}
	cart, err := store.Load(ctx, owner)
	if err != nil {
		return model.Cart{}, WrapHTTPError(http.StatusInternalServerError, "cart store error", err)
	}
	if !owner.IsAuthenticated() || owner.SessionKey == "" {
		return cart, nil
	}

	anon := model.CartOwner{SessionKey: owner.SessionKey}
	sessCart, err := u.sessionCarts.Load(ctx, anon)
	if err != nil {
		u.log.Warn("load session cart for merge failed", zap.Int64("user_id", owner.UserID), zap.Error(err))
		return cart, nil
	}
	if sessCart.IsEmpty() {
		return cart, nil
	}

	cart.Merge(sessCart)
	if err := u.userCarts.Save(ctx, owner, cart); err != nil {
		return model.Cart{}, WrapHTTPError(http.StatusInternalServerError, "cart store error", err)
	}
	if err := u.sessionCarts.Delete(ctx, anon); err != nil {
		u.log.Warn("drop merged session cart failed", zap.Int64("user_id", owner.UserID), zap.Error(err))
	}
	u.log.Info("merged session cart into user cart",
		zap.Int64("user_id", owner.UserID),
		zap.Int("entries", len(sessCart.Entries)),
	)
	return cart, nil
}

func (u *CartUsecase) save(ctx context.Context, owner model.CartOwner, cart model.Cart) error {
	store, err := u.storeFor(owner)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, owner, cart); err != nil {
		return WrapHTTPError(http.StatusInternalServerError, "cart store error", err)
	}
	return nil
}

// Clear empties the owner's cart. Calling it on an empty cart is fine.
func (u *CartUsecase) Clear(ctx context.Context, owner model.CartOwner) error {
	store, err := u.storeFor(owner)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, owner); err != nil {
		return WrapHTTPError(http.StatusInternalServerError, "cart store error", err)
	}
	return nil
}

// Lines yields cart entries joined with current catalog data. Entries whose
// product is gone or inactive are logged and skipped; Lines never fails.
func (u *CartUsecase) Lines(ctx context.Context, cart model.Cart) iter.Seq[CartLine] {
	return func(yield func(CartLine) bool) {
		entries := cart.SortedEntries()
		if len(entries) == 0 {
			return
		}

		ids := make([]int64, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ProductID)
		}
		products, err := u.products.FindByIDs(ctx, ids)
		if err != nil {
			u.log.Error("resolve cart products failed", zap.Int64s("product_ids", ids), zap.Error(err))
			return
		}
		byID := make(map[int64]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		for _, e := range entries {
			p, ok := byID[e.ProductID]
			if !ok {
				u.log.Warn("cart entry product not in catalog",
					zap.Int64("product_id", e.ProductID),
					zap.Int64("quantity", e.Quantity),
				)
				continue
			}
			line := CartLine{
				Product:   p,
				UnitPrice: e.UnitPrice,
				Quantity:  e.Quantity,
				LineTotal: e.LineTotal(),
			}
			if !yield(line) {
				return
			}
		}
	}
}

func (u *CartUsecase) GetCart(ctx context.Context, owner model.CartOwner) (CartResponse, error) {
	cart, err := u.Load(ctx, owner)
	if err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(ctx, cart), nil
}

// AddItem adds to the quantity, or sets it when UpdateQuantity is true.
// Setting zero removes the entry.
func (u *CartUsecase) AddItem(ctx context.Context, owner model.CartOwner, in AddCartInput) (CartResponse, error) {
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 0 || (!in.UpdateQuantity && in.Quantity == 0) {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	cart, err := u.Load(ctx, owner)
	if err != nil {
		return CartResponse{}, err
	}

	p, err := u.products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return CartResponse{}, dbError(err)
	}
	if !p.IsActive {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "product not found")
	}

	newQty := in.Quantity
	if !in.UpdateQuantity {
		newQty += cart.Entries[p.ID].Quantity
	}
	if newQty > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}

	if err := cart.Add(p, in.Quantity, in.UpdateQuantity); err != nil {
		return CartResponse{}, WrapHTTPError(http.StatusBadRequest, "invalid quantity", err)
	}
	if err := u.save(ctx, owner, cart); err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(ctx, cart), nil
}

func (u *CartUsecase) RemoveItem(ctx context.Context, owner model.CartOwner, productID int64) (CartResponse, error) {
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	cart, err := u.Load(ctx, owner)
	if err != nil {
		return CartResponse{}, err
	}
	if _, ok := cart.Entries[productID]; !ok {
		return u.buildCartResponse(ctx, cart), nil
	}

	cart.Remove(productID)
	if err := u.save(ctx, owner, cart); err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(ctx, cart), nil
}

func (u *CartUsecase) ClearCart(ctx context.Context, owner model.CartOwner) (CartResponse, error) {
	if err := u.Clear(ctx, owner); err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(ctx, model.NewCart()), nil
}

func (u *CartUsecase) buildCartResponse(ctx context.Context, cart model.Cart) CartResponse {
	resp := CartResponse{
		Items:      []CartItemResponse{},
		TotalItems: cart.TotalItemCount(),
		TotalPrice: cart.TotalPrice(),
		LinesTotal: decimal.Zero,
	}
	for line := range u.Lines(ctx, cart) {
		resp.Items = append(resp.Items, CartItemResponse{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		})
		resp.LinesTotal = resp.LinesTotal.Add(line.LineTotal)
	}
	return resp
}
