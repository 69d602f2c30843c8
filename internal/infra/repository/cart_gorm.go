package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartGormStore keeps the carts of signed-in users in Postgres.
type CartGormStore struct {
	db *gorm.DB
}

func NewCartGormStore(db *gorm.DB) *CartGormStore {
	return &CartGormStore{db: db}
}

func (s *CartGormStore) Load(ctx context.Context, owner model.CartOwner) (model.Cart, error) {
	if !owner.IsAuthenticated() {
		return model.Cart{}, fmt.Errorf("cart store: user id required")
	}

	var sc model.StoredCart
	err := s.db.WithContext(ctx).Where("user_id = ?", owner.UserID).First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NewCart(), nil
	}
	if err != nil {
		return model.Cart{}, err
	}

	var items []model.StoredCartItem
	if err := s.db.WithContext(ctx).Where("cart_id = ?", sc.ID).Order("id asc").Find(&items).Error; err != nil {
		return model.Cart{}, err
	}

	cart := model.Cart{
		Revision:  sc.Revision,
		Entries:   make(map[int64]model.CartEntry, len(items)),
		UpdatedAt: sc.UpdatedAt,
	}
	for _, it := range items {
		cart.Entries[it.ProductID] = model.CartEntry{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPriceSnapshot,
		}
	}
	return cart, nil
}

// Save replaces the stored entries with the cart's entries.
func (s *CartGormStore) Save(ctx context.Context, owner model.CartOwner, cart model.Cart) error {
	if !owner.IsAuthenticated() {
		return fmt.Errorf("cart store: user id required")
	}
	for id, e := range cart.Entries {
		if e.Quantity <= 0 {
			return fmt.Errorf("product %d: %w", id, model.ErrInvalidQuantity)
		}
		if e.UnitPrice.IsNegative() {
			return fmt.Errorf("product %d: %w", id, model.ErrInvalidPrice)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := model.StoredCart{UserID: owner.UserID, Revision: cart.Revision, UpdatedAt: time.Now()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"revision", "updated_at"}),
		}).Create(&sc).Error; err != nil {
			return err
		}
		// the upsert does not return the id on conflict
		if err := tx.Where("user_id = ?", owner.UserID).First(&sc).Error; err != nil {
			return err
		}

		if err := tx.Where("cart_id = ?", sc.ID).Delete(&model.StoredCartItem{}).Error; err != nil {
			return err
		}
		if len(cart.Entries) == 0 {
			return nil
		}

		items := make([]model.StoredCartItem, 0, len(cart.Entries))
		for _, e := range cart.SortedEntries() {
			items = append(items, model.StoredCartItem{
				CartID:            sc.ID,
				ProductID:         e.ProductID,
				Quantity:          e.Quantity,
				UnitPriceSnapshot: e.UnitPrice,
			})
		}
		return tx.Create(&items).Error
	})
}

func (s *CartGormStore) Delete(ctx context.Context, owner model.CartOwner) error {
	if !owner.IsAuthenticated() {
		return fmt.Errorf("cart store: user id required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sc model.StoredCart
		err := tx.Where("user_id = ?", owner.UserID).First(&sc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", sc.ID).Delete(&model.StoredCartItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.StoredCart{}, sc.ID).Error
	})
}
