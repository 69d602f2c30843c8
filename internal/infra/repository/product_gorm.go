package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

// SQL form of model.Product.EffectivePrice.
const effectivePriceSQL = "(CASE WHEN discount_price > 0 AND discount_price < price THEN discount_price ELSE price END)"

type ProductGormRepository struct {
	db *gorm.DB
}

func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

func (r *ProductGormRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Product{}).Where("is_active = ?", true)
}

// ListPublic returns one page of active products and the total match count.
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	tx := r.active(ctx)
	if q.Q != "" {
		tx = tx.Where("name ILIKE ?", "%"+q.Q+"%")
	}
	if q.MinPrice != nil {
		tx = tx.Where(effectivePriceSQL+" >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where(effectivePriceSQL+" <= ?", *q.MaxPrice)
	}
	if q.InStockOnly {
		tx = tx.Where("stock > 0")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Product{}, 0, nil
	}

	switch q.Sort {
	case "price_asc":
		tx = tx.Order(effectivePriceSQL + " ASC").Order("id ASC")
	case "price_desc":
		tx = tx.Order(effectivePriceSQL + " DESC").Order("id DESC")
	default:
		tx = tx.Order("created_at DESC").Order("id DESC")
	}

	products := []model.Product{}
	if err := tx.Offset((q.Page - 1) * q.Limit).Limit(q.Limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FindByID includes inactive products; soft-deleted ones are ErrNotFound.
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	return p, err
}

func (r *ProductGormRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	products := []model.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.active(ctx).Where("id IN ?", ids).Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
