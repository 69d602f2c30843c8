package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DiscountCodeGormRepository struct {
	db *gorm.DB
}

func NewDiscountCodeGormRepository(db *gorm.DB) *DiscountCodeGormRepository {
	return &DiscountCodeGormRepository{db: db}
}

func (r *DiscountCodeGormRepository) Create(ctx context.Context, code *model.DiscountCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *DiscountCodeGormRepository) FindByCodeForUpdate(ctx context.Context, code string) (model.DiscountCode, error) {
	var d model.DiscountCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DiscountCode{}, repo.ErrNotFound
	}
	if err != nil {
		return model.DiscountCode{}, err
	}
	return d, nil
}

func (r *DiscountCodeGormRepository) FindActiveByUserID(ctx context.Context, userID int64, now time.Time) (model.DiscountCode, bool, error) {
	var d model.DiscountCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_used = ? AND expires_at > ?", userID, false, now).
		Order("expires_at desc").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DiscountCode{}, false, nil
	}
	if err != nil {
		return model.DiscountCode{}, false, err
	}
	return d, true, nil
}

func (r *DiscountCodeGormRepository) MarkUsed(ctx context.Context, id int64, orderID int64, usedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.DiscountCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]interface{}{"is_used": true, "used_at": usedAt, "order_id": orderID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
