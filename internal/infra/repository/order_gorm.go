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

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) orders(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Order{})
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	return firstOrder(r.orders(ctx).Where("id = ?", orderID))
}

// FindByIDForUpdate is only meaningful inside WithinTx.
func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return firstOrder(r.orders(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orderID))
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	o, err := firstOrder(r.orders(ctx).Where("user_id = ? AND idempotency_key = ?", userID, key))
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	return listOrders(r.orders(ctx).Where("user_id = ?", userID), page, limit)
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	q := r.orders(ctx)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.IsPaid != nil {
		q = q.Where("is_paid = ?", *f.IsPaid)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return listOrders(q, f.Page, f.Limit)
}

func (r *OrderGormRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *OrderGormRepository) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, deliveredAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	return updateOne(r.orders(ctx).Where("id = ?", orderID).Updates(updates))
}

func (r *OrderGormRepository) SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error {
	return updateOne(r.orders(ctx).Where("id = ?", orderID).Update("payment_session_id", sessionID))
}

// MarkPaid is a compare-and-set on is_paid; concurrent callers see exactly one true.
func (r *OrderGormRepository) MarkPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error) {
	res := r.orders(ctx).
		Where("id = ? AND is_paid = ?", orderID, false).
		Updates(map[string]interface{}{"is_paid": true, "paid_at": paidAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func firstOrder(q *gorm.DB) (model.Order, error) {
	var o model.Order
	err := q.First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// listOrders pages newest first; out-of-range paging falls back to page 1 of 50.
func listOrders(q *gorm.DB, page, limit int) ([]model.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	items := []model.Order{}
	if total == 0 {
		return items, 0, nil
	}
	if err := q.Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func updateOne(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
