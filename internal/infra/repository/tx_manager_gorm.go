package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	repo "storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type txReposGorm struct {
	users         repo.UserRepository
	products      repo.ProductRepository
	orders        repo.OrderRepository
	orderItems    repo.OrderItemRepository
	discounts     repo.DiscountCodeRepository
	notifications repo.NotificationRepository
	auditLogs     repo.AuditLogRepository
}

func (r *txReposGorm) Users() repo.UserRepository                 { return r.users }
func (r *txReposGorm) Products() repo.ProductRepository           { return r.products }
func (r *txReposGorm) Orders() repo.OrderRepository               { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository       { return r.orderItems }
func (r *txReposGorm) Discounts() repo.DiscountCodeRepository     { return r.discounts }
func (r *txReposGorm) Notifications() repo.NotificationRepository { return r.notifications }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

type TxManagerGorm struct {
	db         *gorm.DB
	maxRetries int
}

func NewTxManagerGorm(db *gorm.DB, maxRetries int) *TxManagerGorm {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &TxManagerGorm{db: db, maxRetries: maxRetries}
}

// WithinTx runs fn in a transaction and reruns it on serialization failures
// and deadlocks, with jittered backoff.
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	backoff := 50 * time.Millisecond

	for attempt := 0; ; attempt++ {
		err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// repos rebuilt on the tx handle
			return fn(newTxRepos(tx))
		})
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt >= tm.maxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", tm.maxRetries, err)
		}

		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/4)))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

func newTxRepos(tx *gorm.DB) *txReposGorm {
	return &txReposGorm{
		users:         NewUserGormRepository(tx),
		products:      NewProductGormRepository(tx),
		orders:        NewOrderGormRepository(tx),
		orderItems:    NewOrderItemGormRepository(tx),
		discounts:     NewDiscountCodeGormRepository(tx),
		notifications: NewNotificationGormRepository(tx),
		auditLogs:     NewAuditLogGormRepository(tx),
	}
}

// IsRetryable reports serialization failures (40001) and deadlocks (40P01).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
