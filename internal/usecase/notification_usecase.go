package usecase

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type NotificationUsecase struct {
	tx repo.TransactionManager
}

func NewNotificationUsecase(tx repo.TransactionManager) *NotificationUsecase {
	return &NotificationUsecase{tx: tx}
}

type NotificationListOutput struct {
	Items  []model.Notification `json:"items"`
	Total  int64                `json:"total"`
	Unread int64                `json:"unread"`
	Page   int                  `json:"page"`
	Limit  int                  `json:"limit"`
}

func (u *NotificationUsecase) List(ctx context.Context, userID int64, page, limit int) (NotificationListOutput, error) {
	if userID <= 0 {
		return NotificationListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return NotificationListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return NotificationListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	out := NotificationListOutput{Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, total, err := r.Notifications().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return dbError(err)
		}
		unread, err := r.Notifications().CountUnread(ctx, userID)
		if err != nil {
			return dbError(err)
		}
		if items == nil {
			items = []model.Notification{}
		}
		out.Items, out.Total, out.Unread = items, total, unread
		return nil
	})
	if err != nil {
		return NotificationListOutput{}, err
	}
	return out, nil
}

func (u *NotificationUsecase) MarkRead(ctx context.Context, userID int64, notificationID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if notificationID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		err := r.Notifications().MarkRead(ctx, userID, notificationID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return dbError(err)
		}
		return nil
	})
}
