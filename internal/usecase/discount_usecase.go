package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultDiscountPercentage = 50
	defaultDiscountValidDays  = 30
)

type DiscountUsecase struct {
	tx    repo.TransactionManager
	clock Clock
	log   *zap.Logger
}

func NewDiscountUsecase(tx repo.TransactionManager, clock Clock, log *zap.Logger) *DiscountUsecase {
	return &DiscountUsecase{tx: tx, clock: clock, log: log}
}

type IssueDiscountInput struct {
	UserID     int64
	Percentage int
	ValidDays  int
}

type DiscountOutput struct {
	Code       string    `json:"code"`
	Percentage int       `json:"percentage"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Issue gives a user a new single-use code. A user holds at most one active
// code at a time.
func (u *DiscountUsecase) Issue(ctx context.Context, adminUserID int64, in IssueDiscountInput) (DiscountOutput, error) {
	if adminUserID <= 0 {
		return DiscountOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.UserID <= 0 {
		return DiscountOutput{}, NewHTTPError(http.StatusBadRequest, "invalid user_id")
	}
	if in.Percentage == 0 {
		in.Percentage = defaultDiscountPercentage
	}
	if in.Percentage < 1 || in.Percentage > 100 {
		return DiscountOutput{}, NewHTTPError(http.StatusBadRequest, "percentage must be between 1 and 100")
	}
	if in.ValidDays == 0 {
		in.ValidDays = defaultDiscountValidDays
	}
	if in.ValidDays < 1 || in.ValidDays > 365 {
		return DiscountOutput{}, NewHTTPError(http.StatusBadRequest, "valid_days must be between 1 and 365")
	}

	now := u.clock.Now()
	var out DiscountOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		user, err := r.Users().FindByID(ctx, in.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "user not found")
		}
		if err != nil {
			return dbError(err)
		}
		if err := r.Users().LockByID(ctx, user.ID); err != nil {
			return dbError(err)
		}

		if _, ok, err := r.Discounts().FindActiveByUserID(ctx, user.ID, now); err != nil {
			return dbError(err)
		} else if ok {
			return NewHTTPError(http.StatusConflict, "user already has an active discount code")
		}

		d := model.DiscountCode{
			UserID:     user.ID,
			Code:       newDiscountCode(user.Username),
			Percentage: in.Percentage,
			ExpiresAt:  now.AddDate(0, 0, in.ValidDays),
			CreatedAt:  now,
		}
		if err := r.Discounts().Create(ctx, &d); err != nil {
			return dbError(err)
		}

		after, _ := json.Marshal(map[string]any{
			"user_id":    d.UserID,
			"code":       d.Code,
			"percentage": d.Percentage,
			"expires_at": d.ExpiresAt,
		})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionIssueDiscount,
			ResourceType: model.AuditResourceDiscount,
			ResourceID:   d.ID,
			BeforeJSON:   "{}",
			AfterJSON:    string(after),
			CreatedAt:    now,
		}); err != nil {
			return dbError(err)
		}

		out = DiscountOutput{Code: d.Code, Percentage: d.Percentage, ExpiresAt: d.ExpiresAt}
		return nil
	})
	if err != nil {
		return DiscountOutput{}, err
	}

	u.log.Info("discount issued", zap.Int64("user_id", in.UserID), zap.String("code", out.Code))
	return out, nil
}

// Active returns the caller's unused, unexpired code.
func (u *DiscountUsecase) Active(ctx context.Context, userID int64) (DiscountOutput, error) {
	if userID <= 0 {
		return DiscountOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out DiscountOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		d, ok, err := r.Discounts().FindActiveByUserID(ctx, userID, u.clock.Now())
		if err != nil {
			return dbError(err)
		}
		if !ok {
			return NewHTTPError(http.StatusNotFound, "no active discount")
		}
		out = DiscountOutput{Code: d.Code, Percentage: d.Percentage, ExpiresAt: d.ExpiresAt}
		return nil
	})
	if err != nil {
		return DiscountOutput{}, err
	}
	return out, nil
}

// newDiscountCode builds TRIVIA-<first three letters of the username>-<6 hex>.
func newDiscountCode(username string) string {
	prefix := strings.ToUpper(strings.TrimSpace(username))
	var b strings.Builder
	for _, r := range prefix {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 3 {
			break
		}
	}
	prefix = b.String()
	if prefix == "" {
		prefix = "USR"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("TRIVIA-%s-%s", prefix, suffix)
}
