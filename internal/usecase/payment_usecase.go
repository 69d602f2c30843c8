package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PaymentUsecase handles the browser returning from the hosted checkout.
type PaymentUsecase struct {
	tx       repo.TransactionManager
	carts    *CartUsecase
	gateway  PaymentGateway
	notifier *orderNotifier
	clock    Clock
	log      *zap.Logger

	inflight singleflight.Group
}

func NewPaymentUsecase(
	tx repo.TransactionManager,
	carts *CartUsecase,
	gateway PaymentGateway,
	publisher EventPublisher,
	clock Clock,
	log *zap.Logger,
) *PaymentUsecase {
	return &PaymentUsecase{
		tx:       tx,
		carts:    carts,
		gateway:  gateway,
		notifier: newOrderNotifier(publisher, log),
		clock:    clock,
		log:      log,
	}
}

type PaymentResult struct {
	Order       OrderOutput `json:"order"`
	AlreadyPaid bool        `json:"already_paid"`
}

type PaymentCancelOutput struct {
	Message string       `json:"message"`
	Order   *OrderOutput `json:"order,omitempty"`
}

// ConfirmSuccess verifies the gateway session and marks its order paid.
// Repeated calls for the same session are safe: only the first one flips the
// order, records the notification and clears the cart.
func (u *PaymentUsecase) ConfirmSuccess(ctx context.Context, owner model.CartOwner, sessionID string) (PaymentResult, error) {
	if !owner.IsAuthenticated() {
		return PaymentResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return PaymentResult{}, NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	// callers joining an in-flight confirmation did not flip the order themselves
	leader := false
	key := strconv.FormatInt(owner.UserID, 10) + ":" + sessionID
	v, err, _ := u.inflight.Do(key, func() (interface{}, error) {
		leader = true
		return u.confirm(context.WithoutCancel(ctx), owner, sessionID)
	})
	if err != nil {
		return PaymentResult{}, err
	}
	res := v.(PaymentResult)
	if !leader {
		res.AlreadyPaid = true
	}
	return res, nil
}

func (u *PaymentUsecase) confirm(ctx context.Context, owner model.CartOwner, sessionID string) (PaymentResult, error) {
	sess, err := u.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		u.log.Warn("retrieve payment session failed", zap.String("session_id", sessionID), zap.Error(err))
		return PaymentResult{}, verificationFailed(sessionID, "session lookup failed", err)
	}
	if sess.PaymentStatus != PaymentStatusPaid {
		u.log.Info("payment session not paid", zap.String("session_id", sessionID), zap.String("status", string(sess.PaymentStatus)))
		return PaymentResult{}, verificationFailed(sessionID, "payment not completed", nil)
	}
	orderID, err := strconv.ParseInt(sess.Metadata["order_id"], 10, 64)
	if err != nil || orderID <= 0 {
		return PaymentResult{}, verificationFailed(sessionID, "session has no order reference", err)
	}

	var res PaymentResult
	var events []OrderEvent
	now := u.clock.Now()

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		events = nil

		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return verificationFailed(sessionID, "order not found", err)
		}
		if err != nil {
			return dbError(err)
		}
		if o.UserID != owner.UserID {
			return verificationFailed(sessionID, "order belongs to another user", nil)
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}

		if o.IsPaid {
			res = PaymentResult{Order: toOrderOutput(o, items), AlreadyPaid: true}
			return nil
		}
		if o.Status == model.OrderStatusCancelled {
			return verificationFailed(sessionID, "order was cancelled", nil)
		}

		marked, err := r.Orders().MarkPaid(ctx, o.ID, now)
		if err != nil {
			return dbError(err)
		}
		if !marked {
			res = PaymentResult{Order: toOrderOutput(o, items), AlreadyPaid: true}
			return nil
		}
		o.IsPaid = true
		o.PaidAt = &now

		if o.DiscountCodeID != nil && o.PaymentMethod.IsOnline() {
			used, err := r.Discounts().MarkUsed(ctx, *o.DiscountCodeID, o.ID, now)
			if err != nil {
				return dbError(err)
			}
			if !used {
				// the payment is captured at the discounted price either way
				u.log.Warn("discount code already consumed by another order",
					zap.Int64("discount_code_id", *o.DiscountCodeID),
					zap.String("order_number", o.OrderNumber),
				)
			}
		}

		ev, ok, err := u.notifier.record(ctx, r, o, model.NotificationOrderPaid, now)
		if err != nil {
			return dbError(err)
		}
		if ok {
			events = append(events, ev)
		}

		res = PaymentResult{Order: toOrderOutput(o, items)}
		return nil
	})
	if err != nil {
		var pve *PaymentVerificationError
		if errors.As(err, &pve) {
			u.log.Warn("payment verification failed",
				zap.String("session_id", sessionID),
				zap.Int64("order_id", orderID),
				zap.String("reason", pve.Reason),
			)
		}
		return PaymentResult{}, err
	}

	if res.AlreadyPaid {
		return res, nil
	}

	u.log.Info("order paid", zap.String("order_number", res.Order.OrderNumber), zap.String("session_id", sessionID))
	u.notifier.publish(ctx, events)
	if err := u.carts.Clear(ctx, owner); err != nil {
		u.log.Error("clear cart after payment failed", zap.Int64("user_id", owner.UserID), zap.Error(err))
	}
	return res, nil
}

// Cancel is the landing point when the customer leaves the hosted checkout.
// It only reads: the order stays pending and the cart is untouched.
func (u *PaymentUsecase) Cancel(ctx context.Context, userID int64, orderID int64) (PaymentCancelOutput, error) {
	out := PaymentCancelOutput{Message: "Payment was cancelled. Your cart has been kept."}
	if userID <= 0 || orderID <= 0 {
		return out, nil
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOwnedOrder(ctx, r, userID, orderID, false)
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		oo := toOrderOutput(o, items)
		out.Order = &oo
		return nil
	})
	if err != nil {
		if he, ok := AsHTTPError(err); ok && he.Status == http.StatusNotFound {
			return out, nil
		}
		return PaymentCancelOutput{}, err
	}
	return out, nil
}
