package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/validator"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CheckoutConfig struct {
	ShippingCost decimal.Decimal
	TaxRate      decimal.Decimal
	DiscountMode model.DiscountMode
	SuccessURL   string
	CancelURL    string
}

// CheckoutUsecase turns the owner's cart into an order.
type CheckoutUsecase struct {
	tx       repo.TransactionManager
	carts    *CartUsecase
	gateway  PaymentGateway
	notifier *orderNotifier
	clock    Clock
	cfg      CheckoutConfig
	log      *zap.Logger
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	carts *CartUsecase,
	gateway PaymentGateway,
	publisher EventPublisher,
	clock Clock,
	cfg CheckoutConfig,
	log *zap.Logger,
) *CheckoutUsecase {
	if !cfg.DiscountMode.Valid() {
		cfg.DiscountMode = model.DiscountModeFlat
	}
	return &CheckoutUsecase{
		tx:       tx,
		carts:    carts,
		gateway:  gateway,
		notifier: newOrderNotifier(publisher, log),
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

type CheckoutInput struct {
	PaymentMethod   string
	ShippingAddress string
	BillingAddress  string
	CouponCode      string
	// optional; derived from the session and cart when empty
	IdempotencyKey string
}

type CheckoutOutput struct {
	Order       OrderOutput `json:"order"`
	RedirectURL string      `json:"redirect_url,omitempty"`
	Replayed    bool        `json:"replayed"`
}

// createAttempts bounds reruns after a unique violation, e.g. an order number
// collision or a concurrent insert with the same idempotency key.
const createAttempts = 3

func (u *CheckoutUsecase) Checkout(ctx context.Context, owner model.CartOwner, in CheckoutInput) (CheckoutOutput, error) {
	if !owner.IsAuthenticated() {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	norm, err := validator.NormalizeCheckout(validator.CheckoutInput{
		PaymentMethod:   model.PaymentMethod(in.PaymentMethod),
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		CouponCode:      in.CouponCode,
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		return CheckoutOutput{}, WrapHTTPError(http.StatusBadRequest, err.Error(), err)
	}
	method, key := norm.PaymentMethod, norm.IdempotencyKey

	cart, err := u.carts.Load(ctx, owner)
	if err != nil {
		return CheckoutOutput{}, err
	}
	if cart.IsEmpty() {
		return CheckoutOutput{}, WrapHTTPError(http.StatusBadRequest, "Your cart is empty.", ErrEmptyCart)
	}
	if key == "" {
		key = checkoutKey(owner, cart, method)
	}

	var res placeResult
	for attempt := 1; ; attempt++ {
		res, err = u.place(ctx, owner.UserID, cart, placeInput{
			method:   method,
			shipping: norm.ShippingAddress,
			billing:  norm.BillingAddress,
			coupon:   norm.CouponCode,
			key:      key,
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt >= createAttempts {
			break
		}
		u.log.Info("order insert conflicted, retrying", zap.Int64("user_id", owner.UserID), zap.Int("attempt", attempt))
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return CheckoutOutput{}, WrapHTTPError(http.StatusConflict, "checkout conflict, please retry", err)
	}
	if err != nil {
		return CheckoutOutput{}, err
	}
	u.notifier.publish(ctx, res.events)

	out := CheckoutOutput{Order: toOrderOutput(res.order, res.items), Replayed: res.replayed}
	if res.replayed {
		u.log.Info("checkout replayed existing order",
			zap.Int64("user_id", owner.UserID),
			zap.String("order_number", res.order.OrderNumber),
		)
	} else {
		u.log.Info("order placed",
			zap.Int64("user_id", owner.UserID),
			zap.String("order_number", res.order.OrderNumber),
			zap.String("payment_method", string(method)),
			zap.String("order_total", res.order.OrderTotal.StringFixed(2)),
		)
	}

	// online orders keep the cart until the payment callback confirms
	if res.order.PaymentMethod.IsOnline() {
		if res.order.IsPaid || res.order.Status != model.OrderStatusPending {
			return out, nil
		}
		url, err := u.handOff(ctx, res.order, res.items)
		if err != nil {
			return CheckoutOutput{}, err
		}
		out.RedirectURL = url
		return out, nil
	}

	if err := u.carts.Clear(ctx, owner); err != nil {
		// the order exists; a stale cart only produces a replay next time
		u.log.Error("clear cart after checkout failed", zap.Int64("user_id", owner.UserID), zap.Error(err))
	}
	return out, nil
}

type placeInput struct {
	method   model.PaymentMethod
	shipping string
	billing  string
	coupon   string
	key      string
}

type placeResult struct {
	order    model.Order
	items    []model.OrderItem
	events   []OrderEvent
	replayed bool
}

func (u *CheckoutUsecase) place(ctx context.Context, userID int64, cart model.Cart, in placeInput) (placeResult, error) {
	var res placeResult
	now := u.clock.Now()

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		res = placeResult{}

		// one checkout per user at a time
		if err := r.Users().LockByID(ctx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			return dbError(err)
		}

		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, in.key)
		if err != nil {
			return dbError(err)
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return dbError(err)
			}
			res.order, res.items, res.replayed = existing, items, true
			return nil
		}

		entries := cart.SortedEntries()
		names, err := productNames(ctx, r, entries)
		if err != nil {
			return dbError(err)
		}

		subtotal := cart.TotalPrice()
		discount, applied, err := u.resolveDiscount(ctx, r, userID, in.coupon, now)
		if err != nil {
			return err
		}
		discountAmount := decimal.Zero
		if applied {
			discountAmount = model.DiscountAmount(subtotal, discount.Percentage, u.cfg.DiscountMode)
		}
		total := subtotal.Sub(discountAmount)

		order := model.Order{
			OrderNumber:     model.NewOrderNumber(),
			UserID:          userID,
			Status:          model.OrderStatusPending,
			PaymentMethod:   in.method,
			ShippingAddress: in.shipping,
			BillingAddress:  in.billing,
			OrderTotal:      total,
			DiscountAmount:  discountAmount,
			Tax:             total.Mul(u.cfg.TaxRate).Round(2),
			ShippingCost:    u.cfg.ShippingCost,
			IsPaid:          false,
			IdempotencyKey:  in.key,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if applied {
			id := discount.ID
			order.DiscountCodeID = &id
		}
		if err := r.Orders().Create(ctx, &order); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			return dbError(err)
		}

		items := make([]model.OrderItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, model.OrderItem{
				ProductID:           e.ProductID,
				ProductNameSnapshot: names[e.ProductID],
				UnitPriceSnapshot:   e.UnitPrice,
				Quantity:            e.Quantity,
				CreatedAt:           now,
			})
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return dbError(err)
		}

		// online orders consume the code when the payment is confirmed
		if applied && !in.method.IsOnline() {
			ok, err := r.Discounts().MarkUsed(ctx, discount.ID, order.ID, now)
			if err != nil {
				return dbError(err)
			}
			if !ok {
				return NewHTTPError(http.StatusConflict, "discount code was used concurrently, please retry")
			}
		}

		ev, ok, err := u.notifier.record(ctx, r, order, model.NotificationOrderPlaced, now)
		if err != nil {
			return dbError(err)
		}
		if ok {
			res.events = append(res.events, ev)
		}

		res.order, res.items = order, items
		return nil
	})
	return res, err
}

// resolveDiscount returns the code when it may be applied. Every rejection is
// logged as an InvalidDiscountError and checkout continues without it.
func (u *CheckoutUsecase) resolveDiscount(ctx context.Context, r repo.TxRepos, userID int64, code string, now time.Time) (model.DiscountCode, bool, error) {
	if code == "" {
		return model.DiscountCode{}, false, nil
	}

	reject := func(reason string) (model.DiscountCode, bool, error) {
		u.log.Info("discount ignored",
			zap.Int64("user_id", userID),
			zap.Error(&InvalidDiscountError{Code: code, Reason: reason}),
		)
		return model.DiscountCode{}, false, nil
	}

	d, err := r.Discounts().FindByCodeForUpdate(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return reject("unknown code")
	}
	if err != nil {
		return model.DiscountCode{}, false, dbError(err)
	}
	switch {
	case d.UserID != userID:
		return reject("belongs to another user")
	case d.IsUsed:
		return reject("already used")
	case !d.IsValidAt(now):
		return reject("expired")
	}
	return d, true, nil
}

func (u *CheckoutUsecase) handOff(ctx context.Context, order model.Order, items []model.OrderItem) (string, error) {
	lineItems := make([]LineItem, 0, len(items)+1)
	for _, it := range items {
		lineItems = append(lineItems, LineItem{
			Name:       it.ProductNameSnapshot,
			UnitAmount: it.UnitPriceSnapshot,
			Quantity:   it.Quantity,
		})
	}
	if order.ShippingCost.IsPositive() {
		lineItems = append(lineItems, LineItem{Name: "Shipping", UnitAmount: order.ShippingCost, Quantity: 1})
	}

	orderID := strconv.FormatInt(order.ID, 10)
	sess, err := u.gateway.CreateCheckoutSession(ctx, CheckoutSessionInput{
		LineItems:         lineItems,
		SuccessURL:        u.cfg.SuccessURL,
		CancelURL:         withQuery(u.cfg.CancelURL, "order_id", orderID),
		ClientReferenceID: order.OrderNumber,
		Metadata:          map[string]string{"order_id": orderID},
	})
	if err != nil {
		u.log.Error("create checkout session failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
		return "", WrapHTTPError(http.StatusBadGateway, "Payment service is unavailable. Your order was saved; please try paying again shortly.", err)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Orders().SetPaymentSession(ctx, order.ID, sess.ID)
	})
	if err != nil {
		// informational only; the callback trusts the session metadata
		u.log.Warn("store payment session id failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
	return sess.URL, nil
}

func productNames(ctx context.Context, r repo.TxRepos, entries []model.CartEntry) (map[int64]string, error) {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProductID)
	}
	products, err := r.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(entries))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	for _, id := range ids {
		if names[id] == "" {
			names[id] = fmt.Sprintf("Product #%d", id)
		}
	}
	return names, nil
}

// checkoutKey ties an attempt to the session, the cart revision and contents,
// and the payment method.
func checkoutKey(owner model.CartOwner, cart model.Cart, method model.PaymentMethod) string {
	sum := sha256.Sum256([]byte(owner.SessionKey + "|" + cart.Fingerprint() + "|" + string(method)))
	return "cart:" + hex.EncodeToString(sum[:])
}

func withQuery(base, key, value string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + key + "=" + value
}
