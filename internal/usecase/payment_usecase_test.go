package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// placeOnline puts an unpaid STRIPE order for owner and returns it.
func placeOnline(t *testing.T, f *fixture, owner model.CartOwner, sessionID string) usecase.OrderOutput {
	t.Helper()
	f.add(t, owner, mugID, 1)
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(usecase.CheckoutSession{ID: sessionID, URL: "https://pay.example/" + sessionID}, nil).Once()

	out, err := f.checkout.Checkout(context.Background(), owner, usecase.CheckoutInput{PaymentMethod: "STRIPE", ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	return out.Order
}

func paidSession(id string, orderID int64) usecase.GatewaySession {
	return usecase.GatewaySession{
		ID:            id,
		PaymentStatus: usecase.PaymentStatusPaid,
		Metadata:      map[string]string{"order_id": strconv.FormatInt(orderID, 10)},
	}
}

func TestConfirmSuccess_MarksPaidOnce(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")
	f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession("cs_1", order.ID), nil)

	first, err := f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyPaid)
	assert.True(t, first.Order.IsPaid)
	require.NotNil(t, first.Order.PaidAt)
	assert.Equal(t, testNow, *first.Order.PaidAt)

	second, err := f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var paid int
	for _, n := range f.db.notificationsFor(aliceID) {
		if n.Kind == model.NotificationOrderPaid {
			paid++
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, []model.NotificationKind{model.NotificationOrderPlaced, model.NotificationOrderPaid}, f.publisher.kinds())

	cart, err := f.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestConfirmSuccess_SecondCallDoesNotClearNewCart(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")
	f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession("cs_1", order.ID), nil)

	_, err := f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	require.NoError(t, err)

	f.add(t, owner, teaID, 2)
	_, err = f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	require.NoError(t, err)

	cart, err := f.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestConfirmSuccess_VerificationFailures(t *testing.T) {
	cases := []struct {
		name    string
		session string
		stub    func(f *fixture, orderID int64)
		owner   model.CartOwner
	}{
		{
			name: "session not paid",
			stub: func(f *fixture, orderID int64) {
				s := paidSession("cs_1", orderID)
				s.PaymentStatus = usecase.PaymentStatusUnpaid
				f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(s, nil)
			},
			owner: user(aliceID),
		},
		{
			name: "gateway error",
			stub: func(f *fixture, orderID int64) {
				f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(usecase.GatewaySession{}, errors.New("timeout"))
			},
			owner: user(aliceID),
		},
		{
			name: "order of another user",
			stub: func(f *fixture, orderID int64) {
				f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession("cs_1", orderID), nil)
			},
			owner: user(bobID),
		},
		{
			name: "no order reference",
			stub: func(f *fixture, orderID int64) {
				s := paidSession("cs_1", orderID)
				s.Metadata = nil
				f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(s, nil)
			},
			owner: user(aliceID),
		},
		{
			name:    "unknown order",
			session: "cs_other",
			stub: func(f *fixture, orderID int64) {
				f.gateway.On("RetrieveSession", mock.Anything, "cs_other").Return(paidSession("cs_other", orderID+1000), nil)
			},
			owner: user(aliceID),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			order := placeOnline(t, f, user(aliceID), "cs_1")
			sessionID := tc.session
			if sessionID == "" {
				sessionID = "cs_1"
			}
			tc.stub(f, order.ID)

			_, err := f.payments.ConfirmSuccess(context.Background(), tc.owner, sessionID)

			he := assertHTTPStatus(t, err, http.StatusPaymentRequired)
			assert.Equal(t, "We could not verify your payment. Your order has not been marked as paid.", he.Message)
			var pve *usecase.PaymentVerificationError
			assert.ErrorAs(t, err, &pve)

			assert.False(t, f.db.order(order.ID).IsPaid)
			assert.Len(t, f.db.notificationsFor(aliceID), 1, "only ORDER_PLACED")

			cart, err := f.carts.GetCart(context.Background(), user(aliceID))
			require.NoError(t, err)
			assert.Len(t, cart.Items, 1, "cart is kept")
		})
	}
}

func TestConfirmSuccess_CancelledOrderIsNotPaid(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")
	_, err := f.orders.CancelMyOrder(context.Background(), aliceID, order.ID)
	require.NoError(t, err)
	f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession("cs_1", order.ID), nil)

	_, err = f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	assertHTTPStatus(t, err, http.StatusPaymentRequired)
	assert.False(t, f.db.order(order.ID).IsPaid)
}

func TestConfirmSuccess_RequiresSessionAndUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.ConfirmSuccess(context.Background(), model.CartOwner{SessionKey: "anon"}, "cs_1")
	assertHTTPStatus(t, err, http.StatusUnauthorized)

	_, err = f.payments.ConfirmSuccess(context.Background(), user(aliceID), "  ")
	assertHTTPStatus(t, err, http.StatusBadRequest)
	f.gateway.AssertNotCalled(t, "RetrieveSession", mock.Anything, mock.Anything)
}

func TestPaymentCancel_HasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")

	out, err := f.payments.Cancel(context.Background(), aliceID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Payment was cancelled. Your cart has been kept.", out.Message)
	require.NotNil(t, out.Order)
	assert.Equal(t, order.ID, out.Order.ID)

	stored := f.db.order(order.ID)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
	assert.False(t, stored.IsPaid)
	assert.Len(t, f.db.notificationsFor(aliceID), 1)

	cart, err := f.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	// someone else's order is not revealed
	out, err = f.payments.Cancel(context.Background(), bobID, order.ID)
	require.NoError(t, err)
	assert.Nil(t, out.Order)
}

func TestConfirmSuccess_PaysThroughReplacedSession(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")

	// second tab: same cart, same method, fresh hosted page
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(usecase.CheckoutSession{ID: "cs_2", URL: "https://pay.example/cs_2"}, nil).Once()
	again, err := f.checkout.Checkout(context.Background(), owner, usecase.CheckoutInput{PaymentMethod: "STRIPE", ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, order.ID, again.Order.ID)
	assert.Equal(t, "https://pay.example/cs_2", again.RedirectURL)

	// the customer pays in the first tab
	f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession("cs_1", order.ID), nil)
	res, err := f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyPaid)
	assert.True(t, f.db.order(order.ID).IsPaid)

	cart, err := f.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestConfirmSuccess_OverlappingCallsReportOneFlip(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	f.gateway.On("RetrieveSession", mock.Anything, "cs_1").
		Run(func(mock.Arguments) {
			entered <- struct{}{}
			<-release
		}).
		Return(paidSession("cs_1", order.ID), nil)

	const n = 2
	results := make([]usecase.PaymentResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
		}()
		if i == 0 {
			<-entered
		}
	}
	// give the second caller time to join the in-flight lookup
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	flipped := 0
	for i := range n {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Order.IsPaid)
		if !results[i].AlreadyPaid {
			flipped++
		}
	}
	assert.Equal(t, 1, flipped)
}

func TestConfirmSuccess_OutlivesCancelledRequest(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	order := placeOnline(t, f, owner, "cs_1")

	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	f.gateway.On("RetrieveSession", live, "cs_1").Return(paidSession("cs_1", order.ID), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.payments.ConfirmSuccess(ctx, owner, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Order.IsPaid)
}

func TestConfirmSuccess_ConsumesDiscountOnPayment(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	f.db.addDiscount(model.DiscountCode{ID: 500, UserID: aliceID, Code: "TRIVIA-ALI-AAAAAA", Percentage: 5, ExpiresAt: testNow.Add(time.Hour)})

	f.add(t, owner, mugID, 1)
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(usecase.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil).Once()
	out, err := f.checkout.Checkout(context.Background(), owner, usecase.CheckoutInput{
		PaymentMethod: "STRIPE", ShippingAddress: "1 Main St", CouponCode: "TRIVIA-ALI-AAAAAA",
	})
	require.NoError(t, err)
	assert.True(t, out.Order.DiscountAmount.IsPositive())
	assert.False(t, f.db.discount(500).IsUsed, "an unpaid hand-off keeps the code")

	f.gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession("cs_1", out.Order.ID), nil)
	_, err = f.payments.ConfirmSuccess(context.Background(), owner, "cs_1")
	require.NoError(t, err)

	d := f.db.discount(500)
	assert.True(t, d.IsUsed)
	require.NotNil(t, d.OrderID)
	assert.Equal(t, out.Order.ID, *d.OrderID)
}

func TestAbandonedOnlinePaymentKeepsDiscount(t *testing.T) {
	f := newFixture(t)
	owner := user(aliceID)
	f.db.addDiscount(model.DiscountCode{ID: 500, UserID: aliceID, Code: "TRIVIA-ALI-AAAAAA", Percentage: 5, ExpiresAt: testNow.Add(time.Hour)})

	f.add(t, owner, mugID, 1)
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(usecase.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil).Once()
	online, err := f.checkout.Checkout(context.Background(), owner, usecase.CheckoutInput{
		PaymentMethod: "STRIPE", ShippingAddress: "1 Main St", CouponCode: "TRIVIA-ALI-AAAAAA",
	})
	require.NoError(t, err)
	_, err = f.payments.Cancel(context.Background(), aliceID, online.Order.ID)
	require.NoError(t, err)

	// the customer switches to cash on delivery with the same code
	cod, err := f.checkout.Checkout(context.Background(), owner, usecase.CheckoutInput{
		PaymentMethod: "COD", ShippingAddress: "1 Main St", CouponCode: "TRIVIA-ALI-AAAAAA",
	})
	require.NoError(t, err)
	assert.False(t, cod.Replayed)
	assert.True(t, cod.Order.DiscountAmount.IsPositive())
	assert.True(t, f.db.discount(500).IsUsed)
}
