package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// SessionAPI is the part of the Stripe client used here.
type SessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway creates hosted checkout sessions. Calls go through a circuit
// breaker and are never retried: a retried create could bill twice.
type StripeGateway struct {
	sessions SessionAPI
	currency string
	breaker  *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	log      *zap.Logger
}

func NewStripeGateway(secretKey, currency string, log *zap.Logger) *StripeGateway {
	sc := client.New(secretKey, nil)
	return NewStripeGatewayWithAPI(sc.CheckoutSessions, currency, log)
}

func NewStripeGatewayWithAPI(sessions SessionAPI, currency string, log *zap.Logger) *StripeGateway {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	st := gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// card and request errors are the caller's problem, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &StripeGateway{
		sessions: sessions,
		currency: strings.ToLower(currency),
		breaker:  gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](st),
		log:      log,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in usecase.CheckoutSessionInput) (usecase.CheckoutSession, error) {
	if len(in.LineItems) == 0 {
		return usecase.CheckoutSession{}, errors.New("checkout session needs at least one line item")
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionPlaceholder(in.SuccessURL)),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(in.ClientReferenceID),
	}
	for _, li := range in.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(ToMinorUnits(li.UnitAmount)),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return g.sessions.New(params)
	})
	if err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	g.log.Info("checkout session created", zap.String("session_id", s.ID), zap.String("reference", in.ClientReferenceID))
	return usecase.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (usecase.GatewaySession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	s, err := g.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return g.sessions.Get(sessionID, params)
	})
	if err != nil {
		return usecase.GatewaySession{}, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return usecase.GatewaySession{
		ID:            s.ID,
		PaymentStatus: usecase.PaymentStatus(s.PaymentStatus),
		Metadata:      s.Metadata,
	}, nil
}

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func withSessionPlaceholder(url string) string {
	if strings.Contains(url, "{CHECKOUT_SESSION_ID}") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func isClientError(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode >= http.StatusBadRequest && se.HTTPStatusCode < http.StatusInternalServerError &&
		se.HTTPStatusCode != http.StatusTooManyRequests
}
