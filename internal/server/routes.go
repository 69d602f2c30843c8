package server

import (
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Health        *handler.HealthHandler
	Products      *handler.ProductHandler
	Cart          *handler.CartHandler
	Checkout      *handler.CheckoutHandler
	Payments      *handler.PaymentHandler
	Orders        *handler.OrderHandler
	Discounts     *handler.DiscountHandler
	Notifications *handler.NotificationHandler
	AdminOrders   *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	h.Health.RegisterRoutes(e)
	h.Products.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg, userRepo)
	h.Checkout.RegisterRoutes(e, cfg, userRepo)
	h.Payments.RegisterRoutes(e, cfg, userRepo)
	h.Orders.RegisterRoutes(e, cfg, userRepo)
	h.Notifications.RegisterRoutes(e, cfg, userRepo)

	admin := handler.AdminGroup(e, cfg, userRepo)
	h.AdminOrders.RegisterRoutes(admin)
	h.Discounts.RegisterRoutes(e, admin, cfg, userRepo)
}
