package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/notify"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/session"
	"storefront/internal/logger"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	// repositories
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB, cfg.DBMaxRetries)
	sessionCarts := session.NewRedisCartStore(rdb, cfg.CartTTL, log)
	userCarts := infraRepo.NewCartGormStore(gormDB)

	// outbound
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeCurrency, log)
	var publisher usecase.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log)
		defer kp.Close()
		publisher = kp
	} else {
		log.Info("KAFKA_BROKERS not set, order events are only logged")
		publisher = notify.NewLogPublisher(log)
	}

	// usecases
	clock := usecase.SystemClock{}
	cartUC := usecase.NewCartUsecase(sessionCarts, userCarts, productRepo, log)
	checkoutUC := usecase.NewCheckoutUsecase(txm, cartUC, gateway, publisher, clock, usecase.CheckoutConfig{
		ShippingCost: cfg.ShippingCost,
		TaxRate:      cfg.TaxRate,
		DiscountMode: cfg.DiscountMode,
		SuccessURL:   cfg.PaymentSuccessURL,
		CancelURL:    cfg.PaymentCancelURL,
	}, log)
	paymentUC := usecase.NewPaymentUsecase(txm, cartUC, gateway, publisher, clock, log)
	orderUC := usecase.NewOrderUsecase(txm, publisher, clock, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, publisher, clock, log)
	discountUC := usecase.NewDiscountUsecase(txm, clock, log)
	notificationUC := usecase.NewNotificationUsecase(txm)
	productUC := usecase.NewProductUsecase(productRepo)

	// handlers
	h := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": handler.PingFunc(sqlDB.PingContext),
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}),
		Products:      handler.NewProductHandler(productUC),
		Cart:          handler.NewCartHandler(cartUC),
		Checkout:      handler.NewCheckoutHandler(checkoutUC),
		Payments:      handler.NewPaymentHandler(paymentUC),
		Orders:        handler.NewOrderHandler(orderUC),
		Discounts:     handler.NewDiscountHandler(discountUC),
		Notifications: handler.NewNotificationHandler(notificationUC),
		AdminOrders:   handler.NewAdminOrderHandler(adminOrderUC),
	}

	e := server.New(cfg, log, userRepo, h)

	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	return server.Start(ctx, e, addr, log)
}
