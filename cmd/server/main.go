package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/shaheenexpress/orderflow/internal/adapter/gateway"
	"github.com/shaheenexpress/orderflow/internal/adapter/handler"
	"github.com/shaheenexpress/orderflow/internal/adapter/notify"
	"github.com/shaheenexpress/orderflow/internal/adapter/storage"
	"github.com/shaheenexpress/orderflow/internal/config"
	"github.com/shaheenexpress/orderflow/internal/core/service"
)

const (
	workerCount     = 4
	queueSize       = 1000
	healthInterval  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	logger.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	logger.Info("connected to redis")

	// Initialize adapters
	mysqlAdapter := storage.NewMySQLAdapter(db,
		storage.WithStockDecrement(cfg.DecrementStock),
		storage.WithLogger(logger))
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.CatalogTTL)
	catalog := storage.NewCachedCatalog(mysqlAdapter, redisAdapter, logger)

	var publisher notify.EventPublisher = notify.NewLogPublisher(logger)
	var rabbit *notify.RabbitMQPublisher
	if cfg.RabbitMQURL != "" {
		rabbit = notify.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitExchange, logger)
		if err := rabbit.Connect(); err != nil {
			// publishes re-dial, so a broker outage at boot is not fatal
			logger.Error("rabbitmq unavailable at startup", "error", err)
		}
		publisher = rabbit
	}

	dispatcher := notify.NewDispatcher(publisher, notify.DispatcherOptions{
		Workers:   workerCount,
		QueueSize: queueSize,
	}, logger)
	dispatcher.Start()

	gateways := service.NewGatewaySet(
		gateway.NewCardGateway(gateway.CardOptions{
			BaseURL:      cfg.Card.BaseURL,
			MerchantID:   cfg.Card.MerchantID,
			APIPassword:  cfg.Card.APIPassword,
			MerchantName: "Shaheen Express",
			ReturnURL:    cfg.FrontendURL + "/payment/callback",
			CheckoutURL:  cfg.Card.BaseURL + "/checkout.js",
			Timeout:      cfg.Card.Timeout,
		}, logger),
		gateway.NewWalletGateway(gateway.WalletOptions{
			BaseURL:          cfg.Wallet.BaseURL,
			MerchantID:       cfg.Wallet.MerchantID,
			Secret:           cfg.Wallet.Secret,
			CallbackURL:      cfg.PublicURL + "/api/payment/benefit-callback",
			LenientSignature: cfg.Wallet.LenientSignature,
			Timeout:          cfg.Wallet.Timeout,
		}, logger),
		gateway.NewCashOnDelivery(),
	)

	// Initialize services
	pricer := service.NewPricer(catalog, service.PricingPolicy{
		DeliveryFee: cfg.Pricing.DeliveryFee,
		VATRate:     cfg.Pricing.VATRate,
		ChargeTax:   cfg.Pricing.ChargeTax,
	})
	checkoutService := service.NewCheckoutService(mysqlAdapter, pricer, gateways, redisAdapter, dispatcher, logger)
	paymentService := service.NewPaymentService(mysqlAdapter, gateways, redisAdapter, dispatcher, logger)
	orderService := service.NewOrderService(mysqlAdapter, logger)

	health := handler.NewHealthService(map[string]handler.HealthCheck{
		"mysql": db.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, logger)
	go health.Watch(ctx, healthInterval)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(checkoutService, paymentService, orderService, health, cfg.FrontendURL, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(handler.NewAuthenticator(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	health.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain queued confirmations before closing the broker
	dispatcher.Close()
	logger.Info("notification workers stopped")

	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			logger.Error("rabbitmq close", "error", err)
		}
	}
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
