package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/shaheenexpress/orderflow/internal/adapter/gateway"
	"github.com/shaheenexpress/orderflow/internal/adapter/storage"
	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/core/service"
)

const (
	mysqlDSN       = "root:root@tcp(localhost:3306)/shaheen?parseTime=true"
	redisAddr      = "localhost:6379"
	productID      = "stress-item"
	initialStock   = 20
	orderQuantity  = 2
	totalCallbacks = 50
	walletSecret   = "stress-secret"
)

// countingNotifier records how many confirmations the services emitted.
type countingNotifier struct {
	count atomic.Int32
}

func (n *countingNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	n.count.Add(1)
	return nil
}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Initialize MySQL
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Reset test product
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, currency, stock) VALUES (?, 'Stress item', 4.500, 'BHD', ?)
		ON DUPLICATE KEY UPDATE stock = VALUES(stock), price = VALUES(price)`,
		productID, initialStock)
	if err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	rdb.Del(ctx, "product:"+productID)

	// Fake wallet gateway that opens sessions
	fakeWallet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TrackID string `json:"trackId"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"result":     "SUCCESS",
			"paymentId":  "PAY-" + req.TrackID,
			"paymentUrl": "https://wallet.example/pay/" + req.TrackID,
		})
	}))
	defer fakeWallet.Close()

	// Initialize adapters and services
	mysqlAdapter := storage.NewMySQLAdapter(db,
		storage.WithStockDecrement(true),
		storage.WithLogger(logger))
	redisAdapter := storage.NewRedisAdapter(rdb, time.Minute)
	catalog := storage.NewCachedCatalog(mysqlAdapter, redisAdapter, logger)

	wallet := gateway.NewWalletGateway(gateway.WalletOptions{
		BaseURL:     fakeWallet.URL,
		MerchantID:  "stress-merchant",
		Secret:      walletSecret,
		CallbackURL: "http://localhost:8080/api/payment/benefit-callback",
		Timeout:     5 * time.Second,
	}, logger)
	gateways := service.NewGatewaySet(wallet, gateway.NewCashOnDelivery())

	notifier := &countingNotifier{}
	pricer := service.NewPricer(catalog, service.PricingPolicy{})
	checkoutService := service.NewCheckoutService(mysqlAdapter, pricer, gateways, redisAdapter, notifier, logger)
	paymentService := service.NewPaymentService(mysqlAdapter, gateways, redisAdapter, notifier, logger)

	result, err := checkoutService.CreateSession(ctx, service.CheckoutRequest{
		UserID:         "stress-user",
		Items:          []domain.CartItem{{ProductID: productID, Quantity: orderQuantity}},
		ShippingOption: domain.ShippingPickup,
		PaymentMethod:  domain.PaymentMethodWallet,
		Customer:       domain.CustomerDetails{Name: "Stress", Email: "stress@example.com"},
		ShippingAddress: domain.Address{
			Line1: "Road 1",
			City:  "Manama",
		},
	})
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	order := result.Order

	callback := domain.CallbackPayload{
		TransactionID: result.Session.TransactionID,
		Status:        "CAPTURED",
		Amount:        domain.FormatMoney(order.TotalAmount, order.Currency),
	}
	callback.Signature = wallet.SignCallback(order.ID, callback)

	// Counters
	var approvedCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent callbacks for the same order
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalCallbacks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res, err := paymentService.VerifyAndFinalize(ctx, order.ID, callback)
			if err == nil && res.PaymentStatus == domain.PaymentStatusApproved {
				approvedCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	approved := approvedCount.Load()
	fail := failCount.Load()
	notified := notifier.count.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Order:            %s\n", order.ID)
	fmt.Printf("Total Callbacks:  %d\n", totalCallbacks)
	fmt.Printf("Approved Replies: %d\n", approved)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Notifications:    %d\n", notified)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if approved == totalCallbacks && fail == 0 {
		fmt.Println("PASS: Every callback observed APPROVED")
	} else {
		fmt.Printf("FAIL: Expected %d approved replies, got %d (%d failed)\n", totalCallbacks, approved, fail)
	}

	if notified == 1 {
		fmt.Println("PASS: Exactly one confirmation emitted")
	} else {
		fmt.Printf("FAIL: Expected 1 confirmation, got %d\n", notified)
	}

	// Verify final state in MySQL
	stored, err := mysqlAdapter.GetOrder(ctx, order.ID)
	if err != nil {
		log.Fatalf("failed to load order: %v", err)
	}
	fmt.Printf("Final Order Status: %s/%s\n", stored.PaymentStatus, stored.OrderStatus)

	product, err := mysqlAdapter.GetProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to load product: %v", err)
	}
	fmt.Printf("Final Stock:        %d\n", product.Stock)

	if product.Stock == initialStock-orderQuantity {
		fmt.Printf("PASS: Stock decremented once to %d\n", product.Stock)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", initialStock-orderQuantity, product.Stock)
	}
}
