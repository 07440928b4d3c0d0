package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock CatalogRepository
type mockCatalog struct {
	products map[string]domain.Product
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func testProduct(id, price, currency string, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Currency: currency,
		Stock:    stock,
	}
}

// Mock OrderRepository
type mockOrderRepo struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order
	createCalls int
	markCalls   int
	createErr   error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.LineItem(nil), o.Items...)
	return &c
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *mockOrderRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepo) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockOrderRepo) SaveSession(ctx context.Context, orderID string, session domain.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.PaymentStatus.IsTerminal() {
		return domain.ErrOrderNotPending
	}
	o.Session = session
	return nil
}

func (m *mockOrderRepo) MarkTerminal(ctx context.Context, orderID string, status domain.PaymentStatus, ref string) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markCalls++
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false, domain.ErrOrderNotFound
	}
	changed, err := o.ApplyTerminal(status, ref, time.Now())
	if err != nil {
		return nil, false, err
	}
	return cloneOrder(o), changed, nil
}

func (m *mockOrderRepo) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.OrderStatus = status
	return cloneOrder(o), nil
}

func (m *mockOrderRepo) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

func (m *mockOrderRepo) status(orderID string) domain.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID].PaymentStatus
}

// Mock PaymentGateway
type mockGateway struct {
	method domain.PaymentMethod

	mu           sync.Mutex
	createCalls  int
	verifyCalls  int
	session      domain.PaymentSession
	createErr    error
	verification domain.Verification
	verifyErr    error
	onVerify     func()
}

func (m *mockGateway) Method() domain.PaymentMethod { return m.method }

func (m *mockGateway) CreateSession(ctx context.Context, order *domain.Order, customer domain.CustomerDetails) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return domain.PaymentSession{}, m.createErr
	}
	return m.session, nil
}

func (m *mockGateway) Verify(ctx context.Context, order *domain.Order, callback domain.CallbackPayload) (domain.Verification, error) {
	m.mu.Lock()
	m.verifyCalls++
	v, err, hook := m.verification, m.verifyErr, m.onVerify
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return v, err
}

func (m *mockGateway) setVerification(v domain.Verification, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verification, m.verifyErr = v, err
}

func (m *mockGateway) calls() (create, verify int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.verifyCalls
}

// Mock Notifier
type mockNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *mockNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, order.ID)
	return m.err
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Mock CacheRepository
type mockCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (m *mockCache) GetProduct(ctx context.Context, productID string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (m *mockCache) SetProduct(ctx context.Context, p domain.Product) error {
	return nil
}

func (m *mockCache) InvalidateProducts(ctx context.Context, productIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, productIDs...)
	return nil
}
