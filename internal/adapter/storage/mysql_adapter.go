package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const orderColumns = `id, user_id, subtotal, shipping_cost, tax_amount, total_amount, currency,
	payment_method, payment_status, order_status, shipping_option,
	shipping_address, customer, session, gateway_reference, created_at, updated_at`

const orderItemColumns = `order_id, product_id, product_name, quantity, unit_price, currency`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type MySQLOption func(*MySQLAdapter)

// WithStockDecrement makes MarkTerminal reduce product stock when an order is approved.
func WithStockDecrement(enabled bool) MySQLOption {
	return func(m *MySQLAdapter) { m.decrementStock = enabled }
}

func WithLogger(logger *slog.Logger) MySQLOption {
	return func(m *MySQLAdapter) { m.logger = logger }
}

// MySQLAdapter is the order ledger and the catalog accessor.
type MySQLAdapter struct {
	db             *sql.DB
	decrementStock bool
	logger         *slog.Logger
	now            func() time.Time
}

func NewMySQLAdapter(db *sql.DB, opts ...MySQLOption) *MySQLAdapter {
	m := &MySQLAdapter{
		db:     db,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("encode customer: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, subtotal, shipping_cost, tax_amount, total_amount, currency,
			payment_method, payment_status, order_status, shipping_option,
			shipping_address, customer, gateway_reference, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Subtotal, order.ShippingCost, order.TaxAmount, order.TotalAmount, order.Currency,
		order.PaymentMethod, order.PaymentStatus, order.OrderStatus, order.ShippingOption,
		address, customer, order.GatewayReference, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Currency,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return m.loadOrder(ctx, m.db, orderID, false)
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	index := make(map[string]int)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[order.ID] = len(orders)
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := m.db.QueryContext(ctx, `
		SELECT `+orderItemColumns+`
		FROM order_items
		WHERE order_id IN (SELECT id FROM orders WHERE user_id = ?)
		ORDER BY order_id, line_no`, userID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		orderID, item, err := scanItem(itemRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return orders, nil
}

func (m *MySQLAdapter) SaveSession(ctx context.Context, orderID string, session domain.PaymentSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET session = ?, updated_at = ?
		WHERE id = ? AND payment_status = ?`,
		raw, m.now(), orderID, domain.PaymentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rows, err := rowsAffected(result, "update session")
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := m.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("save session for %s: %w", orderID, domain.ErrOrderNotPending)
	}
	return nil
}

// MarkTerminal serializes concurrent finalizers on the order row. Only the
// caller that observes PENDING under the lock gets changed=true.
func (m *MySQLAdapter) MarkTerminal(ctx context.Context, orderID string, status domain.PaymentStatus, gatewayRef string) (*domain.Order, bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := m.loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, false, err
	}

	changed, err := order.ApplyTerminal(status, gatewayRef, m.now())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return order, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = ?, order_status = ?, gateway_reference = ?, updated_at = ?
		WHERE id = ? AND payment_status = ?`,
		order.PaymentStatus, order.OrderStatus, order.GatewayReference, order.UpdatedAt,
		order.ID, domain.PaymentStatusPending,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update payment status: %w", err)
	}

	if status == domain.PaymentStatusApproved && m.decrementStock {
		if err := m.decrementItems(ctx, tx, order); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return order, true, nil
}

// decrementItems never fails a paid order on shortfall; it only reports it.
func (m *MySQLAdapter) decrementItems(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	for _, item := range order.Items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - ?, updated_at = NOW()
			WHERE id = ? AND stock >= ?`,
			item.Quantity, item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement stock %s: %w", item.ProductID, err)
		}

		rows, err := rowsAffected(result, "decrement stock "+item.ProductID)
		if err != nil {
			return err
		}
		if rows == 0 {
			m.logger.Warn("stock shortfall on approved order",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"quantity", item.Quantity)
		}
	}
	return nil
}

func rowsAffected(result sql.Result, op string) (int64, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return rows, nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := m.loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}

	order.OrderStatus = status
	order.UpdatedAt = m.now()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET order_status = ?, updated_at = ? WHERE id = ?`,
		order.OrderStatus, order.UpdatedAt, order.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return order, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, currency, stock, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Stock, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) loadOrder(ctx context.Context, q queryer, orderID string, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+orderItemColumns+`
		FROM order_items WHERE order_id = ?
		ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		_, item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return order, nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o                          domain.Order
		address, customer, session []byte
		orderStatus, gatewayRef    sql.NullString
	)

	err := s.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.ShippingCost, &o.TaxAmount, &o.TotalAmount, &o.Currency,
		&o.PaymentMethod, &o.PaymentStatus, &orderStatus, &o.ShippingOption,
		&address, &customer, &session, &gatewayRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.OrderStatus = domain.OrderStatus(orderStatus.String)
	o.GatewayReference = gatewayRef.String

	if err := decodeJSON(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode address of %s: %w", o.ID, err)
	}
	if err := decodeJSON(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("decode customer of %s: %w", o.ID, err)
	}
	if err := decodeJSON(session, &o.Session); err != nil {
		return nil, fmt.Errorf("decode session of %s: %w", o.ID, err)
	}

	return &o, nil
}

func scanItem(s scanner) (string, domain.LineItem, error) {
	var (
		orderID string
		item    domain.LineItem
	)
	if err := s.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Currency); err != nil {
		return "", item, fmt.Errorf("scan order item: %w", err)
	}
	return orderID, item, nil
}

func decodeJSON(raw []byte, out any) error {
	if len(raw) == 0 || strings.EqualFold(string(raw), "null") {
		return nil
	}
	return json.Unmarshal(raw, out)
}
