package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

const notifyTimeout = 10 * time.Second

// finalizer applies a terminal payment status and fires the side effects
// only for the caller whose write actually changed the order.
type finalizer struct {
	orders   port.OrderRepository
	cache    port.CacheRepository
	notifier port.Notifier
	logger   *slog.Logger
}

func (f *finalizer) finalize(ctx context.Context, orderID string, status domain.PaymentStatus, reference string) (*domain.Order, bool, error) {
	order, changed, err := f.orders.MarkTerminal(ctx, orderID, status, reference)
	if err != nil {
		return nil, false, err
	}

	if !changed {
		f.logger.Info("order already finalized",
			"order_id", orderID,
			"stored_status", order.PaymentStatus,
			"requested_status", status)
		return order, false, nil
	}

	f.logger.Info("order payment finalized",
		"order_id", orderID,
		"status", order.PaymentStatus,
		"reference", reference)

	if order.PaymentStatus == domain.PaymentStatusApproved {
		f.afterApproval(ctx, order)
	}

	return order, true, nil
}

// afterApproval runs best-effort work; nothing here may undo the payment state.
func (f *finalizer) afterApproval(ctx context.Context, order *domain.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if f.cache != nil {
		ids := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
		if err := f.cache.InvalidateProducts(ctx, ids...); err != nil {
			f.logger.Warn("catalog cache invalidation failed", "order_id", order.ID, "error", err)
		}
	}

	if f.notifier == nil {
		return
	}
	if err := f.notifier.OrderConfirmed(ctx, order); err != nil {
		dispatchErr := &domain.NotificationDispatchError{OrderID: order.ID, Err: err}
		f.logger.Error("order confirmation not sent", "order_id", order.ID, "error", dispatchErr)
	}
}
