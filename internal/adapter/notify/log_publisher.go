package notify

import (
	"context"
	"log/slog"
)

// LogPublisher records events in the service log when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event OrderConfirmedEvent) error {
	p.logger.InfoContext(ctx, "order confirmed",
		"event_id", event.ID,
		"order_id", event.OrderID,
		"customer_email", event.CustomerEmail,
		"total", event.TotalAmount,
		"currency", event.Currency)
	return nil
}
