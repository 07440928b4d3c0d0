package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

const (
	defaultQueueSize   = 1000
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
	publishTimeout     = 10 * time.Second
)

type EventPublisher interface {
	Publish(ctx context.Context, event OrderConfirmedEvent) error
}

type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int

	// RetryDelay grows linearly with each attempt.
	RetryDelay time.Duration
}

// Dispatcher queues confirmed orders and publishes them from a worker pool.
type Dispatcher struct {
	publisher EventPublisher
	logger    *slog.Logger
	opts      DispatcherOptions
	now       func() time.Time

	mu     sync.RWMutex
	queue  chan domain.Order
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(publisher EventPublisher, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		queue:     make(chan domain.Order, opts.QueueSize),
	}
}

// Start launches the worker pool. Call Close to drain it.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info("notification workers started", "workers", d.opts.Workers)
}

// OrderConfirmed enqueues the order without blocking.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	snapshot := *order
	snapshot.Items = append([]domain.LineItem(nil), order.Items...)

	select {
	case d.queue <- snapshot:
		return nil
	default:
		return fmt.Errorf("%w: order %s", ErrQueueFull, order.ID)
	}
}

// Close stops accepting orders and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for order := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		event := NewOrderConfirmedEvent(&order, d.now())
		if err := d.publishWithRetry(ctx, event); err != nil {
			d.logger.Error("order confirmation not delivered",
				"worker", id,
				"order_id", order.ID,
				"error", err)
		} else {
			d.logger.Info("order confirmation published",
				"worker", id,
				"order_id", order.ID,
				"event_id", event.ID)
		}

		cancel()
	}
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, event OrderConfirmedEvent) error {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		lastErr = d.publisher.Publish(ctx, event)
		if lastErr == nil {
			return nil
		}
		if attempt == d.opts.MaxAttempts {
			break
		}

		d.logger.Warn("publish failed, retrying",
			"order_id", event.OrderID,
			"attempt", attempt,
			"error", lastErr)

		select {
		case <-time.After(d.opts.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("publish order %s: %w", event.OrderID, ctx.Err())
		}
	}
	return fmt.Errorf("publish order %s after %d attempts: %w", event.OrderID, d.opts.MaxAttempts, lastErr)
}
