package handler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

// HealthService backs both GET /health and grpc.health.v1.Health with the
// same dependency checks.
type HealthService struct {
	server *health.Server
	checks map[string]HealthCheck
	logger *slog.Logger

	mu      sync.Mutex
	serving bool
}

func NewHealthService(checks map[string]HealthCheck, logger *slog.Logger) *HealthService {
	return &HealthService{
		server: health.NewServer(),
		checks: checks,
		logger: logger,
	}
}

func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check runs every dependency check and publishes the aggregate on the gRPC health server.
func (h *HealthService) Check(ctx context.Context) (map[string]string, bool) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	h.setServing(healthy)
	return results, healthy
}

// Watch refreshes the gRPC status every interval until ctx is done.
func (h *HealthService) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		h.Check(checkCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher ahead of GracefulStop.
func (h *HealthService) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthService) setServing(serving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if serving != h.serving {
		h.logger.Info("health status changed", "status", status.String())
		h.serving = serving
	}
	h.server.SetServingStatus("", status)
}
