package httpapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"qazna.org/authcore/internal/obs"
)

// DefaultHealthInterval is how often the gRPC health status is refreshed.
const DefaultHealthInterval = 5 * time.Second

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthServer publishes readiness through grpc.health.v1.Health.
type HealthServer struct {
	srv       *health.Server
	readiness readinessChecker
	service   string
	interval  time.Duration
	logger    *slog.Logger
	metrics   *obs.Metrics
}

// NewHealthServer creates a health service for service. The status starts
// as NOT_SERVING until the first refresh.
func NewHealthServer(r readinessChecker, service string, logger *slog.Logger, metrics *obs.Metrics) *HealthServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &HealthServer{
		srv:       health.NewServer(),
		readiness: r,
		service:   service,
		interval:  DefaultHealthInterval,
		logger:    logger,
		metrics:   metrics,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh runs the readiness checks once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	err := h.readiness.Check(ctx)
	h.metrics.SetReady(err == nil)
	if err != nil {
		h.logger.WarnContext(ctx, "grpc health not serving", slog.Any("error", err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run refreshes the status every interval until ctx is done, then marks the
// service as shutting down.
func (h *HealthServer) Run(ctx context.Context) {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	if h.service != "" {
		h.srv.SetServingStatus(h.service, status)
	}
}
