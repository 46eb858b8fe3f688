package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/port"
)

const LedgerServiceName = "stockroom.Ledger"

// GRPCHandler reports ledger availability over the standard health protocol.
type GRPCHandler struct {
	health *health.Server
	store  port.LedgerStore
}

func NewGRPCHandler(store port.LedgerStore) *GRPCHandler {
	return &GRPCHandler{
		health: health.NewServer(),
		store:  store,
	}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Refresh pings the store and publishes the result as the ledger status.
func (h *GRPCHandler) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("ledger store unreachable")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(LedgerServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Shutdown marks every service NOT_SERVING ahead of GracefulStop.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
