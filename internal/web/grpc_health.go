package web

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/vault"
)

const (
	// VaultHealthService accepts deposits while SERVING.
	VaultHealthService = "clvault.Vault"
	// StoreHealthService reports the persistence layer, SERVING when it is disabled.
	StoreHealthService = "clvault.Store"

	healthRefreshInterval = 15 * time.Second
)

// HealthServer exposes the standard gRPC health service for the vault process.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	vault      *vault.Vault
}

// NewHealthServer creates the gRPC health server. Nothing listens until Start.
func NewHealthServer(port string, v *vault.Vault) *HealthServer {
	if port == "" {
		port = "9090"
	}
	grpcServer := grpc.NewServer()

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	h := &HealthServer{
		grpcServer: grpcServer,
		health:     healthServer,
		addr:       ":" + port,
		vault:      v,
	}
	h.Refresh(context.Background())
	return h
}

// Refresh recomputes the per-service statuses from the vault and the database.
func (h *HealthServer) Refresh(ctx context.Context) {
	vaultStatus := healthpb.HealthCheckResponse_SERVING
	if h.vault.Phase() != vault.PhaseActive || h.vault.CheckInvariants() != nil {
		vaultStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(VaultHealthService, vaultStatus)

	storeStatus := healthpb.HealthCheckResponse_SERVING
	if state.DB != nil && state.TestDBConnection(ctx) != nil {
		storeStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(StoreHealthService, storeStatus)
}

// Start listens on the configured port and serves until ctx is cancelled.
func (h *HealthServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("grpc health listen %s: %w", h.addr, err)
	}

	go func() {
		ticker := time.NewTicker(healthRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.grpcServer.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh(ctx)
			}
		}
	}()

	webLogger.Info().Str("addr", h.addr).Msg("gRPC health server listening")
	if err := h.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("grpc health serve: %w", err)
	}
	return nil
}
