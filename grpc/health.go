package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zefir/statki-go-backend/logger"
)

// GameService is the name the game socket reports its health under.
const GameService = "statki.Game"

// HealthServer exposes the standard grpc health service for the process.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
}

func NewHealthServer() *HealthServer {
	h := &HealthServer{srv: grpc.NewServer(), health: health.NewServer()}
	healthpb.RegisterHealthServer(h.srv, h.health)
	h.SetServing(false)
	return h
}

// SetServing flips both the overall and the game service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(GameService, status)
}

func (h *HealthServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Log.Info().Str("addr", addr).Msg("gRPC health server started")
	return h.Serve(ctx, ln)
}

// Serve blocks until ctx is done, then reports NOT_SERVING and stops.
func (h *HealthServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		h.health.Shutdown()
		h.srv.GracefulStop()
	})
	defer stop()
	if err := h.srv.Serve(ln); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
