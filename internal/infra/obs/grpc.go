package obs

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "roomstay"

// GRPCHealth serves grpc.health.v1.Health, refreshing the status from ready
// every interval.
type GRPCHealth struct {
	Addr     string
	Ready    func(ctx context.Context) error
	Interval time.Duration
	Logger   *slog.Logger
}

func (g GRPCHealth) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.Addr)
	if err != nil {
		return err
	}
	server := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	interval := g.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	g.refresh(ctx, hs)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				server.GracefulStop()
				return
			case <-ticker.C:
				g.refresh(ctx, hs)
			}
		}
	}()

	if g.Logger != nil {
		g.Logger.Info("grpc health listening", "addr", g.Addr)
	}
	if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (g GRPCHealth) refresh(ctx context.Context, hs *health.Server) {
	status := healthpb.HealthCheckResponse_SERVING
	if g.Ready != nil {
		if err := g.Ready(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if g.Logger != nil && ctx.Err() == nil {
				g.Logger.Warn("readiness check failed", "error", err)
			}
		}
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}
