package app

import (
	"context"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/ois/internal/health"
)

const healthSyncInterval = 10 * time.Second

// grpcRuntime — gRPC-сервер со стандартным health-сервисом и reflection.
type grpcRuntime struct {
	server *grpc.Server
	health *health.Server
}

func newGRPCServer(registerer prometheus.Registerer, logger *log.Entry) *grpcRuntime {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return &grpcRuntime{server: server, health: healthServer}
}

func (g *grpcRuntime) serve(lis net.Listener, logger *log.Entry, errCh chan<- error) {
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		if err := g.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()
}

// syncHealth переносит результат HTTP health checks в grpc.health.v1.
func (g *grpcRuntime) syncHealth(ctx context.Context, handler *healthcheck.Handler, interval time.Duration) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if handler.Evaluate(ctx).Status == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		g.health.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// stop останавливает сервер, принудительно после таймаута.
func (g *grpcRuntime) stop(timeout time.Duration, logger *log.Entry) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		g.server.Stop()
	}
}
