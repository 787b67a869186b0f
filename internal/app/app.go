package app

import (
	"context"
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ois/internal/health"
	"github.com/vladislavdragonenkov/ois/internal/metrics"
	"github.com/vladislavdragonenkov/ois/internal/service/ingest"
	"github.com/vladislavdragonenkov/ois/internal/service/query"
	"github.com/vladislavdragonenkov/ois/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/ois/internal/version"
)

// Run поднимает хранилище, consumer событий, HTTP API, gRPC health и служебный
// HTTP, и блокируется до отмены ctx или ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	ingestMetrics := metrics.NewIngestMetrics()
	ingestSvc := ingest.NewService(deps.repo, ingestMetrics, logger.WithField("component", "ingest"))
	querySvc := query.NewService(deps.repo, ingestMetrics, logger.WithField("component", "query"))

	kafkaRT, err := initKafka(cfg, ingestSvc, ingestMetrics, logger.WithField("layer", "kafka"))
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("kafka", kafkaRT.checker())

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		kafkaRT.stop(logger)
		return fmt.Errorf("listen grpc: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)

	gin.SetMode(gin.ReleaseMode)
	errCh := make(chan error, 2)
	apiSrv := startAPIServer(cfg.HTTPAddr, httpapi.NewRouter(querySvc, logger.WithField("component", "http-api")), logger, errCh)

	grpcRT := newGRPCServer(prometheus.DefaultRegisterer, logger)
	grpcRT.serve(lis, logger, errCh)
	go grpcRT.syncHealth(runCtx, healthHandler, healthSyncInterval)

	if err := kafkaRT.start(runCtx); err != nil {
		errCh <- err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		runErr = err
	}

	cancel()
	kafkaRT.stop(logger)
	shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
	grpcRT.stop(cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)

	return runErr
}
