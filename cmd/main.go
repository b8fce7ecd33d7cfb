package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/config"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/genealogy"
	appgrpc "github.com/micheltsarasoa/dataparcwebapitraceability/internal/grpc"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	apphttp "github.com/micheltsarasoa/dataparcwebapitraceability/internal/http"
	applogger "github.com/micheltsarasoa/dataparcwebapitraceability/internal/logger"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/repository/influx"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/repository/opcua"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/repository/postgres"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const healthProbeInterval = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "traceability",
		Short:         "Temporal genealogy resolution over a process historian",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (environment overrides it)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the REST and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (historian driver %q, %d workers)\n",
				cfg.Historian.Driver, cfg.WorkerCount)
			return err
		},
	})

	return root
}

func serve(cfg *config.Config) error {
	// Создаём отменяемый контекст для всего приложения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // Гарантирует отмену при выходе

	logger, err := applogger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Error during logger sync: %v", err)
		}
	}()

	logger.Info("Starting Traceability Genealogy Service",
		zap.String("version", "1.0.0"),
		zap.String("historian", cfg.Historian.Driver),
		zap.Time("limit_dt", cfg.LimitDT),
	)

	// Инициализация историана
	backend, closeBackend, err := openHistorian(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to historian", zap.Error(err))
		return err
	}
	defer func() {
		closeBackend()
		logger.Info("Historian connection closed")
	}()

	logger.Info("Historian connection established")

	hist := historian.NewInstrumented(backend, cfg.Historian.RateLimit, cfg.Historian.RateBurst, logger)

	// Инициализация движка и сервиса
	runner := scheduler.NewScheduler(cfg.WorkerCount, cfg.Timeouts.Station, logger)
	engine := genealogy.NewEngine(hist, runner, genealogy.SettingsFromConfig(cfg), logger)
	traceService := service.NewTraceabilityService(engine, hist, cfg.LimitDT, logger)

	// Запуск HTTP сервера
	httpServer := apphttp.NewHTTPServer(cfg.RESTPort, traceService, logger)
	go func() {
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			return
		}
	}()

	// Запуск GRPC сервера
	grpcServer := appgrpc.NewGRPCServer(traceService, logger)
	go func() {
		if err := grpcServer.Start(cfg.GRPCPort); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
			return
		}
	}()
	go grpcServer.WatchHistorian(ctx, healthProbeInterval)

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down servers...")

	// Отменяем контекст для всех компонентов (мониторинг соединений, проба историана)
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Останавливаем HTTP сервер
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// Останавливаем GRPC сервер
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("gRPC server shutdown due to timeout")
		} else {
			logger.Error("gRPC server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Traceability Genealogy Service stopped")
	return nil
}

// openHistorian выбирает бэкенд по historian.driver
func openHistorian(ctx context.Context, cfg *config.Config, logger *zap.Logger) (historian.Historian, func(), error) {
	switch cfg.Historian.Driver {
	case config.DriverPostgres:
		h, err := postgres.NewPostgresHistorian(ctx, cfg.Historian.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		return h, h.Close, nil

	case config.DriverInflux:
		h := influx.NewInfluxHistorian(cfg.Historian.Influx, logger)
		if err := h.Ping(ctx); err != nil {
			h.Close()
			return nil, nil, fmt.Errorf("failed to ping influxdb: %w", err)
		}
		return h, h.Close, nil

	case config.DriverOPCUA:
		h, err := opcua.NewOPCUAHistorian(ctx, cfg.Historian.OPCUA, logger)
		if err != nil {
			return nil, nil, err
		}
		return h, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.Close(closeCtx); err != nil {
				logger.Warn("Failed to close opcua session", zap.Error(err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown historian driver %q", cfg.Historian.Driver)
	}
}
