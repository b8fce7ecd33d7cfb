package grpc

import (
	"context"
	"net"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TraceabilityService описывает бизнес-логику, доступную по gRPC
type TraceabilityService interface {
	ResolveDescendant(ctx context.Context, req *domain.DescendantRequest) (*domain.GenealogyResult, error)
	ResolveAscendant(ctx context.Context, req *domain.AscendantRequest) (*domain.GenealogyResult, error)
	CheckReliability(ctx context.Context, req *domain.ReliabilityRequest) (*domain.ReliabilityResult, error)
	LookupPosition(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error)
	SnapshotIdentifiers(ctx context.Context, req *domain.SnapshotRequest) (*domain.SnapshotResult, error)
	CheckHistorian(ctx context.Context) error
}

// GRPCServer реализует gRPC сервер с метриками и логированием
type GRPCServer struct {
	server  *grpc.Server
	health  *health.Server
	service TraceabilityService
	logger  *zap.Logger
}

func NewGRPCServer(service TraceabilityService, logger *zap.Logger) *GRPCServer {
	loggingInterceptor := logging.UnaryServerInterceptor(interceptorLogger(logger))
	metricsInterceptor := grpc_prometheus.UnaryServerInterceptor
	customMetricsInterceptor := unaryMetricsInterceptor()

	chain := grpc.ChainUnaryInterceptor(
		loggingInterceptor,
		metricsInterceptor,
		customMetricsInterceptor,
	)

	s := &GRPCServer{
		server:  grpc.NewServer(chain),
		health:  health.NewServer(),
		service: service,
		logger:  logger,
	}

	s.server.RegisterService(&traceabilityServiceDesc, s)
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	grpc_prometheus.Register(s.server)
	grpc_prometheus.EnableHandlingTimeHistogram()

	return s
}

func (s *GRPCServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down gRPC server")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

// WatchHistorian переводит grpc.health.v1 в NOT_SERVING, пока историан недоступен
func (s *GRPCServer) WatchHistorian(ctx context.Context, interval time.Duration) {
	s.probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *GRPCServer) probe(ctx context.Context) {
	next := healthpb.HealthCheckResponse_SERVING
	if err := s.service.CheckHistorian(ctx); err != nil {
		s.logger.Warn("Historian health probe failed", zap.Error(err))
		next = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", next)
	s.health.SetServingStatus(serviceName, next)
}

// Custom metrics interceptor для детального отслеживания статусов и длительности с статусом
func unaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		var statusCode string
		if err != nil {
			if st, ok := status.FromError(err); ok {
				statusCode = st.Code().String()
			} else {
				statusCode = codes.Unknown.String()
			}
		} else {
			statusCode = codes.OK.String()
		}

		duration := time.Since(start).Seconds()

		metrics.GRPCRequests.WithLabelValues(info.FullMethod, statusCode).Inc()
		metrics.GRPCRequestDuration.WithLabelValues(info.FullMethod, statusCode).Observe(duration)

		return resp, err
	}
}

// Logger adapter для grpc middleware
func interceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(_ context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i < len(fields); i += 2 {
			key := fields[i].(string)
			value := fields[i+1]
			f = append(f, zap.Any(key, value))
		}
		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)

		switch lvl {
		case logging.LevelDebug:
			logger.Debug(msg)
		case logging.LevelInfo:
			logger.Info(msg)
		case logging.LevelWarn:
			logger.Warn(msg)
		case logging.LevelError:
			logger.Error(msg)
		default:
			logger.Info(msg)
		}
	})
}

func (s *GRPCServer) ResolveDescendant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.DescendantRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := s.service.ResolveDescendant(ctx, &req)
	if err != nil {
		return nil, s.toStatus("Failed to resolve descendant genealogy", err)
	}
	return encodeStruct(res)
}

func (s *GRPCServer) ResolveAscendant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.AscendantRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := s.service.ResolveAscendant(ctx, &req)
	if err != nil {
		return nil, s.toStatus("Failed to resolve ascendant genealogy", err)
	}
	return encodeStruct(res)
}

func (s *GRPCServer) CheckReliability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.ReliabilityRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := s.service.CheckReliability(ctx, &req)
	if err != nil {
		return nil, s.toStatus("Failed to check reliability", err)
	}
	return encodeStruct(res)
}

func (s *GRPCServer) LookupPosition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.LookupRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := s.service.LookupPosition(ctx, &req)
	if err != nil {
		return nil, s.toStatus("Failed to look up identifier position", err)
	}
	return encodeStruct(res)
}

func (s *GRPCServer) SnapshotIdentifiers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.SnapshotRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := s.service.SnapshotIdentifiers(ctx, &req)
	if err != nil {
		return nil, s.toStatus("Failed to snapshot identifiers", err)
	}
	return encodeStruct(res)
}

func (s *GRPCServer) toStatus(msg string, err error) error {
	if domain.IsValidation(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Error(msg, zap.Error(err))
	return status.Error(codes.Internal, "failed to resolve request")
}
