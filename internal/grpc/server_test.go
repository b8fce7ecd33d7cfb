package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ResolveDescendant(ctx context.Context, req *domain.DescendantRequest) (*domain.GenealogyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenealogyResult), args.Error(1)
}

func (m *MockService) ResolveAscendant(ctx context.Context, req *domain.AscendantRequest) (*domain.GenealogyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenealogyResult), args.Error(1)
}

func (m *MockService) CheckReliability(ctx context.Context, req *domain.ReliabilityRequest) (*domain.ReliabilityResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReliabilityResult), args.Error(1)
}

func (m *MockService) LookupPosition(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LookupResult), args.Error(1)
}

func (m *MockService) SnapshotIdentifiers(ctx context.Context, req *domain.SnapshotRequest) (*domain.SnapshotResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SnapshotResult), args.Error(1)
}

func (m *MockService) CheckHistorian(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	require.NoError(t, err)
	return s
}

func TestGRPCServer_ResolveDescendant(t *testing.T) {
	mockService := new(MockService)
	logger, _ := zap.NewDevelopment()
	server := NewGRPCServer(mockService, logger)

	from := time.Date(2024, 4, 8, 2, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 8, 3, 0, 0, 0, time.UTC)

	mockService.On("ResolveDescendant", mock.Anything, mock.MatchedBy(func(req *domain.DescendantRequest) bool {
		return req.TargetIdentifier == "DM-1" &&
			req.IncludeRework &&
			req.FromDT.Equal(time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC)) &&
			len(req.Stations) == 1 && req.Stations[0].TriggerChannel == "OP10.Trigger"
	})).Return(&domain.GenealogyResult{
		RequestID: "req-1",
		FromDT:    from,
		ToDT:      to,
		Status:    domain.StatusOK,
		Stations: []domain.StationResult{{
			Machine: "M1",
			Station: "OP10",
			Occurrences: []domain.Occurrence{
				{Channel: "OP10.DM", Value: "DM-1", FromDT: from, ToDT: to},
			},
			Status: domain.StationOK,
		}},
	}, nil)

	in := mustStruct(t, map[string]any{
		"fromDT":           "2024-04-08T00:00:00Z",
		"toDT":             "2024-04-08T12:00:00Z",
		"includeRework":    true,
		"targetIdentifier": "DM-1",
		"stations": []any{map[string]any{
			"machine":           "M1",
			"station":           "OP10",
			"identifierChannel": "OP10.DM",
			"triggerChannel":    "OP10.Trigger",
		}},
	})

	resp, err := server.ResolveDescendant(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Fields["status"].GetStringValue())
	assert.Equal(t, "req-1", resp.Fields["requestId"].GetStringValue())
	stations := resp.Fields["stations"].GetListValue().GetValues()
	require.Len(t, stations, 1)
	occurrences := stations[0].GetStructValue().Fields["occurrences"].GetListValue().GetValues()
	require.Len(t, occurrences, 1)
	assert.Equal(t, "DM-1", occurrences[0].GetStructValue().Fields["value"].GetStringValue())
	mockService.AssertExpectations(t)
}

func TestGRPCServer_Errors(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockService := new(MockService)
	server := &GRPCServer{service: mockService, logger: logger}

	mockService.On("ResolveAscendant", mock.Anything, mock.Anything).
		Return(nil, domain.NewValidationError("missing or malformed fields", "AscendantRequest.LookupValue")).Once()
	mockService.On("ResolveAscendant", mock.Anything, mock.Anything).
		Return(nil, errors.New("scheduler exploded")).Once()

	in := mustStruct(t, map[string]any{"lookupValue": ""})

	_, err := server.ResolveAscendant(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = server.ResolveAscendant(context.Background(), in)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.NotContains(t, err.Error(), "scheduler exploded")

	_, err = server.LookupPosition(context.Background(), mustStruct(t, map[string]any{"fromDT": "yesterday"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	mockService.AssertNotCalled(t, "LookupPosition", mock.Anything, mock.Anything)
}

func TestGRPCServer_UnknownFieldRejected(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockService := new(MockService)
	server := &GRPCServer{service: mockService, logger: logger}

	in := mustStruct(t, map[string]any{
		"lookupValue": "PN-1",
		"fromDate":    "2024-04-08T00:00:00Z",
	})

	_, err := server.ResolveAscendant(context.Background(), in)

	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "fromDate")
	mockService.AssertNotCalled(t, "ResolveAscendant", mock.Anything, mock.Anything)
}

func TestGRPCServer_OverTheWire(t *testing.T) {
	mockService := new(MockService)
	logger, _ := zap.NewDevelopment()
	server := NewGRPCServer(mockService, logger)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(func() { server.server.Stop() })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mockService.On("SnapshotIdentifiers", mock.Anything, mock.Anything).
		Return(&domain.SnapshotResult{RequestID: "req-2", Status: domain.StatusNotFound, Stations: []domain.SnapshotStationResult{}}, nil)

	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+serviceName+"/SnapshotIdentifiers", mustStruct(t, map[string]any{"stations": []any{}}), out)
	require.NoError(t, err)
	assert.Equal(t, "NotFound", out.Fields["status"].GetStringValue())

	mockService.On("CheckHistorian", mock.Anything).Return(errors.New("historian down")).Once()
	server.probe(ctx)

	health := healthpb.NewHealthClient(conn)
	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	mockService.On("CheckHistorian", mock.Anything).Return(nil).Once()
	server.probe(ctx)

	resp, err = health.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	mockService.AssertExpectations(t)
}
