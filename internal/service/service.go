package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"
	"github.com/micheltsarasoa/dataparcwebapitraceability/pkg/utils"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Engine операции движка генеалогии
type Engine interface {
	ResolveDescendant(ctx context.Context, req *domain.DescendantRequest) (*domain.GenealogyResult, error)
	ResolveAscendant(ctx context.Context, req *domain.AscendantRequest) (*domain.GenealogyResult, error)
	CheckReliability(ctx context.Context, req *domain.ReliabilityRequest) (*domain.ReliabilityResult, error)
	LookupPosition(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error)
	SnapshotIdentifiers(ctx context.Context, req *domain.SnapshotRequest) (*domain.SnapshotResult, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// TraceabilityService валидирует запросы, зажимает диапазоны и вызывает движок
type TraceabilityService struct {
	engine    Engine
	historian HealthChecker
	validate  *validator.Validate
	floor     time.Time
	now       func() time.Time
	logger    *zap.Logger
}

func NewTraceabilityService(engine Engine, historian HealthChecker, floor time.Time, logger *zap.Logger) *TraceabilityService {
	return &TraceabilityService{
		engine:    engine,
		historian: historian,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		floor:     floor,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *TraceabilityService) CheckHistorian(ctx context.Context) error {
	return s.historian.Ping(ctx)
}

func (s *TraceabilityService) ResolveDescendant(ctx context.Context, req *domain.DescendantRequest) (*domain.GenealogyResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	r, err := s.clamp(req.FromDT, req.ToDT)
	if err != nil {
		return nil, err
	}
	req.FromDT, req.ToDT = r.From, r.To

	requestID := utils.NewRequestID()
	s.logger.Info("[TraceabilityService] resolving descendant genealogy",
		zap.String("request_id", requestID),
		zap.String("identifier", req.TargetIdentifier),
		zap.Bool("include_rework", req.IncludeRework),
		zap.Int("stations", len(req.Stations)),
		zap.Time("from", req.FromDT),
		zap.Time("to", req.ToDT),
	)

	res, err := s.engine.ResolveDescendant(ctx, req)
	if err != nil {
		s.logger.Error("[TraceabilityService] descendant genealogy failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}
	res.RequestID = requestID
	s.observe("descendant", requestID, res.Status)
	return res, nil
}

func (s *TraceabilityService) ResolveAscendant(ctx context.Context, req *domain.AscendantRequest) (*domain.GenealogyResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	r, err := s.clamp(req.FromDT, req.ToDT)
	if err != nil {
		return nil, err
	}
	req.FromDT, req.ToDT = r.From, r.To

	requestID := utils.NewRequestID()
	s.logger.Info("[TraceabilityService] resolving ascendant genealogy",
		zap.String("request_id", requestID),
		zap.String("lookup_value", req.LookupValue),
		zap.Int("stations", len(req.Stations)),
		zap.Time("from", req.FromDT),
		zap.Time("to", req.ToDT),
	)

	res, err := s.engine.ResolveAscendant(ctx, req)
	if err != nil {
		s.logger.Error("[TraceabilityService] ascendant genealogy failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}
	res.RequestID = requestID
	s.observe("ascendant", requestID, res.Status)
	return res, nil
}

func (s *TraceabilityService) CheckReliability(ctx context.Context, req *domain.ReliabilityRequest) (*domain.ReliabilityResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	r, err := s.clamp(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	req.StartTime, req.EndTime = r.From, r.To

	requestID := utils.NewRequestID()
	res, err := s.engine.CheckReliability(ctx, req)
	if err != nil {
		s.logger.Error("[TraceabilityService] reliability check failed",
			zap.String("request_id", requestID),
			zap.String("data_matrix", req.DataMatrix),
			zap.Error(err))
		return nil, err
	}
	res.RequestID = requestID
	s.observe("reliability", requestID, res.Status)
	return res, nil
}

func (s *TraceabilityService) LookupPosition(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	r, err := s.clamp(req.FromDT, req.ToDT)
	if err != nil {
		return nil, err
	}
	req.FromDT, req.ToDT = r.From, r.To

	requestID := utils.NewRequestID()
	res, err := s.engine.LookupPosition(ctx, req)
	if err != nil {
		s.logger.Error("[TraceabilityService] identifier lookup failed",
			zap.String("request_id", requestID),
			zap.String("data_matrix", req.DataMatrix),
			zap.Error(err))
		return nil, err
	}
	res.RequestID = requestID
	s.observe("lookup", requestID, res.Status)
	return res, nil
}

func (s *TraceabilityService) SnapshotIdentifiers(ctx context.Context, req *domain.SnapshotRequest) (*domain.SnapshotResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	for i := range req.Stations {
		st := &req.Stations[i]
		r, err := s.clamp(st.FromDT, st.ToDT)
		if err != nil {
			return nil, fmt.Errorf("station %s/%s: %w", st.Machine, st.Station, err)
		}
		st.FromDT, st.ToDT = r.From, r.To
	}

	requestID := utils.NewRequestID()
	res, err := s.engine.SnapshotIdentifiers(ctx, req)
	if err != nil {
		s.logger.Error("[TraceabilityService] identifier snapshot failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}
	res.RequestID = requestID
	s.observe("snapshot", requestID, res.Status)
	return res, nil
}

// check отклоняет запрос до любого обращения к историану
func (s *TraceabilityService) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace())
		}
		return domain.NewValidationError("missing or malformed fields", fields...)
	}
	return domain.NewValidationError(err.Error())
}

// clamp: не раньше нижней границы процесса и не позже текущего момента
func (s *TraceabilityService) clamp(from, to time.Time) (domain.TimeRange, error) {
	if from.After(to) {
		from, to = to, from
	}
	r := utils.ClampRange(domain.TimeRange{From: from, To: to}, s.floor, s.now().UTC())
	if r.From.After(r.To) {
		return r, domain.NewValidationError(
			fmt.Sprintf("empty range after clamping: %s > %s", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339)),
			"fromDT", "toDT")
	}
	return r, nil
}

func (s *TraceabilityService) observe(mode, requestID string, status domain.Status) {
	metrics.GenealogyRequests.WithLabelValues(mode, string(status)).Inc()
	s.logger.Info("[TraceabilityService] request resolved",
		zap.String("request_id", requestID),
		zap.String("mode", mode),
		zap.String("status", string(status)),
	)
}
