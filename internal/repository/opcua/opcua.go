package opcua

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/config"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"
)

const (
	backend = "opcua"

	// конец интервала HistoryRead не включается
	endEpsilon = time.Millisecond
)

// session часть *opcua.Client, нужная историану
type session interface {
	HistoryReadRawModified(ctx context.Context, nodes []*ua.HistoryReadValueID, details *ua.ReadRawModifiedDetails) (*ua.HistoryReadResponse, error)
	State() opcua.ConnState
}

// OPCUAHistorian читает историю тегов через HistoryRead (raw) сервера OPC UA.
// Канал адресуется строковым NodeID ns=<namespace>;s=<interface>.<tag>.
type OPCUAHistorian struct {
	client    session
	closer    func(ctx context.Context) error
	namespace uint16
	logger    *zap.Logger
}

func NewOPCUAHistorian(ctx context.Context, cfg config.OPCUAConfig, logger *zap.Logger) (*OPCUAHistorian, error) {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName("Traceability Genealogy"),
		opcua.AutoReconnect(true),
	}
	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	client, err := opcua.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}

	h := newWithSession(client, uint16(cfg.Namespace), logger)
	h.closer = client.Close
	return h, nil
}

func newWithSession(s session, namespace uint16, logger *zap.Logger) *OPCUAHistorian {
	return &OPCUAHistorian{
		client:    s,
		namespace: namespace,
		logger:    logger,
	}
}

func (r *OPCUAHistorian) RangedRead(ctx context.Context, ch domain.SignalIdentity, start, end time.Time, _ historian.Options) (historian.Result, error) {
	defer observe("ranged_read", time.Now())

	points, err := r.read(ctx, ch, &ua.ReadRawModifiedDetails{
		StartTime: start.UTC(),
		EndTime:   end.UTC().Add(endEpsilon),
	})
	if err != nil {
		return historian.Result{}, fmt.Errorf("ranged read %s: %w", ch, err)
	}

	kept := points[:0]
	for _, p := range points {
		if !p.Time.Before(start) && !p.Time.After(end) {
			kept = append(kept, p)
		}
	}
	return historian.Found(kept), nil
}

func (r *OPCUAHistorian) PointInTimeRead(ctx context.Context, ch domain.SignalIdentity, timestamps []time.Time, _ historian.Options) (historian.Result, error) {
	defer observe("point_in_time_read", time.Now())

	points := make([]domain.Point, 0, len(timestamps))
	for _, at := range timestamps {
		last, err := r.backward(ctx, ch, at, 1)
		if err != nil {
			return historian.Result{}, fmt.Errorf("point in time read %s: %w", ch, err)
		}
		if len(last) == 0 {
			continue
		}
		points = append(points, domain.Point{Time: at, Value: last[0].Value})
	}
	return historian.Found(points), nil
}

func (r *OPCUAHistorian) DirectionalRead(ctx context.Context, ch domain.SignalIdentity, start time.Time, dir historian.Direction, count int, _ historian.Options) (historian.Result, error) {
	defer observe("directional_read_"+dir.String(), time.Now())

	var (
		points []domain.Point
		err    error
	)
	if dir == historian.Backward {
		points, err = r.backward(ctx, ch, start, count)
	} else {
		// EndTime не задан: сервер отдаёт NumValuesPerNode значений вперёд от StartTime
		points, err = r.read(ctx, ch, &ua.ReadRawModifiedDetails{
			StartTime:        start.UTC(),
			NumValuesPerNode: uint32(count),
		})
	}
	if err != nil {
		return historian.Result{}, fmt.Errorf("directional read %s: %w", ch, err)
	}
	if len(points) > count {
		points = points[:count]
	}
	return historian.Found(points), nil
}

func (r *OPCUAHistorian) Ping(_ context.Context) error {
	defer observe("ping", time.Now())

	if state := r.client.State(); state != opcua.Connected {
		return fmt.Errorf("opcua session is %v", state)
	}
	return nil
}

func (r *OPCUAHistorian) Close(ctx context.Context) error {
	if r.closer == nil {
		return nil
	}
	return r.closer(ctx)
}

// backward не больше count значений с отметкой <= at, ближайшие первыми
func (r *OPCUAHistorian) backward(ctx context.Context, ch domain.SignalIdentity, at time.Time, count int) ([]domain.Point, error) {
	// StartTime не задан: сервер читает назад от EndTime
	points, err := r.read(ctx, ch, &ua.ReadRawModifiedDetails{
		EndTime:          at.UTC().Add(endEpsilon),
		NumValuesPerNode: uint32(count + 1),
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Point, 0, count)
	for i := len(points) - 1; i >= 0 && len(out) < count; i-- {
		if !points[i].Time.After(at) {
			out = append(out, points[i])
		}
	}
	return out, nil
}

// read выполняет HistoryRead, следуя continuation point; точки по возрастанию времени
func (r *OPCUAHistorian) read(ctx context.Context, ch domain.SignalIdentity, details *ua.ReadRawModifiedDetails) ([]domain.Point, error) {
	nodeID := ua.NewStringNodeID(r.namespace, ch.Interface+"."+ch.Name)

	var (
		points       []domain.Point
		continuation []byte
	)
	for {
		resp, err := r.client.HistoryReadRawModified(ctx, []*ua.HistoryReadValueID{{
			NodeID:            nodeID,
			DataEncoding:      &ua.QualifiedName{},
			ContinuationPoint: continuation,
		}}, details)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Results) == 0 {
			return points, nil
		}

		res := resp.Results[0]
		switch {
		case res.StatusCode == ua.StatusBadNoData, res.StatusCode == ua.StatusGoodNoData:
			return points, nil
		case res.StatusCode != ua.StatusOK:
			return nil, fmt.Errorf("history read %s: %w", nodeID, res.StatusCode)
		}

		points = append(points, decodeHistoryData(res.HistoryData)...)

		if len(res.ContinuationPoint) == 0 {
			break
		}
		continuation = res.ContinuationPoint
	}

	// при чтении назад сервер отдаёт значения в обратном порядке
	slices.SortStableFunc(points, func(a, b domain.Point) int { return a.Time.Compare(b.Time) })
	return points, nil
}

func decodeHistoryData(ext *ua.ExtensionObject) []domain.Point {
	if ext == nil {
		return nil
	}
	data, ok := ext.Value.(*ua.HistoryData)
	if !ok {
		return nil
	}

	points := make([]domain.Point, 0, len(data.DataValues))
	for _, dv := range data.DataValues {
		if dv == nil || dv.Value == nil || dv.Status != ua.StatusOK {
			continue
		}
		ts := dv.SourceTimestamp
		if ts.IsZero() {
			ts = dv.ServerTimestamp
		}
		if ts.IsZero() {
			continue
		}
		points = append(points, domain.Point{Time: ts, Value: fmt.Sprint(dv.Value.Value())})
	}
	return points
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "sign_and_encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	switch strings.ToLower(policy) {
	case "basic128rsa15":
		return "Basic128Rsa15"
	case "basic256":
		return "Basic256"
	case "basic256sha256":
		return "Basic256Sha256"
	case "aes128_sha256_rsaoaep":
		return "Aes128_Sha256_RsaOaep"
	case "aes256_sha256_rsapss":
		return "Aes256_Sha256_RsaPss"
	default:
		return "None"
	}
}

func observe(operation string, start time.Time) {
	metrics.HistorianQueryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
