package influx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/config"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

const backend = "influx"

// InfluxHistorian хранит историю тегов в measurement с тегами
// interface_group, interface_name, tag и строковым полем value.
type InfluxHistorian struct {
	client      influxdb2.Client
	queryAPI    api.QueryAPI
	bucket      string
	measurement string
	logger      *zap.Logger
}

func NewInfluxHistorian(cfg config.InfluxConfig, logger *zap.Logger) *InfluxHistorian {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &InfluxHistorian{
		client:      client,
		queryAPI:    client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
		logger:      logger,
	}
}

func (r *InfluxHistorian) RangedRead(ctx context.Context, ch domain.SignalIdentity, start, end time.Time, _ historian.Options) (historian.Result, error) {
	defer observe("ranged_read", time.Now())

	// stop в range() не включается
	query := r.flux(ch, fluxTime(start), fluxTime(end.Add(time.Nanosecond))) +
		`
  |> sort(columns: ["_time"])`

	points, err := r.run(ctx, query)
	if err != nil {
		return historian.Result{}, fmt.Errorf("ranged read %s: %w", ch, err)
	}
	return historian.Found(points), nil
}

func (r *InfluxHistorian) PointInTimeRead(ctx context.Context, ch domain.SignalIdentity, timestamps []time.Time, _ historian.Options) (historian.Result, error) {
	defer observe("point_in_time_read", time.Now())

	points := make([]domain.Point, 0, len(timestamps))
	for _, at := range timestamps {
		query := r.flux(ch, "0", fluxTime(at.Add(time.Nanosecond))) +
			`
  |> last()`

		found, err := r.run(ctx, query)
		if err != nil {
			return historian.Result{}, fmt.Errorf("point in time read %s: %w", ch, err)
		}
		if len(found) == 0 {
			continue
		}
		points = append(points, domain.Point{Time: at, Value: found[len(found)-1].Value})
	}
	return historian.Found(points), nil
}

func (r *InfluxHistorian) DirectionalRead(ctx context.Context, ch domain.SignalIdentity, start time.Time, dir historian.Direction, count int, _ historian.Options) (historian.Result, error) {
	defer observe("directional_read_"+dir.String(), time.Now())

	var query string
	if dir == historian.Backward {
		query = r.flux(ch, "0", fluxTime(start.Add(time.Nanosecond))) +
			fmt.Sprintf(`
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)`, count)
	} else {
		query = r.flux(ch, fluxTime(start), "") +
			fmt.Sprintf(`
  |> sort(columns: ["_time"])
  |> limit(n: %d)`, count)
	}

	points, err := r.run(ctx, query)
	if err != nil {
		return historian.Result{}, fmt.Errorf("directional read %s: %w", ch, err)
	}
	return historian.Found(points), nil
}

func (r *InfluxHistorian) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())

	ok, err := r.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influxdb is not ready")
	}
	return nil
}

func (r *InfluxHistorian) Close() {
	r.client.Close()
}

// flux общий префикс запроса; пустой stop означает now()
func (r *InfluxHistorian) flux(ch domain.SignalIdentity, start, stop string) string {
	rng := "start: " + start
	if stop != "" {
		rng += ", stop: " + stop
	}

	return fmt.Sprintf(`from(bucket: %s)
  |> range(%s)
  |> filter(fn: (r) => r._measurement == %s and r._field == "value")
  |> filter(fn: (r) => r.interface_group == %s and r.interface_name == %s and r.tag == %s)`,
		quote(r.bucket), rng, quote(r.measurement),
		quote(ch.Group), quote(ch.Interface), quote(ch.Name))
}

func (r *InfluxHistorian) run(ctx context.Context, query string) ([]domain.Point, error) {
	result, err := r.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("influxdb query failed: %w", err)
	}
	defer result.Close()

	var points []domain.Point
	for result.Next() {
		record := result.Record()
		points = append(points, domain.Point{
			Time:  record.Time(),
			Value: fmt.Sprint(record.Value()),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading influxdb results: %w", result.Err())
	}
	return points, nil
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)

func quote(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func observe(operation string, start time.Time) {
	metrics.HistorianQueryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
