package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/config"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const backend = "postgres"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// PostgresHistorian читает историю тегов из таблицы
// (interface_group, interface_name, tag, ts, value).
type PostgresHistorian struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

func NewPostgresHistorian(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresHistorian, error) {
	// Конфигурация пула
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Проверка соединения
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	h, err := NewWithDB(stdlib.OpenDBFromPool(pool), cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	h.pool = pool

	go monitorConnections(ctx, pool, logger)

	return h, nil
}

// NewWithDB поверх готового *sql.DB
func NewWithDB(db *sql.DB, table string, logger *zap.Logger) (*PostgresHistorian, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid historian table name %q", table)
	}
	return &PostgresHistorian{
		db:     db,
		table:  table,
		logger: logger,
	}, nil
}

// monitorConnections периодически обновляет метрики соединений и завершается при отмене ctx
func monitorConnections(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping monitorConnections goroutine due to context cancellation")
			return
		case <-ticker.C:
			stats := pool.Stat()
			metrics.HistorianActiveConnections.Set(float64(stats.AcquiredConns()))
			metrics.HistorianIdleConnections.Set(float64(stats.IdleConns()))

			logger.Debug("Database connection stats",
				zap.Int("acquired", int(stats.AcquiredConns())),
				zap.Int("idle", int(stats.IdleConns())),
				zap.Int("max", int(stats.MaxConns())),
			)
		}
	}
}

func (r *PostgresHistorian) RangedRead(ctx context.Context, ch domain.SignalIdentity, start, end time.Time, _ historian.Options) (historian.Result, error) {
	defer observe("ranged_read", time.Now())

	query := fmt.Sprintf(
		"SELECT ts, value FROM %s WHERE interface_group = $1 AND interface_name = $2 AND tag = $3 AND ts >= $4 AND ts <= $5 ORDER BY ts",
		r.table)

	points, err := r.query(ctx, query, ch.Group, ch.Interface, ch.Name, start, end)
	if err != nil {
		return historian.Result{}, fmt.Errorf("ranged read %s: %w", ch, err)
	}
	return historian.Found(points), nil
}

func (r *PostgresHistorian) PointInTimeRead(ctx context.Context, ch domain.SignalIdentity, timestamps []time.Time, _ historian.Options) (historian.Result, error) {
	defer observe("point_in_time_read", time.Now())

	query := fmt.Sprintf(
		"SELECT value FROM %s WHERE interface_group = $1 AND interface_name = $2 AND tag = $3 AND ts <= $4 ORDER BY ts DESC LIMIT 1",
		r.table)

	points := make([]domain.Point, 0, len(timestamps))
	for _, at := range timestamps {
		var value string
		err := r.db.QueryRowContext(ctx, query, ch.Group, ch.Interface, ch.Name, at).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return historian.Result{}, fmt.Errorf("point in time read %s: %w", ch, err)
		}
		points = append(points, domain.Point{Time: at, Value: value})
	}
	return historian.Found(points), nil
}

func (r *PostgresHistorian) DirectionalRead(ctx context.Context, ch domain.SignalIdentity, start time.Time, dir historian.Direction, count int, _ historian.Options) (historian.Result, error) {
	defer observe("directional_read_"+dir.String(), time.Now())

	cmp, order := ">=", "ASC"
	if dir == historian.Backward {
		cmp, order = "<=", "DESC"
	}
	query := fmt.Sprintf(
		"SELECT ts, value FROM %s WHERE interface_group = $1 AND interface_name = $2 AND tag = $3 AND ts %s $4 ORDER BY ts %s LIMIT $5",
		r.table, cmp, order)

	points, err := r.query(ctx, query, ch.Group, ch.Interface, ch.Name, start, count)
	if err != nil {
		return historian.Result{}, fmt.Errorf("directional read %s: %w", ch, err)
	}
	return historian.Found(points), nil
}

func (r *PostgresHistorian) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return r.db.PingContext(ctx)
}

func (r *PostgresHistorian) Close() {
	if err := r.db.Close(); err != nil {
		r.logger.Warn("failed to close historian database", zap.Error(err))
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *PostgresHistorian) query(ctx context.Context, query string, args ...any) ([]domain.Point, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.Point
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return points, nil
}

func observe(operation string, start time.Time) {
	metrics.HistorianQueryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
