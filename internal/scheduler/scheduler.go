package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	"go.uber.org/zap"
)

// Task работа одной станции. Задача пишет только в свой слот результата.
type Task func(ctx context.Context) error

// Scheduler выполняет задачи станций пулом воркеров.
// Ошибка одной задачи не отменяет остальные.
type Scheduler struct {
	workers        int
	stationTimeout time.Duration
	logger         *zap.Logger
}

func NewScheduler(workers int, stationTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{
		workers:        workers,
		stationTimeout: stationTimeout,
		logger:         logger,
	}
}

// Run запускает все задачи и ждёт их завершения. errs[i] ошибка задачи i.
// Контекст запроса не может прервать задачи: используются только его значения.
func (s *Scheduler) Run(ctx context.Context, mode string, tasks []Task) []error {
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs
	}

	workers := s.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	s.logger.Debug("[Scheduler] dispatching station tasks",
		zap.String("mode", mode),
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", workers),
	)

	base := context.WithoutCancel(ctx)
	indices := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		metrics.SchedulerActiveWorkers.Inc()
		go func(workerID int) {
			defer wg.Done()
			defer metrics.SchedulerActiveWorkers.Dec()

			for idx := range indices {
				start := time.Now()
				err := s.runOne(base, tasks[idx])
				duration := time.Since(start)

				metrics.StationTaskDuration.WithLabelValues(mode).Observe(duration.Seconds())
				if err != nil {
					metrics.StationTasks.WithLabelValues(mode, "failed").Inc()
					s.logger.Warn("[Scheduler] station task failed",
						zap.String("mode", mode),
						zap.Int("worker_id", workerID),
						zap.Int("task", idx),
						zap.Duration("duration", duration),
						zap.Error(err),
					)
				} else {
					metrics.StationTasks.WithLabelValues(mode, "completed").Inc()
				}
				errs[idx] = err
			}
		}(i)
	}

	for i := range tasks {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return errs
}

func (s *Scheduler) runOne(ctx context.Context, task Task) (err error) {
	if s.stationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.stationTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[Scheduler] station task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("station task panicked: %v", r)
		}
	}()

	return task(ctx)
}
