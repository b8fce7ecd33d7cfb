package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_RunsEveryTaskIntoOwnSlot(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := NewScheduler(3, time.Second, logger)

	results := make([]int, 10)
	tasks := make([]Task, len(results))
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			results[i] = i * i
			return nil
		}
	}

	errs := s.Run(context.Background(), "test", tasks)

	require.Len(t, errs, len(tasks))
	for i, err := range errs {
		assert.NoError(t, err)
		assert.Equal(t, i*i, results[i])
	}
}

func TestScheduler_FailureDoesNotCancelSiblings(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := NewScheduler(2, time.Second, logger)

	boom := errors.New("historian down")
	var completed atomic.Int32

	tasks := []Task{
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			completed.Add(1)
			return nil
		},
		func(ctx context.Context) error { panic("nil map") },
		func(ctx context.Context) error { completed.Add(1); return nil },
	}

	errs := s.Run(context.Background(), "test", tasks)

	assert.ErrorIs(t, errs[0], boom)
	assert.NoError(t, errs[1])
	assert.ErrorContains(t, errs[2], "panicked")
	assert.NoError(t, errs[3])
	assert.Equal(t, int32(2), completed.Load())
}

func TestScheduler_RequestCancellationDoesNotAbortTasks(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := NewScheduler(1, time.Second, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := s.Run(ctx, "test", []Task{
		func(ctx context.Context) error { return ctx.Err() },
	})

	assert.NoError(t, errs[0])
}

func TestScheduler_StationDeadline(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := NewScheduler(1, 20*time.Millisecond, logger)

	errs := s.Run(context.Background(), "test", []Task{
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestScheduler_NoTasks(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := NewScheduler(0, time.Second, logger)

	assert.Empty(t, s.Run(context.Background(), "test", nil))
}
