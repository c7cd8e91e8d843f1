package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type enqueuer interface {
	Enqueue(job Job) error
}

// Ticker periodically enqueues a job of a fixed type.
type Ticker struct {
	queue    enqueuer
	jobType  string
	interval time.Duration
	logger   *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewTicker builds a ticker; interval must be positive for Start to do anything.
func NewTicker(queue enqueuer, jobType string, interval time.Duration, logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{queue: queue, jobType: jobType, interval: interval, logger: logger}
}

// Start launches the ticking goroutine. When runNow is true a job is enqueued immediately.
func (t *Ticker) Start(ctx context.Context, runNow bool) {
	if t.interval <= 0 || t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if runNow {
			t.fire()
		}
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fire()
			}
		}
	}()
}

// Stop halts the ticker and waits for its goroutine.
func (t *Ticker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.cancel = nil
}

func (t *Ticker) fire() {
	job := Job{ID: uuid.NewString(), Type: t.jobType}
	if err := t.queue.Enqueue(job); err != nil {
		t.logger.Sugar().Warnw("scheduled enqueue failed", "type", t.jobType, "error", err)
	}
}
