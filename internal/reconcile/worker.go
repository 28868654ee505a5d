package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
)

const (
	DefaultMaxAttempts  = 5
	DefaultPollInterval = 5 * time.Second
)

// Worker drains the Redis queue and replays each case's posting.
type Worker struct {
	queue        *RedisQueue
	ledger       ledger.Ledger
	maxAttempts  int
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewWorker(queue *RedisQueue, l ledger.Ledger, maxAttempts int, pollInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, ledger: l, maxAttempts: maxAttempts, pollInterval: pollInterval, metrics: m, logger: logger}
}

// Run processes cases until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("reconciliation worker started", slog.Int("max_attempts", w.maxAttempts))
	for {
		if ctx.Err() != nil {
			w.logger.Info("reconciliation worker stopped")
			return nil
		}
		c, ok, err := w.queue.Next(ctx, w.pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("reconciliation worker stopped")
				return nil
			}
			w.logger.Error("reconciliation queue read failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
			continue
		}
		if !ok {
			continue
		}
		w.Process(ctx, c)
	}
}

// Process replays one case. A duplicate means the posting already landed.
func (w *Worker) Process(ctx context.Context, c Case) {
	attrs := []any{
		slog.String("case_id", c.ID),
		slog.String("owner_id", c.OwnerID),
		slog.String("reference", c.Posting.Reference),
	}

	_, err := w.ledger.Post(ctx, c.Posting)
	if err == nil || errors.Is(err, ledger.ErrDuplicateTransaction) {
		w.metrics.ObserveReconciliation(w.queue.Name(), "resolved")
		w.logger.Info("reconciliation case resolved", append(attrs, slog.Int("attempts", c.Attempts+1))...)
		return
	}

	c.Attempts++
	c.Error = err.Error()
	// the case outlives the worker's context
	writeCtx := context.WithoutCancel(ctx)
	if c.Attempts >= w.maxAttempts {
		w.metrics.ObserveReconciliation(w.queue.Name(), "manual")
		w.logger.Error("reconciliation case needs manual review", append(attrs, slog.Int("attempts", c.Attempts), slog.Any("error", err))...)
		if err := w.queue.Manual(writeCtx, c); err != nil {
			w.logger.Error("reconciliation case could not be parked", append(attrs, slog.Any("error", err))...)
		}
		return
	}
	w.metrics.ObserveReconciliation(w.queue.Name(), "requeued")
	w.logger.Warn("reconciliation attempt failed", append(attrs, slog.Int("attempts", c.Attempts), slog.Any("error", err))...)
	if err := w.queue.Requeue(writeCtx, c); err != nil {
		w.logger.Error("reconciliation case could not be requeued", append(attrs, slog.Any("error", err))...)
	}
}
