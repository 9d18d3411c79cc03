package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IntervalTrigger submits a job of one kind at a fixed interval. A tick
// that finds the previous job still in flight is skipped.
type IntervalTrigger struct {
	kind       JobKind
	interval   time.Duration
	scheduler  *Scheduler
	logger     *zap.Logger
	runOnStart bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// TriggerOption configures an IntervalTrigger
type TriggerOption func(*IntervalTrigger)

// WithTriggerLogger sets the trigger logger
func WithTriggerLogger(logger *zap.Logger) TriggerOption {
	return func(t *IntervalTrigger) {
		t.logger = logger
	}
}

// WithRunOnStart submits a job as soon as the trigger starts
func WithRunOnStart() TriggerOption {
	return func(t *IntervalTrigger) {
		t.runOnStart = true
	}
}

// NewIntervalTrigger creates a trigger for kind on scheduler
func NewIntervalTrigger(scheduler *Scheduler, kind JobKind, interval time.Duration, opts ...TriggerOption) *IntervalTrigger {
	t := &IntervalTrigger{
		kind:      kind,
		interval:  interval,
		scheduler: scheduler,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.String("kind", string(t.kind)),
		zap.Duration("interval", t.interval),
	)
	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped", zap.String("kind", string(t.kind)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.runOnStart {
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
}

func (t *IntervalTrigger) fire() {
	id, err := t.scheduler.Submit(t.kind)
	switch {
	case errors.Is(err, ErrJobInFlight):
		t.logger.Debug("Previous job still in flight, skipping tick", zap.String("kind", string(t.kind)))
	case err != nil:
		t.logger.Warn("Failed to submit scheduled job",
			zap.String("kind", string(t.kind)),
			zap.Error(err),
		)
	default:
		t.logger.Info("Scheduled job submitted",
			zap.String("kind", string(t.kind)),
			zap.String("job_id", id.String()),
		)
	}
}
