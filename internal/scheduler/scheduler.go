package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/skitcast/internal/pipeline"
	"github.com/cuongbtq/skitcast/shared/logger"
)

// Runner executes one publishing job
type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Outcome, error)
}

// Config holds scheduler configuration
type Config struct {
	Logger   *slog.Logger
	Runner   Runner
	Interval time.Duration
}

// Scheduler runs the publishing job in a loop: one cycle immediately on start,
// then one cycle per interval after the previous cycle finishes. A failed
// cycle is logged and skipped.
type Scheduler struct {
	logger   *slog.Logger
	runner   Runner
	interval time.Duration

	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// New creates a new scheduler instance
func New(cfg *Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be greater than 0, got %s", cfg.Interval)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Scheduler{
		logger:   log.With(slog.String("component", "scheduler")),
		runner:   cfg.Runner,
		interval: cfg.Interval,
		stopChan: make(chan struct{}),
	}, nil
}

// Start runs cycles until ctx is canceled or Stop is called. Either one also
// cancels the cycle in flight. It always returns nil.
func (s *Scheduler) Start(ctx context.Context) error {
	// Add under the lock so Stop either sees the loop or prevents it
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("Starting scheduler", slog.Duration("interval", s.interval))

	cycle := 0
	for {
		select {
		case <-s.stopChan:
			return nil
		case <-ctx.Done():
			s.logger.Info("Scheduler context canceled, stopping...")
			return nil
		default:
		}

		cycle++
		s.runCycle(ctx, cycle)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Scheduler context canceled, stopping...")
			return nil
		case <-timer.C:
		}
	}
}

// Stop signals the loop to exit and waits for it
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// runCycle executes one job. Panics are recovered so the loop survives.
func (s *Scheduler) runCycle(ctx context.Context, cycle int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduler cycle panicked",
				slog.Int("cycle", cycle),
				slog.Any("panic", r),
			)
		}
	}()

	out, err := s.runner.Run(ctx, pipeline.Scheduled())
	if err != nil {
		attrs := []any{slog.Int("cycle", cycle), slog.Any("error", err)}
		if out != nil {
			attrs = append(attrs, slog.String("run_id", out.RunID))
		}
		s.logger.Warn("Scheduler cycle failed, skipping", attrs...)
		return
	}

	s.logger.Info("Scheduler cycle completed",
		slog.Int("cycle", cycle),
		slog.String("run_id", out.RunID),
		slog.Bool("via_fallback", out.Delivery.ViaFallback),
	)
}
