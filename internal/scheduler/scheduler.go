// Package scheduler drives periodic incremental runs for every configured store.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/clock"
	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
)

// Runner performs multi-page incremental runs.
type Runner interface {
	Stores() []int
	RunIncremental(ctx context.Context, store int, updatedSince time.Time, limit, maxPages int) (*syncer.RunSummary, error)
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Runner *syncer.Service
	Config config.Config
	Logger *zap.Logger
}

// Scheduler ticks on a fixed interval. Each tick syncs the trailing window of
// every store concurrently; a store still busy from the previous tick is skipped.
type Scheduler struct {
	runner   Runner
	clock    clock.Clock
	logger   *zap.Logger
	interval time.Duration
	window   time.Duration
	limit    int
	maxPages int
	enabled  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Module wires the scheduler into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewScheduler),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStart: s.start,
			OnStop:  s.stop,
		})
	}),
)

// NewScheduler builds the scheduler from configuration.
func NewScheduler(p Params) *Scheduler {
	return New(p.Runner, p.Config.Sync, clock.New(), p.Logger)
}

// New builds a scheduler around any Runner.
func New(runner Runner, cfg config.Sync, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		clock:    clk,
		logger:   logger,
		interval: cfg.TickInterval,
		window:   cfg.Window,
		limit:    cfg.PageLimit,
		maxPages: cfg.MaxPagesPerTick,
		enabled:  cfg.SchedulerEnabled,
	}
}

// Tick runs one round across all stores and waits for it to finish.
func (s *Scheduler) Tick(ctx context.Context) {
	since := s.clock.Now().Add(-s.window)
	stores := s.runner.Stores()

	var wg sync.WaitGroup
	for _, store := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := s.runner.RunIncremental(ctx, store, since, s.limit, s.maxPages)
			switch {
			case err != nil:
				s.logger.Error("scheduled incremental run failed", zap.Int("store", store), zap.Error(err))
			case summary.Skipped:
				s.logger.Debug("scheduled incremental run skipped", zap.Int("store", store))
			case summary.HasNextPage:
				s.logger.Warn("scheduled run hit page cap; remaining pages wait for the next tick",
					zap.Int("store", store),
					zap.Int("pages", summary.Pages),
				)
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) start(context.Context) error {
	if !s.enabled || s.interval <= 0 {
		s.logger.Info("sync scheduler disabled")

		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx)
	}()

	s.logger.Info("sync scheduler started", zap.Duration("interval", s.interval), zap.Duration("window", s.window))

	return nil
}

func (s *Scheduler) stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.logger.Info("sync scheduler stopped")

		return nil
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
