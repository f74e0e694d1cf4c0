// Package scheduler runs a tick function on a fixed delay until its context
// is cancelled. Cancellation is observed only between ticks: a running tick
// always completes (bounded by its own timeout).
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	applogger "FinTrade/pkg/logger"
)

// TickFunc is one idempotent unit of work.
type TickFunc func(ctx context.Context) error

// Option configures RunUntilCancelled.
type Option func(*config)

type config struct {
	name      string
	timeout   time.Duration
	trigger   <-chan struct{}
	immediate bool
	l         *applogger.Logger
}

// WithName labels log entries for this loop.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithTimeout bounds every tick.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithTrigger runs an extra tick whenever the channel fires.
func WithTrigger(ch <-chan struct{}) Option {
	return func(c *config) { c.trigger = ch }
}

// WithImmediate runs the first tick without waiting for the interval.
func WithImmediate(v bool) Option {
	return func(c *config) { c.immediate = v }
}

// WithLogger sets the logger used for tick failures.
func WithLogger(l *applogger.Logger) Option {
	return func(c *config) { c.l = l }
}

// RunUntilCancelled calls tick, waits interval, and repeats until ctx is done.
// Tick errors and panics are logged and do not stop the loop.
func RunUntilCancelled(ctx context.Context, interval time.Duration, tick TickFunc, opts ...Option) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	cfg := &config{name: "loop", immediate: true, l: applogger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.immediate {
		if ctx.Err() != nil {
			return nil
		}
		runTick(ctx, cfg, tick)
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			cfg.l.Info("loop stopped", applogger.String("loop", cfg.name))
			return nil
		case <-timer.C:
		case <-cfg.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		// a cancel that raced the timer wins
		if ctx.Err() != nil {
			cfg.l.Info("loop stopped", applogger.String("loop", cfg.name))
			return nil
		}
		runTick(ctx, cfg, tick)
		timer.Reset(interval)
	}
}

func runTick(parent context.Context, cfg *config, tick TickFunc) {
	ctx := context.WithoutCancel(parent)
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			cfg.l.Error("tick panic",
				applogger.String("loop", cfg.name),
				applogger.Any("panic", r),
				applogger.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := tick(ctx); err != nil {
		cfg.l.Warn("tick failed",
			applogger.String("loop", cfg.name),
			applogger.Duration("duration_ms", time.Since(start)),
			applogger.Error(err),
		)
	}
}
