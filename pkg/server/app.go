package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	applogger "FinTrade/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived component that blocks until ctx is cancelled.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Closer releases a resource at shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	l       *applogger.Logger
	runners []Runner
	closers []Closer
}

// New creates an App. Closers run in reverse order of registration.
func New(l *applogger.Logger, runners []Runner, closers []Closer) *App {
	return &App{l: l.Named("app"), runners: runners, closers: closers}
}

// AddRunner registers another runner before Run is called.
func (a *App) AddRunner(r Runner) { a.runners = append(a.runners, r) }

// AddCloser registers another closer before Run is called.
func (a *App) AddCloser(c Closer) { a.closers = append(a.closers, c) }

// Runners returns the registered runner names.
func (a *App) Runners() []string {
	names := make([]string, 0, len(a.runners))
	for _, r := range a.runners {
		names = append(names, r.Name)
	}
	return names
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext runs every runner until ctx is cancelled or one of them fails,
// then stops the rest and runs the closers.
func (a *App) RunContext(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		g.Go(func() error {
			a.l.Info("runner started", applogger.String("runner", r.Name))
			err := r.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.l.Error("runner failed", applogger.String("runner", r.Name), applogger.Error(err))
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			a.l.Info("runner stopped", applogger.String("runner", r.Name))
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		a.l.Info("shutdown signal received")
	}
	a.shutdown()
	return err
}

// shutdown runs the closers in reverse order. Failures are logged only.
func (a *App) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
}
