// Package app drives an Application's main step at a fixed tick until told
// to stop.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const DefaultInterval = 10 * time.Millisecond

// Application is one step of a long running program
type Application interface {
	Main(ctx context.Context) error
}

// MainFunc adapts a function to Application
type MainFunc func(ctx context.Context) error

func (f MainFunc) Main(ctx context.Context) error {
	return f(ctx)
}

type Runner struct {
	app      Application
	interval time.Duration
	exit     atomic.Bool
	log      *logger.Logger
}

func NewRunner(app Application, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		app:      app,
		interval: interval,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "app")),
	}
}

// Run calls Main, then waits one interval, until Stop is called, Main
// fails or ctx is done. Stop and ctx end the loop without an error.
func (r *Runner) Run(ctx context.Context) error {
	r.exit.Store(false)
	r.log.Debugln("Running every", r.interval.String())

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for iteration := 1; ; iteration++ {
		if err := r.app.Main(ctx); err != nil {
			return fmt.Errorf("iteration %d: %w", iteration, err)
		}
		if r.ShouldExit() {
			r.log.Debugln("Stopped after", iteration, "iterations")
			return nil
		}

		timer.Reset(r.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			r.log.Debugln("Cancelled after", iteration, "iterations")
			return nil
		}
	}
}

// Stop ends Run after the current step. Safe from any goroutine.
func (r *Runner) Stop() {
	r.exit.Store(true)
}

func (r *Runner) ShouldExit() bool {
	return r.exit.Load()
}
