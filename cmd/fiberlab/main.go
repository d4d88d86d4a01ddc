// cmd/fiberlab/main.go
//
// This is the entry point for the fiberlab CLI.
// When you run `fiberlab` from any directory, this is what executes.
//
// Flow:
// 1. Create .fiberlab/ and load config.yaml plus FIBERLAB_* overrides
// 2. Open the log file and, if configured, the trace exporter
// 3. Build the scheduler and the demo board on top of it
// 4. Launch the TUI, or play the scripted demo when stdout is not a terminal

package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/kingrea/fiberlab/internal/config"
	"github.com/kingrea/fiberlab/internal/demo"
	"github.com/kingrea/fiberlab/internal/logbook"
	"github.com/kingrea/fiberlab/internal/telemetry"
	"github.com/kingrea/fiberlab/internal/tui"
	"github.com/kingrea/fiberlab/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Get the current working directory - this is the "project" we're working in
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	if err := config.InitFiberlabDir(cwd); err != nil {
		return fmt.Errorf("initializing .fiberlab directory: %w", err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		return err
	}
	lb, err := logbook.New(cfg.LogPath())
	if err != nil {
		return err
	}
	defer lb.Close()

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, telemetry.ServiceName, cfg.TelemetryEndpoint())
	if err != nil {
		// Tracing is optional; keep going without it.
		lb.Warn("Telemetry disabled: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			lb.Warn("Telemetry shutdown: %v", err)
		}
	}()

	sched := scheduler.New(
		scheduler.WithLogger(lb),
		scheduler.WithIdleDelay(cfg.Project.Scheduler.IdleDelay),
		scheduler.WithSubscriberCapacity(cfg.Project.Scheduler.SubscriberCapacity),
	)
	board, err := demo.NewBoard(sched, demo.Settings{
		Items:               cfg.Project.Demo.Items,
		ExpensiveIterations: cfg.Project.Demo.ExpensiveIterations,
		Fruits:              cfg.Project.Demo.Fruits,
	})
	if err != nil {
		return err
	}
	lb.Info("Session started in %s", cwd)

	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return runHeadless(ctx, os.Stdout, sched, board)
	}

	app := tui.NewApp(sched, board,
		tui.WithLogbook(lb),
		tui.WithIdleDelay(cfg.Project.Scheduler.IdleDelay),
	)
	defer app.Close()

	// Run blocks until the user quits
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
