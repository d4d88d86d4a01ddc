package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kingrea/fiberlab/internal/demo"
	"github.com/kingrea/fiberlab/scheduler"
)

type headlessStep struct {
	name string
	run  func() error
}

// runHeadless plays a fixed sequence of actions against board while the
// scheduler's own idle loop applies the low-priority ones, then prints the
// final state to out.
func runHeadless(ctx context.Context, out io.Writer, sched *scheduler.Scheduler, board *demo.Board) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := sched.Subscribe()
	defer sub.Close()

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	steps := []headlessStep{
		{name: "increment", run: board.Increment},
		{name: "generate", run: board.GenerateItems},
		{name: "expensive", run: board.ComputeExpensive},
		{name: "add-fruit", run: board.AddFruit},
		{name: "add-number", run: board.AddNumber},
		{name: "shuffle", run: board.ShuffleFruits},
		{name: "increment", run: board.Increment},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		fmt.Fprintf(out, "> %s\n", step.name)
	}

	for sched.HasPending() {
		select {
		case <-sub.Notifications:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	v := board.Snapshot()
	names := make([]string, 0, len(v.Fruits))
	for _, fruit := range v.Fruits {
		names = append(names, fmt.Sprintf("#%d %s", fruit.ID, fruit.Name))
	}
	rows := make([]string, 0, len(v.Numbers))
	for i, n := range v.Numbers {
		rows = append(rows, fmt.Sprintf("%d - %d", n, i))
	}
	fmt.Fprintf(out, "counter: %d (v%d)\n", v.Counter, v.CounterVersion)
	fmt.Fprintf(out, "items: %d, last %q (v%d)\n", v.ItemCount, v.LastItem, v.ItemsVersion)
	fmt.Fprintf(out, "expensive: %d (v%d)\n", v.Expensive, v.ExpensiveVersion)
	fmt.Fprintf(out, "fruits: %s (v%d)\n", strings.Join(names, ", "), v.FruitsVersion)
	fmt.Fprintf(out, "numbers: %s (v%d)\n", strings.Join(rows, ", "), v.NumbersVersion)
	return nil
}
