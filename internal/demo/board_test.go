package demo

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/fiberlab/scheduler"
)

func newTestBoard(t *testing.T, opts ...Option) (*Board, *scheduler.Scheduler) {
	t.Helper()
	s := scheduler.New()
	b, err := NewBoard(s, Settings{Items: 5, ExpensiveIterations: 10, Fruits: []string{"Apple", "Banana", "Cherry"}}, opts...)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	return b, s
}

func TestIncrementIsVisibleImmediately(t *testing.T) {
	b, _ := newTestBoard(t)
	for i := 0; i < 3; i++ {
		if err := b.Increment(); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	view := b.Snapshot()
	if view.Counter != 3 || view.CounterVersion != 3 {
		t.Fatalf("counter = %d/v%d, want 3/v3", view.Counter, view.CounterVersion)
	}
}

func TestLowPriorityWorkWaitsForFlush(t *testing.T) {
	b, s := newTestBoard(t)
	if err := b.GenerateItems(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := b.ComputeExpensive(); err != nil {
		t.Fatalf("expensive: %v", err)
	}
	view := b.Snapshot()
	if view.ItemCount != 0 || view.Expensive != 0 {
		t.Fatalf("low-priority work applied early: %+v", view)
	}
	if diff := cmp.Diff([]scheduler.CellID{ItemsCell, ExpensiveCell}, view.Pending); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	view = b.Snapshot()
	if view.ItemCount != 5 || view.LastItem != "Item 4" {
		t.Fatalf("items = %d (%q), want 5 ending in Item 4", view.ItemCount, view.LastItem)
	}
	if view.Expensive != 45 {
		t.Fatalf("expensive = %d, want 45", view.Expensive)
	}
	if len(view.Pending) != 0 {
		t.Fatalf("pending should be empty after flush: %v", view.Pending)
	}
}

func TestAddFruitPrependsWithNextID(t *testing.T) {
	b, _ := newTestBoard(t)
	if err := b.AddFruit(); err != nil {
		t.Fatalf("add fruit: %v", err)
	}
	want := []Fruit{
		{ID: 4, Name: "Item 4"},
		{ID: 1, Name: "Apple"},
		{ID: 2, Name: "Banana"},
		{ID: 3, Name: "Cherry"},
	}
	if diff := cmp.Diff(want, b.Snapshot().Fruits); diff != "" {
		t.Fatalf("fruits mismatch (-want +got):\n%s", diff)
	}
}

func TestShuffleIsDeferredAndKeepsIDs(t *testing.T) {
	reverse := func(fruits []Fruit) {
		for i, j := 0, len(fruits)-1; i < j; i, j = i+1, j-1 {
			fruits[i], fruits[j] = fruits[j], fruits[i]
		}
	}
	b, s := newTestBoard(t, WithShuffle(reverse))
	before := b.Snapshot().Fruits
	if err := b.ShuffleFruits(); err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if diff := cmp.Diff(before, b.Snapshot().Fruits); diff != "" {
		t.Fatalf("shuffle applied before flush (-want +got):\n%s", diff)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	want := []Fruit{{ID: 3, Name: "Cherry"}, {ID: 2, Name: "Banana"}, {ID: 1, Name: "Apple"}}
	if diff := cmp.Diff(want, b.Snapshot().Fruits); diff != "" {
		t.Fatalf("fruits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Fruit{{1, "Apple"}, {2, "Banana"}, {3, "Cherry"}}, before); diff != "" {
		t.Fatalf("earlier snapshot was mutated (-want +got):\n%s", diff)
	}
}

func TestAddFruitWinsOverPendingShuffle(t *testing.T) {
	b, s := newTestBoard(t, WithShuffle(func([]Fruit) { t.Fatalf("superseded shuffle must not run") }))
	if err := b.ShuffleFruits(); err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if err := b.AddFruit(); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	view := b.Snapshot()
	if view.FruitsVersion != 1 || view.Fruits[0].ID != 4 {
		t.Fatalf("unexpected fruits after high write: %+v (v%d)", view.Fruits, view.FruitsVersion)
	}
}

func TestCancelPendingReportsCells(t *testing.T) {
	b, _ := newTestBoard(t)
	if got := b.CancelPending(); len(got) != 0 {
		t.Fatalf("nothing pending, got %v", got)
	}
	if err := b.ShuffleFruits(); err != nil {
		t.Fatal(err)
	}
	if err := b.GenerateItems(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]scheduler.CellID{ItemsCell, FruitsCell}, b.CancelPending()); diff != "" {
		t.Fatalf("cancelled mismatch (-want +got):\n%s", diff)
	}
	if len(b.Snapshot().Pending) != 0 {
		t.Fatalf("pending should be empty after cancel")
	}
}

func TestNewBoardValidation(t *testing.T) {
	if _, err := NewBoard(nil, Settings{Items: 1, ExpensiveIterations: 1}); err == nil {
		t.Fatalf("expected error for nil scheduler")
	}
	s := scheduler.New()
	if _, err := NewBoard(s, Settings{Items: 0, ExpensiveIterations: 1}); err == nil {
		t.Fatalf("expected error for zero items")
	}
	if _, err := NewBoard(s, Settings{Items: 1, ExpensiveIterations: 1}); err != nil {
		t.Fatalf("first board: %v", err)
	}
	_, err := NewBoard(s, Settings{Items: 1, ExpensiveIterations: 1})
	if !errors.Is(err, scheduler.ErrDuplicateCell) {
		t.Fatalf("second board on the same scheduler: expected ErrDuplicateCell, got %v", err)
	}
}

func TestBuildItemsAndExpensiveSum(t *testing.T) {
	if diff := cmp.Diff([]string{"Item 0", "Item 1", "Item 2"}, BuildItems(3)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if BuildItems(0) != nil {
		t.Fatalf("BuildItems(0) should be nil")
	}
	if got := ExpensiveSum(1000); got != 499500 {
		t.Fatalf("ExpensiveSum(1000) = %d", got)
	}
}

func TestAddNumberPrependsAndShiftsIndexes(t *testing.T) {
	b, _ := newTestBoard(t)
	view := b.Snapshot()
	if diff := cmp.Diff([]int{1, 2, 3}, view.Numbers); diff != "" {
		t.Fatalf("initial numbers mismatch (-want +got):\n%s", diff)
	}
	for i := 0; i < 2; i++ {
		if err := b.AddNumber(); err != nil {
			t.Fatalf("add number: %v", err)
		}
	}
	view = b.Snapshot()
	if diff := cmp.Diff([]int{5, 4, 1, 2, 3}, view.Numbers); diff != "" {
		t.Fatalf("numbers mismatch (-want +got):\n%s", diff)
	}
	if view.NumbersVersion != 2 {
		t.Fatalf("numbers version = %d, want 2", view.NumbersVersion)
	}
	if len(view.Pending) != 0 {
		t.Fatalf("high-priority add must not queue work: %v", view.Pending)
	}
}

func TestSeparateBoardsDoNotShareNumbers(t *testing.T) {
	first, _ := newTestBoard(t)
	second, _ := newTestBoard(t)
	if err := first.AddNumber(); err != nil {
		t.Fatalf("add number: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, second.Snapshot().Numbers); diff != "" {
		t.Fatalf("second board changed (-want +got):\n%s", diff)
	}
}
