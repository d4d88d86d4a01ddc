package demo

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/kingrea/fiberlab/scheduler"
)

const (
	CounterCell   scheduler.CellID = "counter"
	ItemsCell     scheduler.CellID = "items"
	ExpensiveCell scheduler.CellID = "expensive"
	FruitsCell    scheduler.CellID = "fruits"
	NumbersCell   scheduler.CellID = "numbers"
)

// initialNumbers seeds the index-keyed list.
var initialNumbers = []int{1, 2, 3}

// Fruit is an entry in the keyed list. ID is stable across shuffles.
type Fruit struct {
	ID   int
	Name string
}

// Settings sizes the demo work.
type Settings struct {
	Items               int
	ExpensiveIterations int
	Fruits              []string
}

// Option customizes Board construction.
type Option func(*Board)

// WithShuffle replaces the permutation used by ShuffleFruits.
func WithShuffle(fn func([]Fruit)) Option {
	return func(b *Board) {
		if fn != nil {
			b.shuffle = fn
		}
	}
}

// Board registers the demo cells on a scheduler and exposes the user actions.
type Board struct {
	sched     *scheduler.Scheduler
	settings  Settings
	shuffle   func([]Fruit)
	counter   scheduler.Cell[int]
	items     scheduler.Cell[[]string]
	expensive scheduler.Cell[int64]
	fruits    scheduler.Cell[[]Fruit]
	numbers   scheduler.Cell[[]int]
}

// NewBoard registers the counter, items, expensive, fruits and numbers cells
// on s.
func NewBoard(s *scheduler.Scheduler, settings Settings, opts ...Option) (*Board, error) {
	if s == nil {
		return nil, errors.New("demo: board requires a scheduler")
	}
	if settings.Items < 1 {
		return nil, fmt.Errorf("demo: items must be >= 1, got %d", settings.Items)
	}
	if settings.ExpensiveIterations < 1 {
		return nil, fmt.Errorf("demo: expensive iterations must be >= 1, got %d", settings.ExpensiveIterations)
	}
	b := &Board{
		sched:    s,
		settings: settings,
		shuffle: func(fruits []Fruit) {
			rand.Shuffle(len(fruits), func(i, j int) { fruits[i], fruits[j] = fruits[j], fruits[i] })
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	initial := make([]Fruit, 0, len(settings.Fruits))
	for i, name := range settings.Fruits {
		initial = append(initial, Fruit{ID: i + 1, Name: name})
	}
	var err error
	if b.counter, err = scheduler.Register(s, CounterCell, 0); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	if b.items, err = scheduler.Register(s, ItemsCell, []string(nil)); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	if b.expensive, err = scheduler.Register(s, ExpensiveCell, int64(0)); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	if b.fruits, err = scheduler.Register(s, FruitsCell, initial); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	if b.numbers, err = scheduler.Register(s, NumbersCell, append([]int(nil), initialNumbers...)); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	return b, nil
}

// Increment bumps the counter at high priority.
func (b *Board) Increment() error {
	return b.counter.Update(scheduler.PriorityHigh, func(v int) int { return v + 1 })
}

// GenerateItems rebuilds the item list at low priority.
func (b *Board) GenerateItems() error {
	n := b.settings.Items
	return b.items.Update(scheduler.PriorityLow, func([]string) []string {
		return BuildItems(n)
	})
}

// ComputeExpensive recomputes the expensive sum at low priority.
func (b *Board) ComputeExpensive() error {
	n := b.settings.ExpensiveIterations
	return b.expensive.Update(scheduler.PriorityLow, func(int64) int64 {
		return ExpensiveSum(n)
	})
}

// AddFruit prepends a new fruit at high priority.
func (b *Board) AddFruit() error {
	return b.fruits.Update(scheduler.PriorityHigh, func(current []Fruit) []Fruit {
		next := len(current) + 1
		out := make([]Fruit, 0, next)
		out = append(out, Fruit{ID: next, Name: fmt.Sprintf("Item %d", next)})
		return append(out, current...)
	})
}

// AddNumber prepends len+1 to the index-keyed list at high priority. Every
// existing entry moves to a new index.
func (b *Board) AddNumber() error {
	return b.numbers.Update(scheduler.PriorityHigh, func(current []int) []int {
		out := make([]int, 0, len(current)+1)
		out = append(out, len(current)+1)
		return append(out, current...)
	})
}

// ShuffleFruits permutes the fruit list at low priority.
func (b *Board) ShuffleFruits() error {
	shuffle := b.shuffle
	return b.fruits.Update(scheduler.PriorityLow, func(current []Fruit) []Fruit {
		out := append([]Fruit(nil), current...)
		shuffle(out)
		return out
	})
}

// CancelPending drops every queued low-priority demo update and returns the
// cells that had one.
func (b *Board) CancelPending() []scheduler.CellID {
	var cancelled []scheduler.CellID
	for _, id := range []scheduler.CellID{ItemsCell, ExpensiveCell, FruitsCell, NumbersCell, CounterCell} {
		if b.sched.CancelPending(id) {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

// View is a read-only copy of the board for rendering.
type View struct {
	Counter          int
	CounterVersion   uint64
	ItemCount        int
	LastItem         string
	ItemsVersion     uint64
	Expensive        int64
	ExpensiveVersion uint64
	Fruits           []Fruit
	FruitsVersion    uint64
	Numbers          []int
	NumbersVersion   uint64
	Pending          []scheduler.CellID
}

// Snapshot reads every cell.
func (b *Board) Snapshot() View {
	var v View
	v.Counter, v.CounterVersion = b.counter.Get()
	var items []string
	items, v.ItemsVersion = b.items.Get()
	v.ItemCount = len(items)
	if len(items) > 0 {
		v.LastItem = items[len(items)-1]
	}
	v.Expensive, v.ExpensiveVersion = b.expensive.Get()
	var fruits []Fruit
	fruits, v.FruitsVersion = b.fruits.Get()
	v.Fruits = append([]Fruit(nil), fruits...)
	var numbers []int
	numbers, v.NumbersVersion = b.numbers.Get()
	v.Numbers = append([]int(nil), numbers...)
	v.Pending = b.sched.Pending()
	return v
}

// BuildItems returns "Item 0" through "Item n-1".
func BuildItems(n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Item %d", i)
	}
	return out
}

// ExpensiveSum adds 0 through n-1 one step at a time.
func ExpensiveSum(n int) int64 {
	var total int64
	for i := 0; i < n; i++ {
		total += int64(i)
	}
	return total
}
