// internal/tui/app.go
//
// This is the terminal front end for fiberlab.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the App below, which only holds a snapshot of the scheduler cells
// 2. Update: key presses submit scheduler requests; idle messages flush them
// 3. View: renders the latest snapshot
//
// Low-priority actions arm an idle message. bubbletea delivers it after the
// messages already queued, which is the scheduler's idle point: if no
// high-priority action happened in between, the pending batch is flushed.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/fiberlab/internal/demo"
	"github.com/kingrea/fiberlab/internal/logbook"
	"github.com/kingrea/fiberlab/scheduler"
)

const maxListRows = 8

type action string

const (
	actionIncrement action = "increment"
	actionGenerate  action = "generate"
	actionExpensive action = "expensive"
	actionAddFruit  action = "add-fruit"
	actionAddNumber action = "add-number"
	actionShuffle   action = "shuffle"
	actionCancel    action = "cancel"
	actionFlush     action = "flush"
	actionExit      action = "exit"
)

var actionKeys = map[string]action{
	"+": actionIncrement,
	"=": actionIncrement,
	"g": actionGenerate,
	"e": actionExpensive,
	"a": actionAddFruit,
	"n": actionAddNumber,
	"s": actionShuffle,
	"c": actionCancel,
	"f": actionFlush,
}

// idleMsg marks the idle point for a flush armed at checkpoint.
type idleMsg struct {
	checkpoint scheduler.Checkpoint
}

type notificationMsg scheduler.Notification

type subscriptionClosedMsg struct{}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithIdleDelay delays each idle message by d.
func WithIdleDelay(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.idleDelay = d
		}
	}
}

// WithLogbook records actions and scheduler activity.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	sched   *scheduler.Scheduler
	board   *demo.Board
	logbook *logbook.Logbook
	sub     scheduler.Subscription

	menu      list.Model
	snapshot  demo.View
	statusMsg string
	idleArmed bool
	idleDelay time.Duration

	highWrites  int
	flushes     int
	lastFailure string

	width  int
	height int
}

// menuItem implements list.Item interface for our menu items
type menuItem struct {
	title  string
	desc   string
	action action
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

// NewApp creates a new App bound to a scheduler and the board registered on it.
func NewApp(sched *scheduler.Scheduler, board *demo.Board, opts ...AppOption) *App {
	menu := list.New(buildMenu(), list.NewDefaultDelegate(), 0, 0)
	menu.Title = "Actions"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.SetShowHelp(false)

	app := &App{
		sched:     sched,
		board:     board,
		sub:       sched.Subscribe(),
		menu:      menu,
		statusMsg: "Ready",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.snapshot = board.Snapshot()
	return app
}

func buildMenu() []list.Item {
	return []list.Item{
		menuItem{title: "Increment counter [+]", desc: "High priority · applied before the key press returns", action: actionIncrement},
		menuItem{title: "Generate items [g]", desc: "Low priority · builds the big list at the next idle point", action: actionGenerate},
		menuItem{title: "Expensive sum [e]", desc: "Low priority · long loop deferred behind input", action: actionExpensive},
		menuItem{title: "Add fruit [a]", desc: "High priority · prepends a keyed item", action: actionAddFruit},
		menuItem{title: "Add number [n]", desc: "High priority · prepends to the index-keyed list", action: actionAddNumber},
		menuItem{title: "Shuffle fruits [s]", desc: "Low priority · reorders keyed items", action: actionShuffle},
		menuItem{title: "Cancel pending [c]", desc: "Drop every queued low-priority update", action: actionCancel},
		menuItem{title: "Flush now [f]", desc: "Apply the pending batch without waiting", action: actionFlush},
		menuItem{title: "Exit [q]", desc: "Quit fiberlab", action: actionExit},
	}
}

// Close releases the scheduler subscription.
func (a *App) Close() {
	a.sub.Close()
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return waitForNotification(a.sub)
}

func waitForNotification(sub scheduler.Subscription) tea.Cmd {
	return func() tea.Msg {
		note, ok := <-sub.Notifications
		if !ok {
			return subscriptionClosedMsg{}
		}
		return notificationMsg(note)
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menu.SetSize(max(20, msg.Width/3), max(8, msg.Height-12))
		return a, nil

	case notificationMsg:
		a.handleNotification(scheduler.Notification(msg))
		return a, waitForNotification(a.sub)

	case subscriptionClosedMsg:
		return a, nil

	case idleMsg:
		return a, a.handleIdle(msg)

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c", "q":
			return a, a.quit()
		case "enter":
			item, ok := a.menu.SelectedItem().(menuItem)
			if !ok {
				return a, nil
			}
			return a, a.perform(item.action)
		}
		if act, ok := actionKeys[key]; ok {
			return a, a.perform(act)
		}
	}

	var cmd tea.Cmd
	a.menu, cmd = a.menu.Update(msg)
	return a, cmd
}

func (a *App) quit() tea.Cmd {
	a.logInfo("Session closed · %d high-priority write(s), %d flush(es)", a.highWrites, a.flushes)
	a.Close()
	return tea.Quit
}

// perform runs a user action and returns the follow-up command, if any.
func (a *App) perform(act action) tea.Cmd {
	var (
		err      error
		deferred bool
	)
	switch act {
	case actionIncrement:
		err = a.board.Increment()
		a.statusMsg = "Counter incremented (high priority)"
	case actionAddFruit:
		err = a.board.AddFruit()
		a.statusMsg = "Fruit added (high priority)"
	case actionAddNumber:
		err = a.board.AddNumber()
		a.statusMsg = "Number added (high priority)"
	case actionGenerate:
		err = a.board.GenerateItems()
		deferred = true
		a.statusMsg = "Item list scheduled (low priority)"
	case actionExpensive:
		err = a.board.ComputeExpensive()
		deferred = true
		a.statusMsg = "Expensive sum scheduled (low priority)"
	case actionShuffle:
		err = a.board.ShuffleFruits()
		deferred = true
		a.statusMsg = "Shuffle scheduled (low priority)"
	case actionCancel:
		cancelled := a.board.CancelPending()
		if len(cancelled) == 0 {
			a.statusMsg = "Nothing pending"
		} else {
			a.statusMsg = fmt.Sprintf("Cancelled %s", joinCells(cancelled))
			a.logInfo("Cancelled pending updates: %s", joinCells(cancelled))
		}
	case actionFlush:
		err = a.sched.Flush()
		a.statusMsg = "Flushed pending updates"
	case actionExit:
		return a.quit()
	}
	if err != nil {
		a.statusMsg = fmt.Sprintf("%s failed: %v", act, err)
		a.logError("Action %s failed: %v", act, err)
	} else {
		a.logInfo("Action · %s", act)
	}
	a.snapshot = a.board.Snapshot()
	if deferred && err == nil {
		return a.armIdle()
	}
	return nil
}

// armIdle schedules an idle message unless one is already on its way.
func (a *App) armIdle() tea.Cmd {
	if a.idleArmed {
		return nil
	}
	a.idleArmed = true
	cp := a.sched.Checkpoint()
	if a.idleDelay > 0 {
		return tea.Tick(a.idleDelay, func(time.Time) tea.Msg { return idleMsg{checkpoint: cp} })
	}
	return func() tea.Msg { return idleMsg{checkpoint: cp} }
}

func (a *App) handleIdle(msg idleMsg) tea.Cmd {
	a.idleArmed = false
	flushed, err := a.sched.FlushIdle(msg.checkpoint)
	if err != nil {
		a.lastFailure = err.Error()
		a.statusMsg = "Flush finished with failures"
		a.logError("Idle flush: %v", err)
	}
	a.snapshot = a.board.Snapshot()
	if !flushed && a.sched.HasPending() {
		// High-priority work intervened; wait for the next idle point.
		return a.armIdle()
	}
	return nil
}

func (a *App) handleNotification(note scheduler.Notification) {
	switch note.Kind {
	case scheduler.NotifyHigh:
		a.highWrites++
	case scheduler.NotifyFlush:
		a.flushes++
		if len(note.Failed) > 0 {
			a.lastFailure = fmt.Sprintf("flush failed for %s", joinCells(note.Failed))
		}
		a.logInfo("Flush applied %d update(s)", len(note.Changes))
	}
	a.snapshot = a.board.Snapshot()
}

func joinCells(ids []scheduler.CellID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, string(id))
	}
	return strings.Join(parts, ", ")
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	headStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	highStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	lowStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// View renders the current state to a string.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⚛ FIBERLAB · Welcome to the update scheduler")

	state := lipgloss.JoinVertical(lipgloss.Left,
		a.renderCounterPanel(),
		a.renderDeferredPanel(),
		lipgloss.JoinHorizontal(lipgloss.Top, a.renderNumberPanel(), a.renderFruitPanel()),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(a.menu.View()), state)

	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	status := a.statusMsg
	if a.lastFailure != "" {
		status += "  " + failureStyle.Render(a.lastFailure)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(status + "\nThanks for visiting.")
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderCounterPanel() string {
	v := a.snapshot
	lines := []string{
		headStyle.Render("HIGH PRIORITY"),
		fmt.Sprintf("Counter: %s  %s", highStyle.Render(fmt.Sprint(v.Counter)), mutedStyle.Render(fmt.Sprintf("v%d", v.CounterVersion))),
		mutedStyle.Render(fmt.Sprintf("%d synchronous write(s)", a.highWrites)),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderDeferredPanel() string {
	v := a.snapshot
	pending := "none"
	if len(v.Pending) > 0 {
		pending = lowStyle.Render(joinCells(v.Pending))
	}
	lines := []string{
		headStyle.Render("LOW PRIORITY"),
		fmt.Sprintf("Items: %d  %s", v.ItemCount, mutedStyle.Render(fmt.Sprintf("v%d", v.ItemsVersion))),
		fmt.Sprintf("Expensive sum: %d  %s", v.Expensive, mutedStyle.Render(fmt.Sprintf("v%d", v.ExpensiveVersion))),
		fmt.Sprintf("Pending: %s", pending),
		mutedStyle.Render(fmt.Sprintf("%d flush(es)", a.flushes)),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderNumberPanel() string {
	v := a.snapshot
	lines := []string{headStyle.Render(fmt.Sprintf("INDEX-KEYED · v%d", v.NumbersVersion))}
	for i, n := range v.Numbers {
		if i == maxListRows {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("… %d more", len(v.Numbers)-maxListRows)))
			break
		}
		lines = append(lines, fmt.Sprintf("%d - %d", n, i))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderFruitPanel() string {
	v := a.snapshot
	lines := []string{headStyle.Render(fmt.Sprintf("ID-KEYED · v%d", v.FruitsVersion))}
	for i, fruit := range v.Fruits {
		if i == maxListRows {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("… %d more", len(v.Fruits)-maxListRows)))
			break
		}
		lines = append(lines, fmt.Sprintf("#%d %s", fruit.ID, fruit.Name))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := headStyle.Render(fmt.Sprintf("LOG · %s (%d entries)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return panelStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}
