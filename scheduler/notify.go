package scheduler

import (
	"sync"
)

const defaultSubscriberCapacity = 16

// NotifyKind distinguishes synchronous writes from batch flushes.
type NotifyKind string

const (
	NotifyHigh  NotifyKind = "high"
	NotifyFlush NotifyKind = "flush"
)

// Change records the version a cell reached in a notification.
type Change struct {
	Cell    CellID
	Version uint64
}

// Notification is delivered once per high-priority write and once per flush.
type Notification struct {
	Kind    NotifyKind
	Changes []Change
	// Failed lists cells whose flush entry failed. Always empty for NotifyHigh.
	Failed []CellID
}

// Observer is invoked synchronously after the scheduler releases its lock.
type Observer func(Notification)

// Logger records scheduler diagnostics. logbook.Logbook satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Subscription is a buffered feed of notifications.
type Subscription struct {
	Notifications <-chan Notification
	cancel        func()
}

// Close stops delivery and closes the channel.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

type observerEntry struct {
	id uint64
	fn Observer
}

// notifier fans notifications out to callback observers, in registration
// order, and to channel subscribers.
type notifier struct {
	mu          sync.RWMutex
	observers   []observerEntry
	nextID      uint64
	subscribers map[*subscriber]struct{}
	capacity    int
	logger      Logger
}

func newNotifier(capacity int, logger Logger) *notifier {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &notifier{
		subscribers: map[*subscriber]struct{}{},
		capacity:    capacity,
		logger:      logger,
	}
}

func (n *notifier) observe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.observers = append(n.observers, observerEntry{id: id, fn: fn})
	n.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { n.removeObserver(id) })
	}
}

func (n *notifier) removeObserver(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, entry := range n.observers {
		if entry.id == id {
			n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
			return
		}
	}
}

func (n *notifier) subscribe() Subscription {
	sub := newSubscriber(n.capacity, n.logger)
	n.mu.Lock()
	n.subscribers[sub] = struct{}{}
	n.mu.Unlock()
	return Subscription{
		Notifications: sub.channel(),
		cancel: func() {
			n.removeSubscriber(sub)
		},
	}
}

func (n *notifier) removeSubscriber(sub *subscriber) {
	n.mu.Lock()
	delete(n.subscribers, sub)
	n.mu.Unlock()
	sub.close()
}

func (n *notifier) notify(note Notification) {
	n.mu.RLock()
	observers := make([]Observer, 0, len(n.observers))
	for _, entry := range n.observers {
		observers = append(observers, entry.fn)
	}
	subs := make([]*subscriber, 0, len(n.subscribers))
	for sub := range n.subscribers {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()
	for _, fn := range observers {
		fn(note)
	}
	for _, sub := range subs {
		sub.deliver(note)
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Notification
	closed bool
	logger Logger
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	return &subscriber{
		ch:     make(chan Notification, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan Notification {
	return s.ch
}

// deliver never blocks. When the buffer is full the oldest high-priority
// notification is dropped, or the oldest one overall if every queued
// notification is a flush. Order is preserved.
func (s *subscriber) deliver(note Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- note:
		return
	default:
	}
	queued := make([]Notification, 0, cap(s.ch)+1)
drain:
	for {
		select {
		case n := <-s.ch:
			queued = append(queued, n)
		default:
			break drain
		}
	}
	queued = append(queued, note)
	if len(queued) > cap(s.ch) {
		idx := dropIndex(queued)
		reason := "queue overflow"
		if idx == len(queued)-1 {
			reason = "queue overflow:incoming"
		}
		s.logger.Printf("scheduler: subscriber dropped %s notification (%s)", queued[idx].Kind, reason)
		queued = append(queued[:idx], queued[idx+1:]...)
	}
	for _, n := range queued {
		s.ch <- n
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func dropIndex(queued []Notification) int {
	for i, n := range queued {
		if n.Kind == NotifyHigh {
			return i
		}
	}
	return 0
}
