package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestObserversRunInRegistrationOrderAndCancel(t *testing.T) {
	s := New()
	cell := mustRegister(t, s, "counter", 0)
	var order []string
	s.Observe(func(Notification) { order = append(order, "first") })
	cancel := s.Observe(func(Notification) { order = append(order, "second") })
	s.Observe(func(Notification) { order = append(order, "third") })

	if err := cell.Set(PriorityHigh, 1); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "first,second,third" {
		t.Fatalf("observer order = %s", got)
	}
	cancel()
	cancel()
	order = nil
	if err := cell.Set(PriorityHigh, 2); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "first,third" {
		t.Fatalf("observer order after cancel = %s", got)
	}
}

func TestSubscriptionKeepsFlushOverHigh(t *testing.T) {
	logger := &recordingLogger{}
	s := New(WithSubscriberCapacity(1), WithLogger(logger))
	cell := mustRegister(t, s, "counter", 0)
	other := mustRegister(t, s, "other", 0)
	sub := s.Subscribe()
	defer sub.Close()

	if err := other.Set(PriorityLow, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := cell.Set(PriorityHigh, 1); err != nil {
		t.Fatal(err)
	}
	note := <-sub.Notifications
	if note.Kind != NotifyFlush {
		t.Fatalf("expected retained flush notification, got %s", note.Kind)
	}
	select {
	case extra := <-sub.Notifications:
		t.Fatalf("unexpected extra notification %+v", extra)
	default:
	}
	if !logger.contains("queue overflow:incoming") {
		t.Fatalf("expected drop to be logged, got %v", logger.lines)
	}
}

func TestSubscriptionDropsOldestHigh(t *testing.T) {
	s := New(WithSubscriberCapacity(1))
	cell := mustRegister(t, s, "counter", 0)
	sub := s.Subscribe()
	defer sub.Close()
	for i := 1; i <= 3; i++ {
		if err := cell.Set(PriorityHigh, i); err != nil {
			t.Fatal(err)
		}
	}
	note := <-sub.Notifications
	if len(note.Changes) != 1 || note.Changes[0].Version != 3 {
		t.Fatalf("expected newest notification, got %+v", note)
	}
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	s := New()
	cell := mustRegister(t, s, "counter", 0)
	sub := s.Subscribe()
	sub.Close()
	sub.Close()
	if err := cell.Set(PriorityHigh, 1); err != nil {
		t.Fatalf("high after close: %v", err)
	}
	if _, ok := <-sub.Notifications; ok {
		t.Fatalf("closed subscription must not deliver")
	}
}

func TestSubscriptionDropsOldestHighBehindFlushAndKeepsOrder(t *testing.T) {
	logger := &recordingLogger{}
	s := New(WithSubscriberCapacity(2), WithLogger(logger))
	a := mustRegister(t, s, "a", 0)
	b := mustRegister(t, s, "b", 0)
	sub := s.Subscribe()
	defer sub.Close()

	if err := b.Set(PriorityLow, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 2; i++ {
		if err := a.Set(PriorityHigh, i); err != nil {
			t.Fatal(err)
		}
	}

	want := []Notification{
		{Kind: NotifyFlush, Changes: []Change{{Cell: "b", Version: 1}}},
		{Kind: NotifyHigh, Changes: []Change{{Cell: "a", Version: 2}}},
	}
	var got []Notification
	for range want {
		got = append(got, <-sub.Notifications)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
	select {
	case extra := <-sub.Notifications:
		t.Fatalf("unexpected extra notification %+v", extra)
	default:
	}
	if !logger.contains("dropped high notification (queue overflow)") {
		t.Fatalf("expected the older high drop to be logged, got %v", logger.lines)
	}
}
