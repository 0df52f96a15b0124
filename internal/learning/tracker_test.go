package learning

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/derek809/mailtriage/internal/storage"
)

type collector struct {
	mu   sync.Mutex
	seen []string
}

func (c *collector) handle(_ context.Context, obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, obs.Record.ID)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func obs(id string) Observation {
	return Observation{Record: storage.DraftRecord{ID: id}}
}

func TestNewTracker(t *testing.T) {
	c := &collector{}
	tracker := NewTracker(c.handle, 0, nil)
	defer tracker.Stop()

	if !tracker.IsEnabled() {
		t.Error("expected tracker to be enabled")
	}
}

// TestTracker_StopDrains verifies every accepted observation is handled before Stop returns.
func TestTracker_StopDrains(t *testing.T) {
	c := &collector{}
	tracker := NewTracker(c.handle, 32, nil)

	accepted := 0
	for i := 0; i < 10; i++ {
		if tracker.Track(obs(string(rune('a' + i)))) {
			accepted++
		}
	}
	tracker.Stop()

	if accepted != 10 {
		t.Fatalf("expected 10 accepted, got %d", accepted)
	}
	if got := c.count(); got != 10 {
		t.Errorf("expected 10 handled, got %d", got)
	}
}

func TestTracker_Disable(t *testing.T) {
	c := &collector{}
	tracker := NewTracker(c.handle, 4, nil)
	defer tracker.Stop()

	tracker.Disable()
	if tracker.Track(obs("x")) {
		t.Error("disabled tracker accepted an observation")
	}

	tracker.Enable()
	if !tracker.Track(obs("y")) {
		t.Error("re-enabled tracker rejected an observation")
	}
}

func TestTracker_TrackAfterStop(t *testing.T) {
	c := &collector{}
	tracker := NewTracker(c.handle, 4, nil)
	tracker.Stop()
	tracker.Stop()

	if tracker.Track(obs("late")) {
		t.Error("stopped tracker accepted an observation")
	}
}

// TestTracker_FullQueue checks Track never blocks when the worker is busy.
func TestTracker_FullQueue(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	tracker := NewTracker(func(context.Context, Observation) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}, 1, nil)

	tracker.Track(obs("busy"))
	<-started

	tracker.Track(obs("queued"))
	done := make(chan bool)
	go func() { done <- tracker.Track(obs("overflow")) }()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected overflow to be rejected")
		}
	case <-time.After(time.Second):
		t.Fatal("Track blocked on a full queue")
	}

	if tracker.Pending() != 1 {
		t.Errorf("expected 1 pending, got %d", tracker.Pending())
	}

	close(release)
	tracker.Stop()
}
