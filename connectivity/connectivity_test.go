package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualSignal(t *testing.T) {
	signal := NewManualSignal(false)
	if signal.Online() {
		t.Fatal("Signal should start offline")
	}

	var transitions []bool
	unsubscribe := signal.OnChange(func(online bool) {
		transitions = append(transitions, online)
	})

	signal.SetOnline(true)
	signal.SetOnline(true) // no transition, no callback
	signal.SetOnline(false)

	if signal.Online() {
		t.Fatal("Signal should be offline")
	}
	if len(transitions) != 2 || transitions[0] != true || transitions[1] != false {
		t.Fatalf("Expected [true false], got %v", transitions)
	}

	unsubscribe()
	signal.SetOnline(true)
	if len(transitions) != 2 {
		t.Fatal("Unsubscribed callback should not fire")
	}
}

func TestManualSignalMultipleSubscribers(t *testing.T) {
	signal := NewManualSignal(false)

	var a, b int32
	signal.OnChange(func(bool) { atomic.AddInt32(&a, 1) })
	signal.OnChange(func(bool) { atomic.AddInt32(&b, 1) })

	signal.SetOnline(true)
	if atomic.LoadInt32(&a) != 1 || atomic.LoadInt32(&b) != 1 {
		t.Fatalf("Both subscribers should fire, got %d and %d", a, b)
	}
}

func waitFor(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for online=%v", want)
		}
	}
}

func TestWatcherTransitions(t *testing.T) {
	var healthy atomic.Bool

	w, err := NewWatcher(WatcherOptions{
		Probe: func(ctx context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("unreachable")
		},
		Interval:       10 * time.Millisecond,
		ProbeTimeout:   time.Second,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Close()

	changes := make(chan bool, 16)
	w.OnChange(func(online bool) { changes <- online })

	if w.Online() {
		t.Fatal("Watcher should start offline")
	}
	w.Start()
	w.Start() // second Start is a no-op

	healthy.Store(true)
	waitFor(t, changes, true)
	if !w.Online() {
		t.Fatal("Watcher should be online after a successful probe")
	}

	healthy.Store(false)
	waitFor(t, changes, false)
	if w.Online() {
		t.Fatal("Watcher should be offline after a failed probe")
	}

	// And back again once the backend recovers.
	healthy.Store(true)
	waitFor(t, changes, true)
}

func TestWatcherRequiresProbe(t *testing.T) {
	if _, err := NewWatcher(WatcherOptions{}); err == nil {
		t.Fatal("Watcher without a probe should be rejected")
	}
}

func TestWatcherClose(t *testing.T) {
	w, err := NewWatcher(WatcherOptions{
		Probe:    func(ctx context.Context) error { return nil },
		Interval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	w.Start()
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Second Close should be a no-op, got %v", err)
	}
}
