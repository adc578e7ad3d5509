package bot

import (
	"testing"
	"time"
)

func waitFired(t *testing.T, fired <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(within):
		t.Fatal("watchdog did not fire in time")
	}
}

func assertQuiet(t *testing.T, fired <-chan struct{}, during time.Duration) {
	t.Helper()
	select {
	case <-fired:
		t.Fatal("watchdog fired unexpectedly")
	case <-time.After(during):
	}
}

func TestWatchdogFires(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{})

	r.Arm("test", 20*time.Millisecond, func() { close(fired) })
	waitFired(t, fired, time.Second)

	if got := r.Armed(); got != 0 {
		t.Fatalf("Armed after fire = %d, want 0", got)
	}
}

func TestWatchdogStop(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{})

	w := r.Arm("test", 30*time.Millisecond, func() { close(fired) })
	w.Stop()
	w.Stop() // idempotent

	assertQuiet(t, fired, 100*time.Millisecond)
	if got := r.Armed(); got != 0 {
		t.Fatalf("Armed after stop = %d, want 0", got)
	}
}

func TestWatchdogExtend(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{})

	w := r.Arm("test", 50*time.Millisecond, func() { close(fired) })
	if !w.Extend(200 * time.Millisecond) {
		t.Fatal("Extend on armed watchdog returned false")
	}

	assertQuiet(t, fired, 100*time.Millisecond)
	waitFired(t, fired, time.Second)
}

func TestWatchdogRestart(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{})

	w := r.Arm("test", 150*time.Millisecond, func() { close(fired) })
	time.Sleep(100 * time.Millisecond)
	if !w.Restart() {
		t.Fatal("Restart on armed watchdog returned false")
	}

	assertQuiet(t, fired, 100*time.Millisecond)
	waitFired(t, fired, time.Second)
}

func TestWatchdogRestartAfterStop(t *testing.T) {
	r := NewWatchdogRegistry()
	w := r.Arm("test", 20*time.Millisecond, func() {})
	w.Stop()
	if w.Restart() {
		t.Fatal("Restart on stopped watchdog returned true")
	}
}

func TestWatchdogExtendAfterStop(t *testing.T) {
	r := NewWatchdogRegistry()
	w := r.Arm("test", 20*time.Millisecond, func() {})
	w.Stop()
	if w.Extend(time.Second) {
		t.Fatal("Extend on stopped watchdog returned true")
	}
}

func TestWatchdogPauseResume(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{})

	w := r.Arm("test", 50*time.Millisecond, func() { close(fired) })
	w.Pause()

	assertQuiet(t, fired, 150*time.Millisecond)

	w.Resume()
	waitFired(t, fired, time.Second)
}

func TestWatchdogExtendWhilePaused(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{})

	w := r.Arm("test", 20*time.Millisecond, func() { close(fired) })
	w.Pause()
	if !w.Extend(50 * time.Millisecond) {
		t.Fatal("Extend on paused watchdog returned false")
	}
	w.Resume()

	waitFired(t, fired, time.Second)
}

func TestWatchdogRearmReplaces(t *testing.T) {
	r := NewWatchdogRegistry()
	firstFired := make(chan struct{})
	secondFired := make(chan struct{})

	r.Arm("test", 30*time.Millisecond, func() { close(firstFired) })
	r.Arm("test", 30*time.Millisecond, func() { close(secondFired) })

	waitFired(t, secondFired, time.Second)
	assertQuiet(t, firstFired, 50*time.Millisecond)
}

func TestWatchdogRegistryExtendByName(t *testing.T) {
	r := NewWatchdogRegistry()
	r.Arm("test", time.Minute, func() {})
	defer r.StopAll()

	if !r.Extend("test", time.Minute) {
		t.Fatal("Extend on armed name returned false")
	}
	if r.Extend("missing", time.Minute) {
		t.Fatal("Extend on missing name returned true")
	}
}

func TestWatchdogStopAll(t *testing.T) {
	r := NewWatchdogRegistry()
	fired := make(chan struct{}, 3)

	for _, name := range []string{"a", "b", "c"} {
		r.Arm(name, 30*time.Millisecond, func() { fired <- struct{}{} })
	}
	if got := r.Armed(); got != 3 {
		t.Fatalf("Armed = %d, want 3", got)
	}

	r.StopAll()
	if got := r.Armed(); got != 0 {
		t.Fatalf("Armed after StopAll = %d, want 0", got)
	}

	select {
	case <-fired:
		t.Fatal("a drained watchdog still fired")
	case <-time.After(100 * time.Millisecond):
	}
}
