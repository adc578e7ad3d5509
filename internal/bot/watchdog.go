package bot

import (
	"sync"
	"time"
)

// Watchdog is a cancellable one-shot timer with the extend-or-fire contract:
// armed with a deadline, it runs its callback unless stopped or pushed back
// first. One owner arms/extends/stops it; Stop is idempotent.
type Watchdog struct {
	name     string
	registry *WatchdogRegistry

	mu        sync.Mutex
	timer     *time.Timer
	deadline  time.Time
	armedFor  time.Duration
	remaining time.Duration // set while paused
	fn        func()
	stopped   bool
}

// WatchdogRegistry tracks every armed watchdog so the shutdown path and the
// outer exception boundary can drain them in one call.
type WatchdogRegistry struct {
	mu   sync.Mutex
	dogs map[string]*Watchdog
}

func NewWatchdogRegistry() *WatchdogRegistry {
	return &WatchdogRegistry{dogs: make(map[string]*Watchdog)}
}

// Arm schedules fn to run after d unless the watchdog is stopped or extended
// before then. Arming a name that is already armed replaces the previous
// timer.
func (r *WatchdogRegistry) Arm(name string, d time.Duration, fn func()) *Watchdog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.dogs[name]; ok {
		old.stop()
	}

	w := &Watchdog{
		name:     name,
		registry: r,
		deadline: time.Now().Add(d),
		armedFor: d,
		fn:       fn,
	}
	w.timer = time.AfterFunc(d, w.fire)
	r.dogs[name] = w

	return w
}

// Extend pushes the named watchdog's deadline back by d on top of whatever
// time it has left. Returns false when no such watchdog is armed.
func (r *WatchdogRegistry) Extend(name string, d time.Duration) bool {
	r.mu.Lock()
	w, ok := r.dogs[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return w.Extend(d)
}

// Stop cancels the named watchdog if armed.
func (r *WatchdogRegistry) Stop(name string) {
	r.mu.Lock()
	w, ok := r.dogs[name]
	r.mu.Unlock()
	if ok {
		w.Stop()
	}
}

// StopAll drains the registry. Called on shutdown and from the exception
// boundary before a session teardown.
func (r *WatchdogRegistry) StopAll() {
	r.mu.Lock()
	dogs := make([]*Watchdog, 0, len(r.dogs))
	for _, w := range r.dogs {
		dogs = append(dogs, w)
	}
	r.mu.Unlock()

	for _, w := range dogs {
		w.Stop()
	}
}

// Armed reports how many watchdogs are currently outstanding.
func (r *WatchdogRegistry) Armed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dogs)
}

func (r *WatchdogRegistry) remove(name string, w *Watchdog) {
	r.mu.Lock()
	if r.dogs[name] == w {
		delete(r.dogs, name)
	}
	r.mu.Unlock()
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	fn := w.fn
	w.mu.Unlock()

	w.registry.remove(w.name, w)
	if fn != nil {
		fn()
	}
}

// Extend adds d to the remaining time. Works on paused watchdogs too.
func (w *Watchdog) Extend(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	if w.timer == nil {
		w.remaining += d
		return true
	}
	remaining := time.Until(w.deadline)
	if remaining < 0 {
		remaining = 0
	}
	w.deadline = time.Now().Add(remaining + d)
	w.timer.Reset(remaining + d)
	return true
}

// Restart winds the countdown back to the duration it was originally armed
// with. Returns false once the watchdog fired or was stopped.
func (w *Watchdog) Restart() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.deadline = time.Now().Add(w.armedFor)
	w.remaining = 0
	if w.timer == nil {
		// Paused: restart resumes the countdown from the top.
		w.timer = time.AfterFunc(w.armedFor, w.fire)
		return true
	}
	w.timer.Reset(w.armedFor)
	return true
}

// Pause stops the countdown keeping the remaining time, to be resumed later.
func (w *Watchdog) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timer == nil {
		return
	}
	w.timer.Stop()
	w.remaining = time.Until(w.deadline)
	if w.remaining < 0 {
		w.remaining = 0
	}
	w.timer = nil
}

// Resume restarts a paused countdown with the time it had left.
func (w *Watchdog) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timer != nil {
		return
	}
	w.deadline = time.Now().Add(w.remaining)
	w.timer = time.AfterFunc(w.remaining, w.fire)
}

// Stop cancels the watchdog; its callback will not run. Idempotent.
func (w *Watchdog) Stop() {
	w.stop()
	w.registry.remove(w.name, w)
}

func (w *Watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
