package queue

import (
	"log/slog"
	"sync"
	"time"
)

// minArmDelay floors trigger delays. Re-arming on every enqueue with a
// shorter delay would turn a burst of uploads into a burst of drain passes.
const minArmDelay = 5 * time.Second

// Trigger is a one-shot re-armable timer that schedules drain passes.
// There is no resident worker: the armed timer's goroutine runs one pass
// and exits, and the pass re-arms the trigger itself if work remains.
type Trigger struct {
	logger *slog.Logger
	fire   func()

	mu      sync.Mutex
	timer   *time.Timer
	armed   bool
	stopped bool
}

// NewTrigger creates a trigger that invokes fire when it goes off.
func NewTrigger(logger *slog.Logger, fire func()) *Trigger {
	return &Trigger{
		logger: logger.With("component", "queue_trigger"),
		fire:   fire,
	}
}

// Arm schedules a firing after delay unless one is already scheduled.
// Delays below minArmDelay are raised to it. Returns whether this call
// armed the timer.
func (t *Trigger) Arm(delay time.Duration) bool {
	if delay < minArmDelay {
		delay = minArmDelay
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.armed {
		return false
	}

	t.armed = true
	t.timer = time.AfterFunc(delay, t.run)
	t.logger.Debug("trigger armed", "delay", delay)
	return true
}

// FireNow runs one pass immediately on its own goroutine, independent of
// any armed timer. Used by the manual process endpoint.
func (t *Trigger) FireNow() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	go t.fire()
}

// Stop cancels any scheduled firing and refuses future arms. A pass already
// running is not interrupted.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
}

// Armed reports whether a firing is currently scheduled.
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *Trigger) run() {
	t.mu.Lock()
	t.armed = false
	t.timer = nil
	stopped := t.stopped
	t.mu.Unlock()

	if stopped {
		return
	}
	t.fire()
}
