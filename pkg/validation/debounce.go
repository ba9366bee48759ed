package validation

import (
	"sync"
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// DefaultDebounceDelay is how long the debouncer waits after the last graph
// mutation before re-running validation.
const DefaultDebounceDelay = time.Second

// Debouncer re-runs graph validation on mutation with trailing-edge
// debouncing, so rapid edits in the builder do not thrash the check. The
// result of the last settled run is delivered to the callback.
type Debouncer struct {
	delay    time.Duration
	callback func(Result)

	mu      sync.Mutex
	timer   *time.Timer
	pending *models.Workflow
	stopped bool
}

// NewDebouncer creates a debouncer delivering settled results to callback.
// A non-positive delay falls back to DefaultDebounceDelay.
func NewDebouncer(delay time.Duration, callback func(Result)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}

	return &Debouncer{
		delay:    delay,
		callback: callback,
	}
}

// Trigger records a graph mutation and (re)arms the trailing-edge timer.
// Only the most recent snapshot is validated once the timer fires.
func (d *Debouncer) Trigger(workflow *models.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = workflow

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Flush validates the pending snapshot immediately, cancelling any armed
// timer. No-op when nothing is pending.
func (d *Debouncer) Flush() {
	d.fire()
}

// Stop cancels any pending run. Further Trigger calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = nil

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()

	workflow := d.pending
	d.pending = nil

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	stopped := d.stopped
	d.mu.Unlock()

	if stopped || workflow == nil {
		return
	}

	result := Validate(workflow)

	if d.callback != nil {
		d.callback(result)
	}
}
