// Package debounce coalesces rapid parameter edits into one outbound update
// per key per quiet period.
package debounce

import (
	"sync"
	"time"

	"github.com/joeycumines/worldgen-panel/internal/loop"
)

// DefaultQuietPeriod is used when a Debouncer is created with a zero period.
const DefaultQuietPeriod = 100 * time.Millisecond

// Debouncer keeps a single timer for the whole batch. Every Schedule restarts
// it; when it fires, emit is called once per dirty key in the order the keys
// were first scheduled. emit reads the current value itself, so the last edit
// of each key is what gets sent.
type Debouncer struct {
	sched  loop.Scheduler
	period time.Duration
	emit   func(key string)

	mu     sync.Mutex
	dirty  []string
	marked map[string]bool
	cancel func()
}

// New returns a Debouncer. emit runs on whatever goroutine sched fires
// timers on.
func New(sched loop.Scheduler, period time.Duration, emit func(key string)) *Debouncer {
	if period <= 0 {
		period = DefaultQuietPeriod
	}
	return &Debouncer{
		sched:  sched,
		period: period,
		emit:   emit,
		marked: make(map[string]bool),
	}
}

// Schedule marks key dirty and restarts the quiet period.
func (d *Debouncer) Schedule(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.marked[key] {
		d.marked[key] = true
		d.dirty = append(d.dirty, key)
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = d.sched.AfterFunc(d.period, d.Flush)
}

// Flush emits every dirty key now and cancels the pending timer.
func (d *Debouncer) Flush() {
	keys := d.take()
	for _, k := range keys {
		d.emit(k)
	}
}

// Stop discards dirty keys without emitting them.
func (d *Debouncer) Stop() {
	d.take()
}

// Pending returns the dirty keys in emit order.
func (d *Debouncer) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dirty...)
}

func (d *Debouncer) take() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	keys := d.dirty
	d.dirty = nil
	clear(d.marked)
	return keys
}
