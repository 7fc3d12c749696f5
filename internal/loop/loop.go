// Package loop provides the single cooperative event loop that serializes all
// panel state mutation, along with the timers that are its only suspension
// points.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// Scheduler arranges for fn to run once after d has elapsed. The returned
// cancel func prevents fn from running if it has not run yet; calling it more
// than once is safe.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Loop wraps a goja_nodejs event loop. Every callback posted to a Loop runs on
// the same goroutine, one at a time and to completion, so code reached only
// through a Loop needs no further locking.
//
// The goja.Runtime owned by the loop is also usable via RunVM, which is how
// the embedded surface hosts third-party script in its own isolated Loop.
type Loop struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	// timeout bounds Run and RunVM; zero disables it.
	timeout time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// DefaultSyncTimeout is the maximum duration to wait for Run operations.
const DefaultSyncTimeout = 5 * time.Second

var (
	// ErrNotRunning is returned when work is submitted to a stopped loop.
	ErrNotRunning = errors.New("event loop not running")
	// ErrStopped is returned when the loop stops while a caller is waiting.
	ErrStopped = errors.New("event loop stopped before completion")
)

// New creates and starts a Loop. The loop stops when ctx is canceled or when
// Close is called.
func New(ctx context.Context) (*Loop, error) {
	registry := require.NewRegistry()
	inner := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)

	// Lifecycle context is independent of ctx; ctx only triggers Close.
	childCtx, cancel := context.WithCancel(context.Background())

	l := &Loop{
		loop:     inner,
		registry: registry,
		timeout:  DefaultSyncTimeout,
		ctx:      childCtx,
		cancel:   cancel,
	}

	inner.Start()
	l.mu.Lock()
	l.started = true
	l.mu.Unlock()

	ready := make(chan struct{})
	if !inner.RunOnLoop(func(*goja.Runtime) { close(ready) }) {
		cancel()
		return nil, errors.New("failed to initialize: event loop not running")
	}
	<-ready

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() {
			_ = l.Close()
		})
	}

	return l, nil
}

// Registry returns the require.Registry shared by scripts on this loop.
func (l *Loop) Registry() *require.Registry {
	return l.registry
}

// Close stops the loop. Pending timers are discarded. Safe to call multiple
// times.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
	l.loop.Stop()
	return nil
}

// Done is closed once the loop has been stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.ctx.Done()
}

// IsRunning reports whether the loop has started and not yet stopped.
func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started && !l.stopped
}

// SetTimeout changes the timeout applied to Run and RunVM.
func (l *Loop) SetTimeout(timeout time.Duration) {
	l.mu.Lock()
	l.timeout = timeout
	l.mu.Unlock()
}

// Post schedules fn on the loop without waiting. It reports false if the loop
// is not running.
func (l *Loop) Post(fn func()) bool {
	if !l.IsRunning() {
		return false
	}
	return l.loop.RunOnLoop(func(*goja.Runtime) { fn() })
}

// PostVM is Post with access to the loop's runtime.
func (l *Loop) PostVM(fn func(vm *goja.Runtime)) bool {
	if !l.IsRunning() {
		return false
	}
	return l.loop.RunOnLoop(fn)
}

// Run executes fn on the loop and waits for its result.
//
// Run must not be called from the loop itself; it would wait on its own
// goroutine.
func (l *Loop) Run(fn func() error) error {
	return l.RunVM(func(*goja.Runtime) error { return fn() })
}

// RunVM executes fn with the loop's goja.Runtime and waits for its result.
// The runtime must not escape fn.
func (l *Loop) RunVM(fn func(vm *goja.Runtime) error) error {
	l.mu.RLock()
	if !l.started || l.stopped {
		l.mu.RUnlock()
		return ErrNotRunning
	}
	timeout := l.timeout
	l.mu.RUnlock()

	errCh := make(chan error, 1)
	if !l.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- fn(vm)
	}) {
		return ErrNotRunning
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-errCh:
		return err
	case <-l.Done():
		return ErrStopped
	case <-timeoutCh:
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// AfterFunc implements Scheduler using the loop's own timers, so fn runs on
// the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	if !l.IsRunning() {
		return func() {}
	}
	t := l.loop.SetTimeout(func(*goja.Runtime) { fn() }, d)
	var once sync.Once
	return func() {
		once.Do(func() { l.loop.ClearTimeout(t) })
	}
}

// LoadScript compiles and runs code on the loop's runtime.
func (l *Loop) LoadScript(name, code string) error {
	return l.RunVM(func(vm *goja.Runtime) error {
		prg, err := goja.Compile(name, code, false)
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", name, err)
		}
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("failed to run %s: %w", name, err)
		}
		return nil
	})
}
