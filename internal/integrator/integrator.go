// Package integrator establishes a verified message channel into the
// embedded map surface.
//
// Each attempt polls for the surface to become ready, probes whether its
// document is reachable, injects a message listener (by direct script
// insertion, or by indirect evaluation when the document is cross-origin)
// and then verifies the listener by waiting for it to acknowledge a tagged
// test message. Failed attempts are retried with capped exponential backoff.
// The outcome is always a Result, never a panic.
package integrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	bt "github.com/joeycumines/go-behaviortree"

	"github.com/joeycumines/worldgen-panel/internal/logging"
	"github.com/joeycumines/worldgen-panel/internal/surface"
)

var (
	// ErrUnavailable is returned when the surface does not become ready
	// within the polling window.
	ErrUnavailable = errors.New("integrator: surface not available")
	// ErrAckTimeout is returned when the listener does not acknowledge the
	// test message in time.
	ErrAckTimeout = errors.New("integrator: listener did not acknowledge")
)

// Strategy is how the listener was injected.
type Strategy string

const (
	StrategyNone     Strategy = ""
	StrategyDirect   Strategy = "direct-insertion"
	StrategyIndirect Strategy = "indirect-eval"
)

// Config tunes the integrator.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	AckTimeout   time.Duration
	// AllowedOrigins are sender origins the listener accepts besides the
	// surface's own.
	AllowedOrigins []string
}

// DefaultConfig returns the defaults used by the panel.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		PollInterval:   200 * time.Millisecond,
		PollTimeout:    10 * time.Second,
		AckTimeout:     2 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// Backoff returns the delay before attempt i, counting the first retry as
// attempt 1: min(base*2^(i-1), max).
func (c Config) Backoff(i int) time.Duration {
	if i < 1 {
		return 0
	}
	d := c.BaseDelay
	for n := 1; n < i; n++ {
		d *= 2
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// State is the integration state.
type State struct {
	ListenerInjected bool
	ListenerVerified bool
	ForeignReady     bool
}

// Diagnostics records what the last attempts observed.
type Diagnostics struct {
	CrossOrigin bool
	Attempts    int
	LastError   string
	Strategy    Strategy
	// Connectivity is the last finished origin check, if any.
	Connectivity *Diagnosis
}

// Result is the terminal outcome of Run.
type Result struct {
	OK          bool
	Attempts    int
	Strategy    Strategy
	CrossOrigin bool
	// Delays are the backoff delays waited before each retry.
	Delays []time.Duration
	Err    error
}

// Options configures an Integrator.
type Options struct {
	Target Target
	Config Config
	Logger *slog.Logger
	// Diagnoser, if set, checks the surface's origin at the start of Run.
	// The check outlives Run; see Wait.
	Diagnoser *Diagnoser
	// Sleep waits d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// NewID tags test messages. Defaults to a random UUID.
	NewID func() string
}

// Integrator drives one embedded surface. Run may be called again after it
// returns, but not concurrently.
type Integrator struct {
	target    Target
	cfg       Config
	logger    *slog.Logger
	diagnoser *Diagnoser
	sleep     func(ctx context.Context, d time.Duration) error
	newID     func() string
	checks    sync.WaitGroup

	// fwdMu orders sends to the surface so held parameters are never sent
	// after newer ones.
	fwdMu sync.Mutex

	mu              sync.Mutex
	state           State
	diag            Diagnostics
	acks            map[string]chan struct{}
	pendingParams   *paramsMessage
	pendingGenerate bool
	observers       []func(State)
}

type paramsMessage struct {
	params map[string]any
	seed   any
}

// New returns an Integrator for opts.Target.
func New(opts Options) *Integrator {
	i := &Integrator{
		target:    opts.Target,
		cfg:       opts.Config,
		logger:    logging.OrNop(opts.Logger).With("component", "integrator"),
		diagnoser: opts.Diagnoser,
		sleep:     opts.Sleep,
		newID:     opts.NewID,
		acks:      make(map[string]chan struct{}),
	}
	if i.sleep == nil {
		i.sleep = sleepContext
	}
	if i.newID == nil {
		i.newID = func() string { return uuid.NewString() }
	}
	return i
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the connectivity checks started by Run have finished.
func (i *Integrator) Wait() {
	i.checks.Wait()
}

// State returns the integration state.
func (i *Integrator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Diagnostics returns the recorded diagnostics.
func (i *Integrator) Diagnostics() Diagnostics {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.diag
}

// Observe registers fn to receive the state after every change. fn may be
// called from any goroutine.
func (i *Integrator) Observe(fn func(State)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.observers = append(i.observers, fn)
}

func (i *Integrator) setState(fn func(*State)) {
	i.mu.Lock()
	before := i.state
	fn(&i.state)
	s := i.state
	observers := append([]func(State){}, i.observers...)
	i.mu.Unlock()
	if s == before {
		return
	}
	for _, o := range observers {
		o(s)
	}
}

// Run makes up to MaxRetries+1 attempts to install and verify the listener.
// It blocks until success, exhaustion or ctx is done.
func (i *Integrator) Run(ctx context.Context) Result {
	if i.diagnoser != nil {
		origin := i.target.Origin()
		i.checks.Add(1)
		go func() {
			defer i.checks.Done()
			// bounded by the diagnoser's own timeouts, and by ctx
			d := i.diagnoser.Check(ctx, origin)
			if errors.Is(d.Err, context.Canceled) {
				return
			}
			i.mu.Lock()
			i.diag.Connectivity = &d
			i.mu.Unlock()
		}()
	}

	var res Result
	retries := max(i.cfg.MaxRetries, 0)
	for n := 0; n <= retries; n++ {
		if n > 0 {
			delay := i.cfg.Backoff(n)
			res.Delays = append(res.Delays, delay)
			i.logger.Info("retrying surface integration", "attempt", n+1, "delay", delay)
			if err := i.sleep(ctx, delay); err != nil {
				res.Err = err
				return res
			}
		}
		res.Attempts = n + 1

		a := &attempt{Integrator: i, ctx: ctx}
		status, err := a.tree().Tick()
		if err == nil && status == bt.Success {
			res.OK = true
			res.Strategy = a.strategy
			res.CrossOrigin = a.crossOrigin
			i.recordAttempt(a, nil)
			i.logger.Info("surface listener verified", "attempts", res.Attempts, "strategy", string(a.strategy), "cross_origin", a.crossOrigin)
			i.markVerified()
			return res
		}
		if err == nil {
			err = a.err
		}
		if err == nil {
			err = fmt.Errorf("attempt ended with status %v", status)
		}
		res.Err = err
		res.Strategy = a.strategy
		res.CrossOrigin = a.crossOrigin
		i.recordAttempt(a, err)
		// A failed verification re-arms injection for the next attempt.
		i.setState(func(s *State) {
			s.ListenerInjected = false
			s.ListenerVerified = false
		})
		i.logger.Warn("integration attempt failed", "attempt", res.Attempts, "error", err)

		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
	}
	i.logger.Error("surface integration gave up", "attempts", res.Attempts, "error", res.Err)
	return res
}

func (i *Integrator) recordAttempt(a *attempt, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.diag.Attempts++
	i.diag.CrossOrigin = a.crossOrigin
	if a.strategy != StrategyNone {
		i.diag.Strategy = a.strategy
	}
	if err != nil {
		i.diag.LastError = err.Error()
	}
}

// attempt is the state of one pass through the pipeline.
type attempt struct {
	*Integrator
	ctx         context.Context
	crossOrigin bool
	strategy    Strategy
	err         error
}

func (a *attempt) tree() bt.Node {
	return bt.New(
		bt.Sequence,
		bt.New(a.leaf(a.awaitAvailable)),
		bt.New(a.leaf(a.probe)),
		bt.New(
			bt.Selector,
			bt.New(a.leaf(a.injectDirect)),
			bt.New(a.leaf(a.injectIndirect)),
		),
		bt.New(a.leaf(a.verify)),
	)
}

// leaf adapts a step to a tick. Errors are kept on the attempt rather than
// returned, so a selector can move on to its next child.
func (a *attempt) leaf(step func() error) bt.Tick {
	return func([]bt.Node) (bt.Status, error) {
		if err := step(); err != nil {
			a.err = err
			return bt.Failure, nil
		}
		return bt.Success, nil
	}
}

func (a *attempt) awaitAvailable() error {
	interval := a.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	maxPolls := int(a.cfg.PollTimeout / interval)
	deadline := time.Now().Add(a.cfg.PollTimeout)

	for polls := 0; ; polls++ {
		if a.target.Ready() {
			return nil
		}
		if polls >= maxPolls || !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %d polls", ErrUnavailable, polls+1)
		}
		if err := a.sleep(a.ctx, interval); err != nil {
			return err
		}
	}
}

func (a *attempt) probe() error {
	err := a.target.Probe()
	switch {
	case err == nil:
		a.crossOrigin = false
	case errors.Is(err, surface.ErrCrossOrigin):
		a.crossOrigin = true
		a.logger.Info("surface document is cross-origin, using indirect evaluation", "origin", a.target.Origin())
	default:
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}

func (a *attempt) injectDirect() error {
	if a.crossOrigin {
		return surface.ErrCrossOrigin
	}
	if err := a.target.InsertScript(ListenerScript(a.cfg.AllowedOrigins)); err != nil {
		a.logger.Warn("script insertion failed, falling back to indirect evaluation", "error", err)
		return fmt.Errorf("insert listener: %w", err)
	}
	a.injected(StrategyDirect)
	return nil
}

func (a *attempt) injectIndirect() error {
	if _, err := a.target.Evaluate(ListenerScript(a.cfg.AllowedOrigins)); err != nil {
		return fmt.Errorf("evaluate listener: %w", err)
	}
	a.injected(StrategyIndirect)
	return nil
}

func (a *attempt) injected(s Strategy) {
	a.strategy = s
	a.setState(func(st *State) { st.ListenerInjected = true })
	a.logger.Debug("listener injected", "strategy", string(s))
}

func (a *attempt) verify() error {
	id := a.newID()
	ack := make(chan struct{})
	a.mu.Lock()
	a.acks[id] = ack
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.acks, id)
		a.mu.Unlock()
	}()

	if err := a.post(map[string]any{"type": MsgTest, "testId": id}); err != nil {
		return fmt.Errorf("send test message: %w", err)
	}

	timer := time.NewTimer(a.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case <-ack:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w within %v", ErrAckTimeout, a.cfg.AckTimeout)
	case <-a.ctx.Done():
		return a.ctx.Err()
	}
}

func (i *Integrator) post(msg map[string]any) error {
	target := i.target.Origin()
	if target == "" || target == "null" {
		target = "*"
	}
	return i.target.PostMessage(msg, target)
}

// HandleMessage processes a message the surface posted to its parent.
// Messages from origins outside the allow-list are dropped.
func (i *Integrator) HandleMessage(msg map[string]any, origin string) {
	if !i.originAllowed(origin) {
		i.logger.Warn("rejected surface message from unexpected origin", "origin", origin)
		return
	}
	typ, _ := msg["type"].(string)
	switch typ {
	case MsgReady:
		i.logger.Info("surface reported ready")
		i.setState(func(s *State) { s.ForeignReady = true })
	case MsgTestAck:
		id, _ := msg["testId"].(string)
		i.mu.Lock()
		ack, ok := i.acks[id]
		if ok {
			delete(i.acks, id)
		}
		i.mu.Unlock()
		if ok {
			close(ack)
		} else {
			i.logger.Debug("ignoring acknowledgement for unknown test", "test_id", id)
		}
	default:
		i.logger.Debug("ignoring surface message", "type", typ)
	}
}

func (i *Integrator) originAllowed(origin string) bool {
	if origin == i.target.Origin() {
		return true
	}
	for _, o := range i.cfg.AllowedOrigins {
		if o == origin || (o == "*" && origin == "null") {
			return true
		}
	}
	return false
}

// Forward sends parameters to the surface. Until the listener is verified
// only the latest parameters are kept; they are sent once it is.
func (i *Integrator) Forward(params map[string]any, seed any) error {
	i.fwdMu.Lock()
	defer i.fwdMu.Unlock()
	i.mu.Lock()
	if !i.state.ListenerVerified {
		i.pendingParams = &paramsMessage{params: params, seed: seed}
		i.mu.Unlock()
		i.logger.Debug("holding parameters until the listener is verified", "count", len(params))
		return nil
	}
	i.mu.Unlock()
	return i.post(map[string]any{"type": MsgParams, "params": params, "seed": seed})
}

// TriggerGeneration asks the surface to generate. Before verification the
// request is held and sent after any held parameters.
func (i *Integrator) TriggerGeneration() error {
	i.fwdMu.Lock()
	defer i.fwdMu.Unlock()
	i.mu.Lock()
	if !i.state.ListenerVerified {
		i.pendingGenerate = true
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()
	return i.post(map[string]any{"type": MsgGenerate})
}

func (i *Integrator) markVerified() {
	i.fwdMu.Lock()
	defer i.fwdMu.Unlock()

	i.setState(func(s *State) { s.ListenerVerified = true })

	i.mu.Lock()
	p, gen := i.pendingParams, i.pendingGenerate
	i.pendingParams, i.pendingGenerate = nil, false
	i.mu.Unlock()

	if p != nil {
		if err := i.post(map[string]any{"type": MsgParams, "params": p.params, "seed": p.seed}); err != nil {
			i.logger.Warn("failed to forward to surface", "error", err)
		}
	}
	if gen {
		if err := i.post(map[string]any{"type": MsgGenerate}); err != nil {
			i.logger.Warn("failed to forward to surface", "error", err)
		}
	}
}
