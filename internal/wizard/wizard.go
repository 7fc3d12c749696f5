// Package wizard implements the step navigation state machine and its
// synchronization with the host.
package wizard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeycumines/worldgen-panel/internal/bridge"
	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/debounce"
	"github.com/joeycumines/worldgen-panel/internal/logging"
	"github.com/joeycumines/worldgen-panel/internal/loop"
	"github.com/joeycumines/worldgen-panel/internal/params"
)

// Bus is the part of the bridge the wizard talks through.
type Bus interface {
	Send(kind bridge.Kind, payload any) error
	Subscribe(kind bridge.Kind, h bridge.Handler) (unsubscribe func())
}

// Options configures a Wizard.
type Options struct {
	Bus   Bus
	Store *params.Store
	// Scheduler drives the update debouncer.
	Scheduler   loop.Scheduler
	QuietPeriod time.Duration
	// TotalSteps fixes the number of steps. Zero means the number of steps
	// in the current catalog.
	TotalSteps int
	Catalog    catalog.Catalog
	Logger     *slog.Logger
}

// Wizard owns the current step. It is driven from the panel's event loop;
// the lock only protects readers on other goroutines.
type Wizard struct {
	bus       Bus
	store     *params.Store
	debouncer *debounce.Debouncer
	logger    *slog.Logger
	fixed     int

	mu         sync.RWMutex
	current    int
	steps      catalog.Catalog
	archetypes []string
	observers  []func()
}

// New creates a Wizard at step 0. The store's catalog is set to
// opts.Catalog.
func New(opts Options) *Wizard {
	store := opts.Store
	if store == nil {
		store = params.NewStore()
	}
	w := &Wizard{
		bus:    opts.Bus,
		store:  store,
		logger: logging.OrNop(opts.Logger).With("component", "wizard"),
		fixed:  opts.TotalSteps,
		steps:  opts.Catalog,
	}
	store.SetCatalog(opts.Catalog)
	w.debouncer = debounce.New(opts.Scheduler, opts.QuietPeriod, w.emitParameter)
	return w
}

// Store returns the parameter store.
func (w *Wizard) Store() *params.Store { return w.store }

// Debouncer returns the update debouncer.
func (w *Wizard) Debouncer() *debounce.Debouncer { return w.debouncer }

// Bind subscribes the wizard to host pushes. The returned func unsubscribes.
func (w *Wizard) Bind() (unbind func()) {
	subs := []func(){
		w.bus.Subscribe(bridge.KindStepDefinitions, w.onStepDefinitions),
		w.bus.Subscribe(bridge.KindParameters, w.onParameters),
		w.bus.Subscribe(bridge.KindParamsUpdate, w.onParamsUpdate),
		w.bus.Subscribe(bridge.KindArchetypeParams, w.onParamsUpdate),
		w.bus.Subscribe(bridge.KindHostStepChanged, w.onStepChanged),
		w.bus.Subscribe(bridge.KindArchetypes, w.onArchetypes),
	}
	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
	}
}

// Observe registers fn to be called after any state change.
func (w *Wizard) Observe(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, fn)
}

func (w *Wizard) notify() {
	w.mu.RLock()
	observers := append([]func(){}, w.observers...)
	w.mu.RUnlock()
	for _, fn := range observers {
		fn()
	}
}

// Announce tells the host the panel is up and asks for the step catalog.
func (w *Wizard) Announce() {
	w.send(bridge.KindReady, nil)
	w.send(bridge.KindRequestStepDefinitions, nil)
}

// CurrentStep returns the current step index.
func (w *Wizard) CurrentStep() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// TotalSteps returns the number of navigable steps.
func (w *Wizard) TotalSteps() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.totalLocked()
}

func (w *Wizard) totalLocked() int {
	if w.fixed > 0 {
		return w.fixed
	}
	return len(w.steps)
}

// GoTo moves to step n and notifies the host. It reports false, changing
// nothing, when n is out of range.
func (w *Wizard) GoTo(n int) bool {
	if !w.setStep(n) {
		w.logger.Debug("step out of range", "step", n)
		return false
	}
	w.send(bridge.KindStepChanged, map[string]int{"step": n})
	w.notify()
	return true
}

// Next moves forward one step.
func (w *Wizard) Next() bool { return w.GoTo(w.CurrentStep() + 1) }

// Previous moves back one step.
func (w *Wizard) Previous() bool { return w.GoTo(w.CurrentStep() - 1) }

// SyncStep applies a host-initiated step change. It is range-guarded like
// GoTo but does not echo step-changed back to the host.
func (w *Wizard) SyncStep(n int) bool {
	if !w.setStep(n) {
		w.logger.Debug("ignoring host step out of range", "step", n)
		return false
	}
	w.notify()
	return true
}

func (w *Wizard) setStep(n int) bool {
	w.mu.Lock()
	if n < 0 || n >= w.totalLocked() {
		w.mu.Unlock()
		return false
	}
	w.current = n
	step, ok := w.steps.Step(n)
	w.mu.Unlock()
	if ok {
		w.store.EnsureInitialized(step)
	}
	return true
}

func (w *Wizard) currentDef() (catalog.Step, int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	step, ok := w.steps.Step(w.current)
	return step, w.current, ok
}

// Title returns the current step's title, or "Step N" (1-based) when the
// catalog has none.
func (w *Wizard) Title() string {
	step, n, ok := w.currentDef()
	if !ok || step.Title == "" {
		return fmt.Sprintf("Step %d", n+1)
	}
	return step.Title
}

// Parameters returns the curated parameters of the current step. Any of them
// missing from the store are given their defaults first, so this mutates the
// store and belongs on the panel loop.
func (w *Wizard) Parameters() []catalog.Parameter {
	step, _, ok := w.currentDef()
	if !ok {
		return nil
	}
	w.store.EnsureInitialized(step)
	return curated(step)
}

// CuratedParameters is Parameters without touching the store. It is safe
// from any goroutine.
func (w *Wizard) CuratedParameters() []catalog.Parameter {
	step, _, ok := w.currentDef()
	if !ok {
		return nil
	}
	return curated(step)
}

func curated(step catalog.Step) []catalog.Parameter {
	var out []catalog.Parameter
	for _, p := range step.Parameters {
		if p.Curated {
			out = append(out, p)
		}
	}
	return out
}

// InfoText returns the current step's info text, or nil.
func (w *Wizard) InfoText() *string {
	step, _, ok := w.currentDef()
	if !ok {
		return nil
	}
	return step.InfoText
}

// Steps returns the current catalog.
func (w *Wizard) Steps() catalog.Catalog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.steps
}

// SetSteps replaces the catalog wholesale and initializes defaults. The
// current step is pulled back into range if the catalog shrank.
func (w *Wizard) SetSteps(steps catalog.Catalog) {
	for _, issue := range catalog.Validate(steps) {
		w.logger.Warn("catalog issue", "issue", issue)
	}
	w.mu.Lock()
	w.steps = steps
	if total := w.totalLocked(); w.current >= total && total > 0 {
		w.current = total - 1
	}
	w.mu.Unlock()

	w.store.SetCatalog(steps)
	w.store.InitializeDefaults(steps)
	w.logger.Info("step definitions loaded", "steps", len(steps))
	w.notify()
}

// UpdateParameter stores an edit and schedules it for the host. The
// normalized value is returned.
func (w *Wizard) UpdateParameter(key string, raw any) (any, error) {
	v, err := w.store.Update(key, raw)
	if err != nil {
		w.logger.Warn("parameter update rejected", "key", key, "error", err)
		return nil, err
	}
	w.debouncer.Schedule(key)
	w.notify()
	return v, nil
}

func (w *Wizard) emitParameter(key string) {
	value, ok := w.store.Get(key)
	if !ok {
		return
	}
	w.send(bridge.KindParameterChanged, map[string]any{"key": key, "value": value})
	if def, ok := w.store.Catalog().Lookup(key); ok && def.AzgaarKey != "" {
		w.send(bridge.KindUpdateParam, map[string]any{"azgaar_key": def.AzgaarKey, "value": value})
	}
}

// ApplyParameters stores host-provided values verbatim.
func (w *Wizard) ApplyParameters(values map[string]any) {
	for k, v := range values {
		w.store.Set(k, v)
	}
	w.notify()
}

// Archetypes returns the names last announced by the host.
func (w *Wizard) Archetypes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.archetypes...)
}

// SetArchetypes records the archetype names offered by the host.
func (w *Wizard) SetArchetypes(names []string) {
	w.mu.Lock()
	w.archetypes = append([]string(nil), names...)
	w.mu.Unlock()
	w.notify()
}

// LoadArchetype asks the host for an archetype's parameters. The host answers
// with archetype_params.
func (w *Wizard) LoadArchetype(name string) error {
	return w.bus.Send(bridge.KindLoadArchetype, map[string]string{"archetype": name})
}

func (w *Wizard) send(kind bridge.Kind, payload any) {
	// Delivery is best effort; the bridge has already logged failures.
	_ = w.bus.Send(kind, payload)
}

type stepDefinitionsPayload struct {
	Steps catalog.Catalog `json:"steps"`
}

type parametersPayload struct {
	Parameters map[string]any `json:"parameters"`
}

type paramsPayload struct {
	Params map[string]any `json:"params"`
}

type stepPayload struct {
	Step *int `json:"step"`
}

type archetypesPayload struct {
	Names []string `json:"archetype_names"`
}

func (w *Wizard) onStepDefinitions(env bridge.Envelope) {
	p, err := bridge.Decode[stepDefinitionsPayload](env)
	if err != nil {
		w.logger.Warn("ignoring malformed host payload", "kind", string(env.Kind), "error", err)
		return
	}
	w.SetSteps(p.Steps)
}

func (w *Wizard) onParameters(env bridge.Envelope) {
	p, err := bridge.Decode[parametersPayload](env)
	if err != nil {
		w.logger.Warn("ignoring malformed host payload", "kind", string(env.Kind), "error", err)
		return
	}
	w.ApplyParameters(p.Parameters)
}

func (w *Wizard) onParamsUpdate(env bridge.Envelope) {
	p, err := bridge.Decode[paramsPayload](env)
	if err != nil {
		w.logger.Warn("ignoring malformed host payload", "kind", string(env.Kind), "error", err)
		return
	}
	w.ApplyParameters(p.Params)
}

func (w *Wizard) onStepChanged(env bridge.Envelope) {
	p, err := bridge.Decode[stepPayload](env)
	if err != nil || p.Step == nil {
		w.logger.Warn("ignoring malformed host payload", "kind", string(env.Kind))
		return
	}
	w.SyncStep(*p.Step)
}

func (w *Wizard) onArchetypes(env bridge.Envelope) {
	p, err := bridge.Decode[archetypesPayload](env)
	if err != nil {
		w.logger.Warn("ignoring malformed host payload", "kind", string(env.Kind), "error", err)
		return
	}
	w.SetArchetypes(p.Names)
}
