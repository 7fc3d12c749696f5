// Package panel wires the wizard, the generation controller and the embedded
// map surface to the host channels, and renders them in the terminal.
package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/worldgen-panel/internal/bridge"
	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/config"
	"github.com/joeycumines/worldgen-panel/internal/generation"
	"github.com/joeycumines/worldgen-panel/internal/integrator"
	"github.com/joeycumines/worldgen-panel/internal/logging"
	"github.com/joeycumines/worldgen-panel/internal/loop"
	"github.com/joeycumines/worldgen-panel/internal/surface"
	"github.com/joeycumines/worldgen-panel/internal/transport"
	"github.com/joeycumines/worldgen-panel/internal/wizard"
)

// diagnoseTimeout bounds each connectivity check of the surface origin.
const diagnoseTimeout = 5 * time.Second

// Options configures New.
type Options struct {
	Settings config.Settings
	// Catalog seeds the wizard until the host sends step definitions.
	Catalog catalog.Catalog
	// Script is the surface content. Empty loads surface.StubScript.
	Script string
	// Stdin and Stdout back the stdio channel when Settings.Stdio is set.
	Stdin  io.Reader
	Stdout io.Writer
	Logger *slog.Logger
}

// Panel owns every component of one running panel. Components are created
// once in New and handed their dependencies explicitly.
type Panel struct {
	logger     *slog.Logger
	loop       *loop.Loop
	bridge     *bridge.Bridge
	ws         *transport.WebSocket
	stdio      *transport.Stdio
	wizard     *wizard.Wizard
	generation *generation.Controller
	surface    *surface.Surface
	integrator *integrator.Integrator
	unbind     []func()

	mu        sync.Mutex
	result    *integrator.Result
	observers []func()
	archetype int
}

// New builds a panel. Nothing is dialed and no integration is attempted
// until Run.
func New(ctx context.Context, opts Options) (*Panel, error) {
	s := opts.Settings
	logger := logging.OrNop(opts.Logger)

	l, err := loop.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("panel loop: %w", err)
	}
	p := &Panel{logger: logger.With("component", "panel"), loop: l}

	bopts := bridge.Options{Logger: logger, Post: l.Post}
	if s.HostURL != "" {
		p.ws = transport.NewWebSocket(s.HostURL, transport.WebSocketOptions{
			Origin:    s.HostOrigin,
			OnConnect: func() { l.Post(p.announce) },
			Logger:    logger,
		})
		bopts.Primary = p.ws
	}
	if s.Stdio {
		if opts.Stdin == nil || opts.Stdout == nil {
			_ = l.Close()
			return nil, errors.New("stdio transport needs both Stdin and Stdout")
		}
		p.stdio = transport.NewStdio(opts.Stdin, opts.Stdout, logger)
		bopts.Secondary = p.stdio
	}
	p.bridge = bridge.New(bopts)
	if p.ws != nil {
		p.bridge.Attach(p.ws)
	}
	if p.stdio != nil {
		p.bridge.Attach(p.stdio)
	}

	p.wizard = wizard.New(wizard.Options{
		Bus:         p.bridge,
		Scheduler:   l,
		QuietPeriod: s.QuietPeriod,
		TotalSteps:  s.TotalSteps,
		Catalog:     opts.Catalog,
		Logger:      logger,
	})
	p.generation = generation.NewController(p.bridge, logger)

	p.surface, err = surface.Open(ctx, surface.Options{
		Origin:         s.SurfaceOrigin,
		ParentOrigin:   s.HostOrigin,
		ReadyHandle:    s.SurfaceReadyHandle,
		DocumentAccess: s.SurfaceDocumentAccess,
		Logger:         logger,
	})
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	var diagnoser *integrator.Diagnoser
	if s.Diagnostics {
		diagnoser = integrator.NewDiagnoser(diagnoseTimeout, logger)
	}
	p.integrator = integrator.New(integrator.Options{
		Target: integrator.SurfaceTarget(p.surface),
		Config: integrator.Config{
			MaxRetries:     s.MaxRetries,
			BaseDelay:      s.BaseDelay,
			MaxDelay:       s.MaxDelay,
			PollInterval:   s.PollInterval,
			PollTimeout:    s.PollTimeout,
			AckTimeout:     s.AckTimeout,
			AllowedOrigins: s.SurfaceAllowedOrigins,
		},
		Logger:    logger,
		Diagnoser: diagnoser,
	})
	p.surface.OnMessage(func(msg map[string]any, origin string) {
		// off the surface loop: observers may block on the view
		go p.integrator.HandleMessage(msg, origin)
	})

	p.unbind = append(p.unbind,
		p.wizard.Bind(),
		p.generation.Bind(),
		p.bridge.Subscribe(bridge.KindParamsUpdate, p.forward),
		p.bridge.Subscribe(bridge.KindArchetypeParams, p.forward),
	)
	p.wizard.Observe(p.changed)
	p.generation.Observe(func(generation.State) { p.changed() })
	p.integrator.Observe(func(integrator.State) { p.changed() })

	script := opts.Script
	if script == "" {
		script = surface.StubScript
	}
	if err := p.surface.Load("surface.js", script); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("load surface script: %w", err)
	}
	return p, nil
}

// Run connects to the host and integrates the surface. It blocks until ctx
// is done or a channel fails.
func (p *Panel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if p.ws != nil {
		g.Go(func() error { return p.ws.Run(ctx) })
	}
	if p.stdio != nil {
		g.Go(func() error { return p.stdio.Run(ctx) })
		p.loop.Post(p.announce)
	}
	g.Go(func() error {
		res := p.integrator.Run(ctx)
		p.mu.Lock()
		p.result = &res
		p.mu.Unlock()
		if res.OK {
			p.logger.Info("surface integrated", "attempts", res.Attempts, "strategy", string(res.Strategy))
		} else if ctx.Err() == nil {
			p.logger.Error("surface unavailable", "attempts", res.Attempts, "error", res.Err)
		}
		p.changed()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	p.integrator.Wait()
	return err
}

// Close stops the surface and the loop. The panel is unusable afterwards.
func (p *Panel) Close() error {
	for _, fn := range p.unbind {
		fn()
	}
	p.unbind = nil
	p.wizard.Debouncer().Stop()
	return errors.Join(p.surface.Close(), p.loop.Close())
}

// Post runs fn on the panel loop. Every mutation of wizard or generation
// state from outside the loop goes through Post.
func (p *Panel) Post(fn func()) bool {
	return p.loop.Post(fn)
}

// Wizard returns the wizard.
func (p *Panel) Wizard() *wizard.Wizard { return p.wizard }

// Generation returns the generation controller.
func (p *Panel) Generation() *generation.Controller { return p.generation }

// Integrator returns the surface integrator.
func (p *Panel) Integrator() *integrator.Integrator { return p.integrator }

// Surface returns the embedded surface.
func (p *Panel) Surface() *surface.Surface { return p.surface }

// Bridge returns the host bridge.
func (p *Panel) Bridge() *bridge.Bridge { return p.bridge }

// Result returns the outcome of the integration run, or nil while it is
// still in progress.
func (p *Panel) Result() *integrator.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Observe registers fn to be called after any visible state changes. fn may
// run on any goroutine.
func (p *Panel) Observe(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Panel) changed() {
	p.mu.Lock()
	observers := append([]func(){}, p.observers...)
	p.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (p *Panel) announce() {
	p.logger.Debug("announcing to host")
	p.wizard.Announce()
}

// Generate flushes pending edits, asks the host to generate with the
// current parameters and mirrors them to the surface. Must run on the loop.
func (p *Panel) Generate() error {
	p.wizard.Debouncer().Flush()
	parameters := p.wizard.Store().Snapshot()
	if err := p.generation.Start(parameters); err != nil {
		return err
	}
	if err := p.integrator.Forward(parameters, parameters["seed"]); err != nil {
		p.logger.Warn("failed to forward parameters to surface", "error", err)
	}
	if err := p.integrator.TriggerGeneration(); err != nil {
		p.logger.Warn("failed to forward parameters to surface", "error", err)
	}
	return nil
}

type forwardPayload struct {
	Params map[string]any `json:"params"`
}

// forward mirrors host-pushed parameters to the surface. The integrator
// holds them until its listener is verified.
func (p *Panel) forward(env bridge.Envelope) {
	payload, err := bridge.Decode[forwardPayload](env)
	if err != nil {
		p.logger.Warn("ignoring malformed host payload", "kind", string(env.Kind), "error", err)
		return
	}
	if len(payload.Params) == 0 {
		return
	}
	if err := p.integrator.Forward(payload.Params, payload.Params["seed"]); err != nil {
		p.logger.Warn("failed to forward parameters to surface", "error", err)
	}
}
