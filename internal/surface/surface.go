// Package surface hosts the third-party map script in an isolated JavaScript
// context, standing in for the embedded child view.
//
// The context runs on its own event loop, separate from the panel's. The
// panel reaches it only through the browser-shaped operations below: a
// readiness check, document access (which may be denied as cross-origin),
// indirect evaluation, and postMessage in both directions.
package surface

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dop251/goja"

	"github.com/joeycumines/worldgen-panel/internal/logging"
	"github.com/joeycumines/worldgen-panel/internal/loop"
)

var (
	// ErrCrossOrigin is returned when the parent may not touch the
	// surface's document.
	ErrCrossOrigin = errors.New("surface: cross-origin document access denied")
	// ErrNotLoaded is returned before the surface script has been loaded.
	ErrNotLoaded = errors.New("surface: content not loaded")
)

// StubScript is a minimal stand-in for the map generator. It exposes the
// same entry points and announces itself with azgaar_ready.
//
//go:embed stub.js
var StubScript string

// Options configures a Surface.
type Options struct {
	// Origin is the surface's own origin. Use "null" for an opaque origin.
	Origin string
	// ParentOrigin is reported as event.origin on messages the panel posts.
	ParentOrigin string
	// ReadyHandle is the global the surface defines once it can accept
	// parameters.
	ReadyHandle string
	// DocumentAccess allows direct document access from the parent, as with
	// a same-origin frame.
	DocumentAccess bool
	Logger         *slog.Logger
}

// Message is the callback for messages the surface posts to its parent.
type Message func(msg map[string]any, origin string)

// Surface is one embedded context.
type Surface struct {
	loop   *loop.Loop
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	loaded    bool
	onMessage Message

	// touched only on the surface loop
	listeners map[string][]goja.Callable
	scripts   int
}

// Open starts a surface on a fresh event loop.
func Open(ctx context.Context, opts Options) (*Surface, error) {
	if opts.Origin == "" {
		opts.Origin = "null"
	}
	if opts.ParentOrigin == "" {
		opts.ParentOrigin = "null"
	}
	l, err := loop.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("surface loop: %w", err)
	}
	s := &Surface{
		loop:      l,
		opts:      opts,
		logger:    logging.OrNop(opts.Logger).With("component", "surface", "origin", opts.Origin),
		listeners: make(map[string][]goja.Callable),
	}
	if err := l.RunVM(s.install); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("surface globals: %w", err)
	}
	return s, nil
}

// Close stops the surface's loop.
func (s *Surface) Close() error {
	return s.loop.Close()
}

// Origin returns the surface's origin.
func (s *Surface) Origin() string { return s.opts.Origin }

// OnMessage sets the receiver for parent.postMessage calls made inside the
// surface. fn runs on the surface loop and must not block.
func (s *Surface) OnMessage(fn Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

func (s *Surface) install(vm *goja.Runtime) error {
	global := vm.GlobalObject()

	location := vm.NewObject()
	_ = location.Set("origin", s.opts.Origin)

	parent := vm.NewObject()
	_ = parent.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		s.fromSurface(call.Argument(0), call.Argument(1).String())
		return goja.Undefined()
	})

	document := vm.NewObject()
	_ = document.Set("readyState", "loading")

	console := vm.NewObject()
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]any, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				args = append(args, a.String())
			}
			s.logger.Log(context.Background(), level, "surface console", "args", args)
			return goja.Undefined()
		})
	}

	for name, v := range map[string]any{
		"window":   global,
		"self":     global,
		"location": location,
		"origin":   s.opts.Origin,
		"parent":   parent,
		"document": document,
		"console":  console,
		"addEventListener": func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				panic(vm.NewTypeError("addEventListener: listener is not a function"))
			}
			typ := call.Argument(0).String()
			s.listeners[typ] = append(s.listeners[typ], fn)
			return goja.Undefined()
		},
	} {
		if err := global.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surface) fromSurface(data goja.Value, targetOrigin string) {
	if targetOrigin != "*" && targetOrigin != s.opts.ParentOrigin {
		s.logger.Debug("dropping message from surface", "target", targetOrigin)
		return
	}
	msg, ok := data.Export().(map[string]any)
	if !ok {
		s.logger.Debug("dropping message from surface", "reason", "not an object")
		return
	}
	s.mu.RLock()
	fn := s.onMessage
	s.mu.RUnlock()
	if fn != nil {
		fn(msg, s.opts.Origin)
	}
}

// Load runs the surface's content script and marks the document complete.
func (s *Surface) Load(name, code string) error {
	if err := s.loop.LoadScript(name, code); err != nil {
		return err
	}
	err := s.loop.RunVM(func(vm *goja.Runtime) error {
		return vm.Get("document").ToObject(vm).Set("readyState", "complete")
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info("surface script loaded", "script", name)
	return nil
}

// Loaded reports whether Load has completed.
func (s *Surface) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Ready reports whether the readiness handle is defined in the context.
func (s *Surface) Ready() bool {
	if !s.Loaded() {
		return false
	}
	handle := s.opts.ReadyHandle
	if handle == "" {
		return true
	}
	var ready bool
	err := s.loop.RunVM(func(vm *goja.Runtime) error {
		v := vm.GlobalObject().Get(handle)
		ready = v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
		return nil
	})
	return err == nil && ready
}

// Document returns direct access to the surface document.
func (s *Surface) Document() (*Document, error) {
	if !s.Loaded() {
		return nil, ErrNotLoaded
	}
	if !s.opts.DocumentAccess {
		return nil, ErrCrossOrigin
	}
	return &Document{s: s}, nil
}

// Evaluate runs code inside the context by indirect evaluation and returns
// its exported result.
func (s *Surface) Evaluate(code string) (any, error) {
	if !s.Loaded() {
		return nil, ErrNotLoaded
	}
	var out any
	err := s.loop.RunVM(func(vm *goja.Runtime) error {
		v, err := vm.RunString(code)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		out = v.Export()
		return nil
	})
	return out, err
}

// PostMessage dispatches a message event to the surface's listeners, as if
// posted by the parent. Messages whose targetOrigin does not match the
// surface are dropped, like a browser would.
func (s *Surface) PostMessage(msg map[string]any, targetOrigin string) error {
	if !s.Loaded() {
		return ErrNotLoaded
	}
	if targetOrigin != "*" && targetOrigin != s.opts.Origin {
		s.logger.Debug("dropping message to surface", "target", targetOrigin)
		return nil
	}
	if !s.loop.PostVM(func(vm *goja.Runtime) { s.dispatch(vm, msg) }) {
		return loop.ErrNotRunning
	}
	return nil
}

func (s *Surface) dispatch(vm *goja.Runtime, msg map[string]any) {
	event := vm.NewObject()
	_ = event.Set("type", "message")
	_ = event.Set("data", vm.ToValue(msg))
	_ = event.Set("origin", s.opts.ParentOrigin)
	_ = event.Set("source", vm.Get("parent"))

	for _, fn := range s.listeners["message"] {
		if _, err := fn(goja.Undefined(), event); err != nil {
			s.logger.Warn("surface listener failed", "error", err)
		}
	}
}

// Document is direct access to a same-origin surface document.
type Document struct {
	s *Surface
}

// ReadyState reads document.readyState.
func (d *Document) ReadyState() (string, error) {
	var state string
	err := d.s.loop.RunVM(func(vm *goja.Runtime) error {
		state = vm.Get("document").ToObject(vm).Get("readyState").String()
		return nil
	})
	return state, err
}

// InsertScript appends an inline script element to the document, which runs
// it immediately.
func (d *Document) InsertScript(code string) error {
	return d.s.loop.RunVM(func(vm *goja.Runtime) error {
		d.s.scripts++
		prg, err := goja.Compile(fmt.Sprintf("inline-script-%d", d.s.scripts), code, false)
		if err != nil {
			return fmt.Errorf("insert script: %w", err)
		}
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("insert script: %w", err)
		}
		return nil
	})
}

// Scripts returns the number of inline scripts inserted so far.
func (d *Document) Scripts() int {
	var n int
	_ = d.s.loop.Run(func() error {
		n = d.s.scripts
		return nil
	})
	return n
}
