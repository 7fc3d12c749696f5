// Package generation tracks a single map generation request and the progress
// notifications the host pushes for it.
package generation

import (
	"log/slog"
	"sync"

	"github.com/joeycumines/worldgen-panel/internal/bridge"
	"github.com/joeycumines/worldgen-panel/internal/logging"
)

const (
	// StartFailedMessage is shown when the generate request could not be
	// sent.
	StartFailedMessage = "Failed to start generation"
	// DefaultFailedStatus is used when the host reports failure without a
	// reason.
	DefaultFailedStatus = "Generation failed"
)

// State is the observable session.
type State struct {
	IsActive     bool
	Progress     float64
	StatusText   string
	ErrorMessage *string
	ErrorDetail  *string
	PreviewURL   *string
}

// Bus is the part of the bridge the controller talks through.
type Bus interface {
	Send(kind bridge.Kind, payload any) error
	Subscribe(kind bridge.Kind, h bridge.Handler) (unsubscribe func())
}

// Controller owns the generation session.
type Controller struct {
	bus    Bus
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	observers []func(State)
}

// NewController returns a Controller in the idle state.
func NewController(bus Bus, logger *slog.Logger) *Controller {
	return &Controller{
		bus:    bus,
		logger: logging.OrNop(logger).With("component", "generation"),
	}
}

// Bind subscribes to the host's generation notifications.
func (c *Controller) Bind() (unbind func()) {
	subs := []func(){
		c.bus.Subscribe(bridge.KindProgressUpdate, c.onProgress),
		c.bus.Subscribe(bridge.KindGenerationProgress, c.onProgress),
		c.bus.Subscribe(bridge.KindGenerationComplete, c.onComplete),
		c.bus.Subscribe(bridge.KindGenerationFailed, c.onFailed),
		c.bus.Subscribe(bridge.KindPreviewReady, c.onPreview),
	}
	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
	}
}

// State returns a copy of the session.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Observe registers fn to receive the session after every change.
func (c *Controller) Observe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	s := c.state
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()
	for _, o := range observers {
		o(s)
	}
}

// Start clears any previous result and asks the host to generate with
// parameters. A send failure ends the session immediately with a visible
// error; it is not retried.
func (c *Controller) Start(parameters map[string]any) error {
	c.update(func(s *State) {
		s.ErrorMessage = nil
		s.ErrorDetail = nil
		s.PreviewURL = nil
		s.IsActive = true
		s.Progress = 0
	})

	err := c.bus.Send(bridge.KindGenerate, map[string]any{"parameters": parameters})
	if err != nil {
		c.logger.Error("failed to start generation", "error", err)
		msg, detail := StartFailedMessage, err.Error()
		c.update(func(s *State) {
			s.IsActive = false
			s.ErrorMessage = &msg
			s.ErrorDetail = &detail
		})
		return err
	}
	c.logger.Info("generation started", "parameters", len(parameters))
	return nil
}

type progressPayload struct {
	Progress     float64 `json:"progress"`
	Status       string  `json:"status"`
	IsGenerating bool    `json:"is_generating"`
}

type failedPayload struct {
	Reason string `json:"reason"`
}

type previewPayload struct {
	PreviewURL string `json:"preview_url"`
}

func (c *Controller) onProgress(env bridge.Envelope) {
	p, err := bridge.Decode[progressPayload](env)
	if err != nil {
		c.logger.Warn("ignoring malformed generation payload", "kind", string(env.Kind), "error", err)
		return
	}
	c.update(func(s *State) {
		s.Progress = min(max(p.Progress, 0), 100)
		s.StatusText = p.Status
		s.IsActive = p.IsGenerating
	})
}

func (c *Controller) onComplete(bridge.Envelope) {
	c.logger.Info("generation complete")
	c.update(func(s *State) {
		s.IsActive = false
		s.Progress = 100
	})
}

func (c *Controller) onFailed(env bridge.Envelope) {
	p, err := bridge.Decode[failedPayload](env)
	if err != nil {
		c.logger.Warn("ignoring malformed generation payload", "kind", string(env.Kind), "error", err)
	}
	reason := p.Reason
	if reason == "" {
		reason = DefaultFailedStatus
	}
	c.logger.Warn("generation failed", "reason", reason)
	c.update(func(s *State) {
		s.IsActive = false
		s.StatusText = reason
	})
}

func (c *Controller) onPreview(env bridge.Envelope) {
	p, err := bridge.Decode[previewPayload](env)
	if err != nil || p.PreviewURL == "" {
		c.logger.Warn("ignoring malformed generation payload", "kind", string(env.Kind))
		return
	}
	url := p.PreviewURL
	c.update(func(s *State) { s.PreviewURL = &url })
}
