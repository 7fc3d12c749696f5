// Package bridge implements the typed message bridge between the panel and
// its host process.
//
// Outbound messages go through one of two host-provided channels, preferring
// the primary. Inbound raw messages are parsed into envelopes and published
// to subscribers, synchronously and in subscription order. Components
// subscribe independently; none of them needs to know about another's handler.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeycumines/worldgen-panel/internal/logging"
)

// Channel is a host-provided send primitive.
type Channel interface {
	Send(data []byte) error
}

// Availability may be implemented by a Channel that can come and go, such as
// a network connection. Channels without it are always considered available.
type Availability interface {
	Available() bool
}

// Receiver is a host-provided receive entry point. The bridge installs a
// single hook; a Receiver must replace, not chain, any previous hook.
type Receiver interface {
	SetReceiver(hook func(raw []byte))
}

// Handler consumes a published envelope.
type Handler func(Envelope)

// Options configures a Bridge.
type Options struct {
	Primary   Channel
	Secondary Channel
	Logger    *slog.Logger
	// Post, if set, moves deliveries from receiver goroutines onto the event
	// loop. It reports false when the loop is gone.
	Post func(func()) bool
	// Now defaults to time.Now.
	Now func() time.Time
}

type subscription struct {
	id      uint64
	kind    Kind // empty matches every kind
	handler Handler
}

// Bridge is the transport bridge. The zero value is not usable; use New.
type Bridge struct {
	primary   Channel
	secondary Channel
	logger    *slog.Logger
	post      func(func()) bool
	now       func() time.Time

	mu       sync.Mutex
	nextID   uint64
	subs     []subscription
	attached map[Receiver]bool
}

// New returns a Bridge using opts.
func New(opts Options) *Bridge {
	logger := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		primary:   opts.Primary,
		secondary: opts.Secondary,
		logger:    logger.With("component", "bridge"),
		post:      opts.Post,
		now:       now,
		attached:  make(map[Receiver]bool),
	}
}

// Attach installs the bridge as r's receive hook. Attaching the same receiver
// again is a no-op.
func (b *Bridge) Attach(r Receiver) {
	b.mu.Lock()
	if b.attached[r] {
		b.mu.Unlock()
		return
	}
	b.attached[r] = true
	b.mu.Unlock()

	r.SetReceiver(func(raw []byte) {
		// copy: receivers may reuse their read buffers
		msg := append([]byte(nil), raw...)
		if b.post == nil {
			b.Deliver(msg)
			return
		}
		if !b.post(func() { b.Deliver(msg) }) {
			b.logger.Warn("dropping host message", "reason", "loop not running")
		}
	})
}

// Send wraps payload in an envelope and forwards it to the host. With no
// available channel it does nothing and returns nil; callers must not rely
// on delivery. A failing channel is logged and its error returned.
func (b *Bridge) Send(kind Kind, payload any) error {
	ch := b.channel()
	if ch == nil {
		b.logger.Debug("no host channel, message not sent", "kind", string(kind), "reason", "no channel")
		return nil
	}

	body, err := marshalPayload(payload)
	if err != nil {
		b.logger.Error("failed to encode message", "kind", string(kind), "error", err)
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	data, err := json.Marshal(Envelope{Kind: kind, Payload: body, Timestamp: b.now().UnixMilli()})
	if err != nil {
		b.logger.Error("failed to encode message", "kind", string(kind), "error", err)
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	if err := ch.Send(data); err != nil {
		b.logger.Warn("failed to send message", "kind", string(kind), "error", err)
		return fmt.Errorf("send %s: %w", kind, err)
	}
	b.logger.Debug("sent message", "kind", string(kind), "bytes", len(data))
	return nil
}

func (b *Bridge) channel() Channel {
	for _, ch := range []Channel{b.primary, b.secondary} {
		if ch == nil {
			continue
		}
		if a, ok := ch.(Availability); ok && !a.Available() {
			continue
		}
		return ch
	}
	return nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// Deliver parses raw and publishes the envelope. Malformed messages and kinds
// outside the vocabulary are logged and dropped.
func (b *Bridge) Deliver(raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		b.logger.Warn("failed to parse host message", "error", err, "bytes", len(raw))
		return
	}
	if !env.Kind.Inbound() {
		b.logger.Debug("ignoring unknown message kind", "kind", string(env.Kind))
		return
	}
	b.Publish(env)
}

// Publish dispatches env to matching subscribers. A panicking handler is
// logged and does not stop delivery to the rest.
func (b *Bridge) Publish(env Envelope) {
	b.mu.Lock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == "" || s.kind == env.Kind {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.dispatch(s, env)
	}
}

func (b *Bridge) dispatch(s subscription, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked", "kind", string(env.Kind), "panic", fmt.Sprint(r))
		}
	}()
	s.handler(env)
}

// Subscribe registers h for envelopes of the given kind. The returned func
// removes the subscription.
func (b *Bridge) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, handler: h})
	return func() { b.unsubscribe(id) }
}

// SubscribeAll registers h for every published envelope.
func (b *Bridge) SubscribeAll(h Handler) (unsubscribe func()) {
	return b.Subscribe("", h)
}

func (b *Bridge) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}
