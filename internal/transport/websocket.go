package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joeycumines/worldgen-panel/internal/logging"
)

// WebSocketOptions configures a WebSocket channel.
type WebSocketOptions struct {
	// Origin is sent as the Origin header when set.
	Origin string
	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnConnect runs on the reading goroutine after each successful dial,
	// before any message from that connection is delivered.
	OnConnect func()
	Logger    *slog.Logger
}

// WebSocket is a host channel over a WebSocket connection. It reconnects with
// exponential backoff while Run is active and reports itself unavailable
// while disconnected.
type WebSocket struct {
	receiver
	url    string
	opts   WebSocketOptions
	dialer websocket.Dialer
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket returns a channel for url. Nothing is dialed until Run.
func NewWebSocket(url string, opts WebSocketOptions) *WebSocket {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 10 * time.Second
	}
	return &WebSocket{
		url:  url,
		opts: opts,
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		logger: logging.OrNop(opts.Logger).With("component", "websocket", "url", url),
	}
}

// Available reports whether a connection is established.
func (w *WebSocket) Available() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Send writes data as a single text message.
func (w *WebSocket) Send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Run keeps a connection open until ctx is done, delivering every inbound
// message to the receiver.
func (w *WebSocket) Run(ctx context.Context) error {
	backoff := w.opts.MinBackoff
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = w.opts.MinBackoff
		}
		w.logger.Warn("websocket disconnected", "error", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, w.opts.MaxBackoff)
	}
}

// session dials once and reads until the connection fails.
func (w *WebSocket) session(ctx context.Context) (connected bool, err error) {
	var header http.Header
	if w.opts.Origin != "" {
		header = http.Header{"Origin": []string{w.opts.Origin}}
	}
	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.logger.Info("websocket connected")
	if w.opts.OnConnect != nil {
		w.opts.OnConnect()
	}

	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		w.mu.Unlock()
		conn.Close()
	})
	defer func() {
		stop()
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		conn.Close()
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		w.deliver(data)
	}
}
