// Package transport provides the host channels the bridge sends and
// receives through: a WebSocket connection and newline-delimited JSON over a
// pair of streams.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joeycumines/worldgen-panel/internal/logging"
)

// maxMessageSize bounds a single inbound message.
const maxMessageSize = 10 * 1024 * 1024

// ErrNotConnected is returned by Send when the channel has no connection.
var ErrNotConnected = errors.New("transport: not connected")

// receiver holds the single receive hook of a channel.
type receiver struct {
	mu   sync.RWMutex
	hook func([]byte)
}

// SetReceiver implements bridge.Receiver.
func (r *receiver) SetReceiver(hook func(raw []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *receiver) deliver(raw []byte) {
	r.mu.RLock()
	hook := r.hook
	r.mu.RUnlock()
	if hook != nil {
		hook(raw)
	}
}

// Stdio exchanges one JSON message per line over a reader and a writer,
// typically the process's stdin and stdout.
type Stdio struct {
	receiver
	reader *bufio.Reader
	logger *slog.Logger

	mu     sync.Mutex
	writer *bufio.Writer
	closed bool
}

// NewStdio returns a Stdio channel over r and w.
func NewStdio(r io.Reader, w io.Writer, logger *slog.Logger) *Stdio {
	return &Stdio{
		reader: bufio.NewReader(r),
		writer: bufio.NewWriter(w),
		logger: logging.OrNop(logger).With("component", "stdio"),
	}
}

// Send writes data followed by a newline.
func (s *Stdio) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("stdio write: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("stdio write: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("stdio flush: %w", err)
	}
	return nil
}

// Available reports whether the input stream is still open.
func (s *Stdio) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Run reads lines and hands each to the receiver until the input ends or ctx
// is done. The blocking read itself can only end with the input, so on
// cancellation Run returns while the reader goroutine waits for EOF.
func (s *Stdio) Run(ctx context.Context) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		errc <- s.read(ctx, lines)
	}()

	for {
		select {
		case line := <-lines:
			s.deliver(line)
		case err := <-errc:
			s.markClosed()
			return err
		case <-ctx.Done():
			s.markClosed()
			return nil
		}
	}
}

func (s *Stdio) read(ctx context.Context, lines chan<- []byte) error {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			if len(line) > maxMessageSize {
				s.logger.Warn("dropping oversized stdin message", "bytes", len(line))
			} else if trimmed := trimNewline(line); len(trimmed) > 0 {
				select {
				case lines <- trimmed:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("stdin closed")
				return nil
			}
			s.logger.Error("failed to read stdin", "error", err)
			return err
		}
	}
}

func (s *Stdio) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
