package integrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/joeycumines/worldgen-panel/internal/logging"
)

// Probe methods reported by Diagnosis.
const (
	MethodHTTP = "http-head"
	MethodTCP  = "tcp-dial"
)

// Diagnosis is the outcome of a connectivity check.
type Diagnosis struct {
	Origin    string
	Reachable bool
	Method    string
	Status    int
	Elapsed   time.Duration
	Err       error
}

// Diagnoser checks whether the surface's origin is reachable. Repeated
// failures open a circuit breaker so further checks fail fast.
type Diagnoser struct {
	client  *http.Client
	dialer  *net.Dialer
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewDiagnoser returns a Diagnoser whose individual probes time out after
// timeout.
func NewDiagnoser(timeout time.Duration, logger *slog.Logger) *Diagnoser {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger = logging.OrNop(logger).With("component", "diagnostics")
	settings := gobreaker.Settings{
		Name:        "surface-origin",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// An abandoned check says nothing about the origin.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("connectivity breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Diagnoser{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		dialer:  &net.Dialer{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Check probes origin with an HTTP HEAD request, falling back to a plain TCP
// dial when the request fails. The result is logged; errors are reported in
// the Diagnosis, never returned.
func (d *Diagnoser) Check(ctx context.Context, origin string) Diagnosis {
	start := time.Now()
	diag := Diagnosis{Origin: origin}

	v, err := d.breaker.Execute(func() (any, error) {
		return d.probe(ctx, origin)
	})
	if r, ok := v.(Diagnosis); ok {
		diag = r
	}
	diag.Err = err
	diag.Reachable = err == nil
	diag.Elapsed = time.Since(start)

	switch {
	case diag.Reachable:
		d.logger.Info("surface origin reachable", "origin", origin, "method", diag.Method, "status", diag.Status, "elapsed", diag.Elapsed)
	case errors.Is(err, context.Canceled):
		d.logger.Debug("connectivity check abandoned", "origin", origin)
	default:
		d.logger.Warn("surface origin unreachable", "origin", origin, "method", diag.Method, "error", err, "elapsed", diag.Elapsed)
	}
	return diag
}

func (d *Diagnoser) probe(ctx context.Context, origin string) (Diagnosis, error) {
	diag := Diagnosis{Origin: origin, Method: MethodHTTP}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return diag, fmt.Errorf("origin %q is not probeable", origin)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err == nil {
		var resp *http.Response
		if resp, err = d.client.Do(req); err == nil {
			resp.Body.Close()
			diag.Status = resp.StatusCode
			return diag, nil
		}
	}
	d.logger.Debug("HEAD request failed, trying TCP dial", "origin", origin, "error", err)

	diag.Method = MethodTCP
	conn, dialErr := d.dialer.DialContext(ctx, "tcp", hostPort(u))
	if dialErr != nil {
		return diag, errors.Join(err, dialErr)
	}
	conn.Close()
	return diag, nil
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" || u.Scheme == "wss" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
