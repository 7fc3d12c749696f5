package config

import (
	"strconv"
	"strings"
	"time"
)

// Settings is the resolved, typed view of the options the panel reads.
type Settings struct {
	HostURL    string
	HostOrigin string
	Stdio      bool

	SurfaceScript         string
	SurfaceOrigin         string
	SurfaceReadyHandle    string
	SurfaceAllowedOrigins []string
	SurfaceDocumentAccess bool

	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	AckTimeout   time.Duration
	Diagnostics  bool

	QuietPeriod time.Duration
	TotalSteps  int
	CatalogFile string

	LogFile       string
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxFiles   int
	LogBufferSize int
}

// Resolve builds Settings from c, applying environment overrides and schema
// defaults. Values that fail to parse fall back to the default and are
// recorded as warnings on c.
func Resolve(c *Config, s *Schema) Settings {
	r := resolver{c: c, s: s}
	return Settings{
		HostURL:    r.str("host.url"),
		HostOrigin: r.str("host.origin"),
		Stdio:      r.boolean("transport.stdio"),

		SurfaceScript:         r.str("surface.script"),
		SurfaceOrigin:         r.str("surface.origin"),
		SurfaceReadyHandle:    r.str("surface.ready-handle"),
		SurfaceAllowedOrigins: r.list("surface.allowed-origins"),
		SurfaceDocumentAccess: r.boolean("surface.document-access"),

		MaxRetries:   r.integer("integrator.max-retries"),
		BaseDelay:    r.duration("integrator.base-delay"),
		MaxDelay:     r.duration("integrator.max-delay"),
		PollInterval: r.duration("integrator.poll-interval"),
		PollTimeout:  r.duration("integrator.poll-timeout"),
		AckTimeout:   r.duration("integrator.ack-timeout"),
		Diagnostics:  r.boolean("integrator.diagnostics"),

		QuietPeriod: r.duration("debounce.quiet-period"),
		TotalSteps:  r.integer("wizard.total-steps"),
		CatalogFile: r.str("catalog.file"),

		LogFile:       r.str("log.file"),
		LogLevel:      r.str("log.level"),
		LogMaxSizeMB:  r.integer("log.max-size-mb"),
		LogMaxFiles:   r.integer("log.max-files"),
		LogBufferSize: r.integer("log.buffer-size"),
	}
}

type resolver struct {
	c *Config
	s *Schema
}

func (r resolver) str(key string) string {
	v, _ := r.s.Value(r.c, "", key)
	return v
}

// fallback records that value did not parse and returns the default.
func (r resolver) fallback(key, value string, err error) string {
	opt, _ := r.s.Option("", key)
	r.c.warn("option %q: %v; using default %q", key, err, opt.Default)
	return opt.Default
}

func (r resolver) boolean(key string) bool {
	v := r.str(key)
	b, err := parseBool(v)
	if err != nil {
		b, _ = parseBool(r.fallback(key, v, err))
	}
	return b
}

func (r resolver) integer(key string) int {
	v := r.str(key)
	i, err := strconv.Atoi(v)
	if err != nil {
		i, _ = strconv.Atoi(r.fallback(key, v, err))
	}
	return i
}

func (r resolver) duration(key string) time.Duration {
	v := r.str(key)
	d, err := time.ParseDuration(v)
	if err != nil {
		d, _ = time.ParseDuration(r.fallback(key, v, err))
	}
	return d
}

func (r resolver) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
