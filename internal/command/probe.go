package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/joeycumines/worldgen-panel/internal/config"
	"github.com/joeycumines/worldgen-panel/internal/integrator"
)

// ProbeCommand runs one connectivity check against the surface origin.
type ProbeCommand struct {
	config  *config.Config
	timeout time.Duration
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(cfg *config.Config) *ProbeCommand {
	return &ProbeCommand{config: cfg}
}

func (c *ProbeCommand) Info() Info {
	return Info{Name: "probe", Summary: "Check whether the surface origin is reachable", Usage: "probe [-timeout d] [origin]"}
}

func (c *ProbeCommand) SetupFlags(fs *flag.FlagSet) {
	fs.DurationVar(&c.timeout, "timeout", 0, "Timeout for each probe (overrides [probe] timeout)")
}

// Execute probes the origin given as argument, or surface.origin.
func (c *ProbeCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[1:])
		return fmt.Errorf("unexpected arguments")
	}
	origin := config.Resolve(c.config, config.DefaultSchema()).SurfaceOrigin
	if len(args) == 1 {
		origin = args[0]
	}

	timeout := c.timeout
	if timeout <= 0 {
		d, err := time.ParseDuration(probeTimeout(c.config))
		if err != nil {
			return fmt.Errorf("invalid [probe] timeout: %w", err)
		}
		timeout = d
	}

	diag := integrator.NewDiagnoser(timeout, nil).Check(ctx, origin)
	if !diag.Reachable {
		_, _ = fmt.Fprintf(stdout, "%s: unreachable after %s: %v\n", origin, diag.Elapsed.Round(time.Millisecond), diag.Err)
		return fmt.Errorf("origin %s is unreachable", origin)
	}
	_, _ = fmt.Fprintf(stdout, "%s: reachable via %s", origin, diag.Method)
	if diag.Status != 0 {
		_, _ = fmt.Fprintf(stdout, " (status %d)", diag.Status)
	}
	_, _ = fmt.Fprintf(stdout, " in %s\n", diag.Elapsed.Round(time.Millisecond))
	return nil
}

func probeTimeout(cfg *config.Config) string {
	v, _ := config.DefaultSchema().Value(cfg, "probe", "timeout")
	return v
}
