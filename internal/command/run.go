package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/config"
	"github.com/joeycumines/worldgen-panel/internal/logging"
	"github.com/joeycumines/worldgen-panel/internal/panel"
)

// RunCommand starts the panel.
type RunCommand struct {
	config *config.Config
	stdin  io.Reader

	hostURL     string
	stdio       bool
	script      string
	catalogFile string
	logFile     string
	logLevel    string
	noView      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{config: cfg, stdin: os.Stdin}
}

func (c *RunCommand) Info() Info {
	return Info{Name: "run", Summary: "Start the panel and connect to the host", Usage: "run [flags]"}
}

func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.hostURL, "url", "", "Host WebSocket URL (overrides host.url)")
	fs.BoolVar(&c.stdio, "stdio", false, "Exchange JSON lines with the host on stdin/stdout; implies -no-view")
	fs.StringVar(&c.script, "script", "", "Map generator script for the surface (overrides surface.script)")
	fs.StringVar(&c.catalogFile, "catalog", "", "Step catalog file (overrides catalog.file)")
	fs.StringVar(&c.logFile, "log-file", "", "Path to log file (JSON output)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.noView, "no-view", false, "Do not show the terminal view; log to stderr instead")
}

func (c *RunCommand) settings() config.Settings {
	s := config.Resolve(c.config, config.DefaultSchema())
	if c.hostURL != "" {
		s.HostURL = c.hostURL
	}
	if c.stdio {
		s.Stdio = true
	}
	if c.script != "" {
		s.SurfaceScript = c.script
	}
	if c.catalogFile != "" {
		s.CatalogFile = c.catalogFile
	}
	return s
}

// Execute runs the panel until ctx is done, the process is interrupted or
// the user quits the view.
func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	s := c.settings()
	// stdout carries the protocol in stdio mode
	view := !c.noView && !s.Stdio

	logOpts, err := resolveLogOptions(c.logFile, c.logLevel, s)
	if err != nil {
		return err
	}
	if !view {
		logOpts.Console = stderr
	}
	logs, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logs.Close()
	logger := logs.Logger

	for _, w := range c.config.Warnings {
		logger.Warn("config warning", "warning", w)
	}

	var steps catalog.Catalog
	if s.CatalogFile != "" {
		steps, err = catalog.LoadFile(s.CatalogFile)
		if err != nil {
			return err
		}
		for _, issue := range catalog.Validate(steps) {
			logger.Warn("catalog issue", "file", s.CatalogFile, "issue", issue)
		}
	}

	var script string
	if s.SurfaceScript != "" {
		b, err := os.ReadFile(s.SurfaceScript)
		if err != nil {
			return fmt.Errorf("failed to read surface script: %w", err)
		}
		script = string(b)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := panel.New(ctx, panel.Options{
		Settings: s,
		Catalog:  steps,
		Script:   script,
		Stdin:    c.stdin,
		Stdout:   stdout,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("starting panel", "host", s.HostURL, "stdio", s.Stdio, "surface_origin", s.SurfaceOrigin)

	if !view {
		return p.Run(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		defer cancel()
		return p.Run(runCtx)
	})
	g.Go(func() error {
		defer cancel()
		return panel.RunView(runCtx, p, logs.History, tea.WithAltScreen(), tea.WithOutput(stdout))
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
