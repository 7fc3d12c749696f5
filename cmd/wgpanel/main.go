package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/worldgen-panel/internal/command"
	"github.com/joeycumines/worldgen-panel/internal/config"
)

const version = "0.1.0"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	path, err := config.Path()
	if err != nil {
		return fmt.Errorf("config path: %w", err)
	}
	cfg, err := config.Open(path)
	if err != nil {
		return err
	}

	registry := command.NewRegistry()
	if err := registry.Register(
		command.NewHelpCommand(registry),
		command.NewVersionCommand(version),
		command.NewConfigCommand(cfg, path),
		command.NewRunCommand(cfg),
		command.NewCatalogCommand(cfg),
		command.NewProbeCommand(cfg),
	); err != nil {
		return err
	}
	return registry.Dispatch(ctx, args, stdout, stderr)
}
