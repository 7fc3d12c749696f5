// Package command implements the wgpanel subcommands.
package command

import (
	"context"
	"flag"
	"io"
)

// Info describes a command in help output.
type Info struct {
	Name    string
	Summary string
	Usage   string
}

// Command is one wgpanel subcommand. Flags are declared on a fresh FlagSet
// before each run; Execute receives the arguments left after parsing.
type Command interface {
	Info() Info
	SetupFlags(fs *flag.FlagSet)
	// Execute returns when the work is done or, for long-running commands,
	// when ctx is.
	Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// noFlags is embedded by commands that take no flags.
type noFlags struct{}

func (noFlags) SetupFlags(*flag.FlagSet) {}
