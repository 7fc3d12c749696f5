package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
)

// ErrUnknownCommand is returned by Dispatch for a name nothing registered.
var ErrUnknownCommand = errors.New("unknown command")

// Registry maps command names to commands.
type Registry struct {
	commands map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmds. Registering a name twice is an error.
func (r *Registry) Register(cmds ...Command) error {
	for _, cmd := range cmds {
		name := cmd.Info().Name
		if _, dup := r.commands[name]; dup {
			return fmt.Errorf("command %q registered twice", name)
		}
		r.commands[name] = cmd
	}
	return nil
}

// Lookup returns the command called name.
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.commands))
}

// Dispatch runs the command named by args[0] with the remaining arguments.
// No arguments, "-h" and "--help" run "help".
func (r *Registry) Dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	name := "help"
	if len(args) > 0 && args[0] != "-h" && args[0] != "--help" {
		name, args = args[0], args[1:]
	} else {
		args = nil
	}
	cmd, ok := r.Lookup(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\nRun 'wgpanel help' for a list of commands.\n", name)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	info := cmd.Info()
	fs := flag.NewFlagSet(info.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: wgpanel %s\n\n%s\n\nFlags:\n", info.Usage, info.Summary)
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}
