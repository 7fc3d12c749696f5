package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/joeycumines/worldgen-panel/internal/bridge"
)

// HelpCommand lists commands, or describes one.
type HelpCommand struct {
	noFlags
	registry *Registry
}

// NewHelpCommand returns a help command listing the commands in registry.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{registry: registry}
}

func (c *HelpCommand) Info() Info {
	return Info{Name: "help", Summary: "Show commands, or the flags of one command", Usage: "help [command]"}
}

func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		var b strings.Builder
		b.WriteString("wgpanel - world generation wizard panel\n\nUsage: wgpanel <command> [flags] [args...]\n\nCommands:\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, name := range c.registry.Names() {
			cmd, _ := c.registry.Lookup(name)
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", name, cmd.Info().Summary)
		}
		_ = tw.Flush()
		b.WriteString("\nRun 'wgpanel help <command>' for its flags.\n")
		_, err := io.WriteString(stdout, b.String())
		return err
	}

	cmd, ok := c.registry.Lookup(args[0])
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	info := cmd.Info()
	_, _ = fmt.Fprintf(stdout, "Usage: wgpanel %s\n\n%s\n", info.Usage, info.Summary)

	var flags strings.Builder
	fs := flag.NewFlagSet(info.Name, flag.ContinueOnError)
	fs.SetOutput(&flags)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if flags.Len() > 0 {
		_, _ = fmt.Fprintf(stdout, "\nFlags:\n%s", flags.String())
	}
	return nil
}

// VersionCommand prints the build and protocol versions.
type VersionCommand struct {
	noFlags
	version string
}

// NewVersionCommand returns a version command reporting version.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{version: version}
}

func (c *VersionCommand) Info() Info {
	return Info{Name: "version", Summary: "Print the version", Usage: "version"}
}

func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, _ io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("version takes no arguments, got %q", args)
	}
	_, err := fmt.Fprintf(stdout, "wgpanel version %s (protocol %d)\n", c.version, bridge.ProtocolVersion)
	return err
}
