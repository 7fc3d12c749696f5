package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/joeycumines/worldgen-panel/internal/config"
)

// ConfigCommand shows, checks and changes configuration.
type ConfigCommand struct {
	config  *config.Config
	path    string
	schema  *config.Schema
	section string
	all     bool
}

// NewConfigCommand returns a config command over cfg. Changes are written to
// path, or to config.Path() when path is empty.
func NewConfigCommand(cfg *config.Config, path string) *ConfigCommand {
	return &ConfigCommand{config: cfg, path: path, schema: config.DefaultSchema()}
}

func (c *ConfigCommand) Info() Info {
	return Info{
		Name:    "config",
		Summary: "Show, check and change configuration",
		Usage:   "config [-section name] [-all] [list | get <key> | set <key> <value> | validate | schema | path]",
	}
}

func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.section, "section", "", "Command section the key belongs to (default: global)")
	fs.BoolVar(&c.all, "all", false, "list: include every section")
}

func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, _ io.Writer) error {
	verb := "list"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}
	want := map[string]int{"list": 0, "get": 1, "set": 2, "validate": 0, "schema": 0, "path": 0}
	n, known := want[verb]
	if !known {
		return fmt.Errorf("config: unknown action %q", verb)
	}
	if len(args) != n {
		return fmt.Errorf("config %s: expected %d argument(s), got %d", verb, n, len(args))
	}

	switch verb {
	case "get":
		v, src := c.schema.Value(c.config, c.section, args[0])
		if src == config.SourceNone {
			return fmt.Errorf("unknown option %q", args[0])
		}
		_, err := fmt.Fprintf(stdout, "%s (%s)\n", v, src)
		return err
	case "set":
		return c.set(stdout, args[0], args[1])
	case "validate":
		issues := c.schema.Check(c.config)
		if len(issues) == 0 {
			_, err := fmt.Fprintln(stdout, "Configuration is valid.")
			return err
		}
		for _, issue := range issues {
			_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
		}
		return fmt.Errorf("%d configuration issue(s)", len(issues))
	case "schema":
		return c.schema.WriteHelp(stdout)
	case "path":
		path, err := c.resolvePath()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, path)
		return err
	}
	return c.list(stdout)
}

func (c *ConfigCommand) resolvePath() (string, error) {
	if c.path != "" {
		return c.path, nil
	}
	return config.Path()
}

func (c *ConfigCommand) set(stdout io.Writer, key, value string) error {
	opt, ok := c.schema.Option(c.section, key)
	if !ok {
		return fmt.Errorf("unknown option %q", key)
	}
	if err := opt.Check(value); err != nil {
		return fmt.Errorf("option %q: %w", key, err)
	}
	path, err := c.resolvePath()
	if err != nil {
		return err
	}
	if err := config.SetInFile(path, c.section, key, value); err != nil {
		return err
	}
	c.config.Set(c.section, key, value)
	_, err = fmt.Fprintf(stdout, "%s%s = %s\n", sectionPrefix(c.section), key, value)
	return err
}

// list prints every known option of the selected section with its effective
// value and where it came from, then any unknown keys set in the file.
func (c *ConfigCommand) list(stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, o := range c.schema.Options() {
		if !c.all && o.Section != c.section {
			continue
		}
		v, src := c.schema.Value(c.config, o.Section, o.Key)
		_, _ = fmt.Fprintf(tw, "%s%s\t%s\t(%s)\n", sectionPrefix(o.Section), o.Key, v, src)
	}
	for _, key := range slices.Sorted(maps.Keys(c.config.Global)) {
		if _, ok := c.schema.Option("", key); !ok && (c.all || c.section == "") {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t(unknown)\n", key, c.config.Global[key])
		}
	}
	return tw.Flush()
}

func sectionPrefix(section string) string {
	if section == "" {
		return ""
	}
	return "[" + section + "] "
}
