package command

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/config"
)

// CatalogCommand validates a step catalog file and prints it.
type CatalogCommand struct {
	config *config.Config
	format string
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(cfg *config.Config) *CatalogCommand {
	return &CatalogCommand{config: cfg}
}

func (c *CatalogCommand) Info() Info {
	return Info{Name: "catalog", Summary: "Validate and print a step catalog file", Usage: "catalog [-format text|json|yaml] [file]"}
}

func (c *CatalogCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.format, "format", "", "Output format: text, json, yaml (overrides [catalog] format)")
}

// Execute loads the catalog, reports validation issues on stderr and prints
// the catalog on stdout.
func (c *CatalogCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[1:])
		return fmt.Errorf("unexpected arguments")
	}
	path := config.Resolve(c.config, config.DefaultSchema()).CatalogFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "no catalog file given and catalog.file is not set")
		return fmt.Errorf("missing catalog file")
	}

	format := c.format
	if format == "" {
		format, _ = config.DefaultSchema().Value(c.config, "catalog", "format")
	}

	steps, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	issues := catalog.Validate(steps)
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stderr, "warning: %s\n", issue)
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"steps": steps})
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"steps": steps}); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		printCatalog(stdout, steps)
		_, _ = fmt.Fprintf(stdout, "\n%d step(s), %d issue(s)\n", len(steps), len(issues))
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func printCatalog(w io.Writer, steps catalog.Catalog) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for i, step := range steps {
		_, _ = fmt.Fprintf(tw, "Step %d: %s\n", i+1, step.Title)
		for _, p := range step.Parameters {
			var extra []string
			if lo, hi := p.Bounds(); lo != nil || hi != nil {
				extra = append(extra, fmt.Sprintf("[%s, %s]", bound(lo), bound(hi)))
			}
			if p.Step != nil {
				extra = append(extra, fmt.Sprintf("step %g", *p.Step))
			}
			if p.Default != nil {
				extra = append(extra, fmt.Sprintf("default %v", p.Default))
			}
			if len(p.Options) > 0 {
				extra = append(extra, "options "+strings.Join(p.Options, "|"))
			}
			if p.AzgaarKey != "" {
				extra = append(extra, "as "+p.AzgaarKey)
			}
			curated := ""
			if p.Curated {
				curated = "*"
			}
			_, _ = fmt.Fprintf(tw, "  %s%s\t%s\t%s\n", p.Key, curated, p.UIKind, strings.Join(extra, " "))
		}
	}
	_ = tw.Flush()
}

func bound(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
