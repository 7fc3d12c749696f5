package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"
)

// Type is the value type of an option.
type Type string

const (
	TypeString   Type = "string"
	TypeBool     Type = "bool"
	TypeInt      Type = "int"
	TypeDuration Type = "duration"
	// TypeList is comma separated.
	TypeList Type = "list"
)

var typeChecks = map[Type]func(string) error{
	TypeBool: func(v string) error {
		_, err := parseBool(v)
		return err
	},
	TypeInt: func(v string) error {
		_, err := strconv.Atoi(v)
		return err
	},
	TypeDuration: func(v string) error {
		_, err := time.ParseDuration(v)
		return err
	},
}

// Option declares one known option.
type Option struct {
	// Section is empty for global options.
	Section string
	Key     string
	Type    Type
	Default string
	// Env names the environment variable that overrides the file, if any.
	Env  string
	Help string
}

// Check reports whether value parses as the option's type.
func (o Option) Check(value string) error {
	if fn := typeChecks[o.Type]; fn != nil && fn(value) != nil {
		return fmt.Errorf("expected %s, got %q", o.Type, value)
	}
	return nil
}

// Source says where a resolved value came from.
type Source int

const (
	SourceNone Source = iota
	SourceDefault
	SourceFile
	SourceEnv
)

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "env"
	}
	return "unset"
}

type optionID struct{ section, key string }

// Schema is the set of options the panel understands.
type Schema struct {
	options []Option
	index   map[optionID]int
}

// NewSchema builds a schema. A later option with the same section and key
// replaces an earlier one.
func NewSchema(opts ...Option) *Schema {
	s := &Schema{index: make(map[optionID]int)}
	for _, o := range opts {
		id := optionID{o.Section, o.Key}
		if i, ok := s.index[id]; ok {
			s.options[i] = o
			continue
		}
		s.index[id] = len(s.options)
		s.options = append(s.options, o)
	}
	return s
}

// DefaultSchema returns the panel's options.
func DefaultSchema() *Schema {
	return NewSchema(defaultOptions...)
}

// Option finds the declaration of key. Section options fall back to the
// global declaration of the same key.
func (s *Schema) Option(section, key string) (Option, bool) {
	if i, ok := s.index[optionID{section, key}]; ok {
		return s.options[i], true
	}
	if section == "" {
		return Option{}, false
	}
	return s.Option("", key)
}

// Value resolves key from the environment, then c, then the default.
func (s *Schema) Value(c *Config, section, key string) (string, Source) {
	opt, known := s.Option(section, key)
	if known && opt.Env != "" {
		if v, ok := os.LookupEnv(opt.Env); ok {
			return v, SourceEnv
		}
	}
	if v, ok := c.Lookup(section, key); ok {
		return v, SourceFile
	}
	if known {
		return opt.Default, SourceDefault
	}
	return "", SourceNone
}

// Check reports unknown options and values that do not parse as their
// declared type, sorted.
func (s *Schema) Check(c *Config) []string {
	var issues []string
	report := func(section, key, value string) {
		where := ""
		if section != "" {
			where = "[" + section + "] "
		}
		opt, ok := s.Option(section, key)
		if !ok {
			issues = append(issues, fmt.Sprintf("%sunknown option %q", where, key))
			return
		}
		if err := opt.Check(value); err != nil {
			issues = append(issues, fmt.Sprintf("%soption %q: %v", where, key, err))
		}
	}
	for key, value := range c.Global {
		report("", key, value)
	}
	for section, values := range c.Commands {
		for key, value := range values {
			report(section, key, value)
		}
	}
	slices.Sort(issues)
	return issues
}

// Options returns every option in declaration order.
func (s *Schema) Options() []Option {
	return slices.Clone(s.options)
}

// Sections returns the named sections, sorted.
func (s *Schema) Sections() []string {
	var out []string
	for _, o := range s.options {
		if o.Section != "" && !slices.Contains(out, o.Section) {
			out = append(out, o.Section)
		}
	}
	slices.Sort(out)
	return out
}

// WriteHelp writes a reference of every option, global options first.
func (s *Schema) WriteHelp(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, section := range append([]string{""}, s.Sections()...) {
		if section == "" {
			fmt.Fprintln(tw, "Global options:")
		} else {
			fmt.Fprintf(tw, "\n[%s] options:\n", section)
		}
		for _, o := range s.options {
			if o.Section != section {
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", o.Key, o.Type, o.Help)
			if o.Default != "" {
				fmt.Fprintf(tw, "  \t\tdefault: %s\n", o.Default)
			}
			if o.Env != "" {
				fmt.Fprintf(tw, "  \t\tenv: %s\n", o.Env)
			}
		}
	}
	return tw.Flush()
}
