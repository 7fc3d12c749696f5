// Package config reads the panel's configuration file.
//
// The format is line oriented: "name value" pairs, "#" comments, and
// "[section]" headers that scope the following names to one command.
// A name looked up in a section falls back to the global value.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Config holds raw option values. Values are typed only when resolved
// against a Schema.
type Config struct {
	Global   map[string]string
	Commands map[string]map[string]string
	// Warnings collects problems found while loading or resolving. None of
	// them stop the panel.
	Warnings []string
}

// New returns an empty Config.
func New() *Config {
	return &Config{
		Global:   make(map[string]string),
		Commands: make(map[string]map[string]string),
	}
}

// Open reads the config file at path. A missing file yields an empty Config.
// Symlinks are refused.
func Open(path string) (*Config, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("config %s: symlink not allowed", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a config from r and checks it against the default schema.
func Parse(r io.Reader) (*Config, error) {
	c := New()
	section := ""
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if name, ok := sectionName(line); ok {
			if name == "" {
				c.warn("line %d: empty section header", n)
			}
			section = name
			if c.Commands[section] == nil && section != "" {
				c.Commands[section] = make(map[string]string)
			}
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)
		if c.owns(section, key) {
			c.warn("line %d: %q set again, the last value wins", n, key)
		}
		c.Set(section, key, value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c.Warnings = append(c.Warnings, DefaultSchema().Check(c)...)
	return c, nil
}

func sectionName(line string) (string, bool) {
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return "", false
	}
	return strings.TrimSpace(line[1 : len(line)-1]), true
}

// owns reports whether key is set in section itself, without fallback.
func (c *Config) owns(section, key string) bool {
	if section == "" {
		_, ok := c.Global[key]
		return ok
	}
	_, ok := c.Commands[section][key]
	return ok
}

// Lookup returns the raw value of key. With a non-empty section the
// section's own value wins over the global one.
func (c *Config) Lookup(section, key string) (string, bool) {
	if v, ok := c.Commands[section][key]; ok && section != "" {
		return v, true
	}
	v, ok := c.Global[key]
	return v, ok
}

// Set stores value for key in section ("" for global).
func (c *Config) Set(section, key, value string) {
	if section == "" {
		c.Global[key] = value
		return
	}
	if c.Commands[section] == nil {
		c.Commands[section] = make(map[string]string)
	}
	c.Commands[section][key] = value
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
