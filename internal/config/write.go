package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/worldgen-panel/internal/storage"
)

// SetInFile sets key to value inside section ("" for global) of the config
// file at path, creating the file, its directory or the section as needed.
// Other lines, comments included, are kept as they are. The write holds a
// lock on path+".lock" and replaces the file atomically.
func SetInFile(path, section, key, value string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	lock, err := storage.TryLock(path + ".lock")
	if err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { err = errors.Join(err, lock.Unlock()) }()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read config: %w", err)
	}
	lines := splitLines(string(data))
	entry := strings.TrimSpace(key + " " + value)

	start, end, found := sectionSpan(lines, section)
	switch {
	case !found:
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "["+section+"]", entry)
	default:
		if i := findKey(lines[start:end], key); i >= 0 {
			lines[start+i] = entry
			break
		}
		at := end
		for at > start && strings.TrimSpace(lines[at-1]) == "" {
			at--
		}
		lines = append(lines[:at], append([]string{entry}, lines[at:]...)...)
	}

	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// sectionSpan returns the body of section as lines[start:end]. The global
// section always exists and runs up to the first header.
func sectionSpan(lines []string, section string) (start, end int, found bool) {
	current, start, found := "", 0, section == ""
	for i, line := range lines {
		name, ok := sectionName(strings.TrimSpace(line))
		if !ok {
			continue
		}
		if found && current == section {
			return start, i, true
		}
		current = name
		if name == section {
			start, found = i+1, true
		}
	}
	if found && current == section {
		return start, len(lines), true
	}
	return 0, 0, false
}

func findKey(lines []string, key string) int {
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		if name, _, _ := strings.Cut(line, " "); name == key {
			return i
		}
	}
	return -1
}
