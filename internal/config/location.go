package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "WGPANEL_CONFIG"

// Path returns $WGPANEL_CONFIG, or ~/.wgpanel/config.
func Path() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate config: %w", err)
	}
	return filepath.Join(home, ".wgpanel", "config"), nil
}
