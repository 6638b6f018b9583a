// Package app assembles toolpipe's components from configuration. It is
// shared by every command of the toolpipe binary.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/toolpipe/internal/config"
)

// ConfigFileName is the file searched for when no path is given.
const ConfigFileName = "toolpipe.yaml"

// ErrNoConfigFile is returned by ResolveConfigPath when no candidate exists.
var ErrNoConfigFile = errors.New("no configuration file found")

// ResolveConfigPath searches for a config file in standard locations.
// Search order: ./toolpipe.yaml, $XDG_CONFIG_HOME/toolpipe/toolpipe.yaml,
// ~/.config/toolpipe/toolpipe.yaml.
func ResolveConfigPath() (string, error) {
	candidates := []string{ConfigFileName}
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "toolpipe", ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "toolpipe", ConfigFileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, candidates)
}

// LoadConfig loads and validates the configuration at path. With an empty
// path it searches the standard locations and falls back to the built-in
// defaults when no file exists. The returned path is empty in that case.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		switch {
		case errors.Is(err, ErrNoConfigFile):
			return config.Default(), "", nil
		case err != nil:
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
