package sqlite

import "fmt"

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "toolpipe.db"
)

// Config holds the SQLite store configuration.
type Config struct {
	// Path is the database file path. Defaults to toolpipe.db in the data dir.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = defaultDBFile
	}
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	return c
}

func (c Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	return nil
}
