package eventlog

import "fmt"

// Backend names accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Config selects and tunes the event store.
type Config struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Rotation applies to the jsonl backend when MaxSizeMB is positive.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
	// Capacity bounds the memory backend.
	Capacity int `json:"capacity"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Path == "" {
		switch c.Backend {
		case BackendJSONL:
			c.Path = "data/events.jsonl"
		case BackendSQLite:
			c.Path = "data/events.db"
		}
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendJSONL, BackendSQLite:
		return nil
	}
	return fmt.Errorf("eventlog: unknown backend %q", c.Backend)
}

// Open builds the store described by c.
func Open(c Config) (Store, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case BackendJSONL:
		if c.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
		}
		return NewJSONLStore(c.Path)
	case BackendSQLite:
		return NewSQLiteStore(c.Path)
	default:
		return NewMemoryStore(c.Capacity), nil
	}
}
