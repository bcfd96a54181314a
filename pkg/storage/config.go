package storage

import "fmt"

// Provider names accepted by New.
const (
	ProviderMemory = "memory"
	ProviderFile   = "file"
	ProviderSQLite = "sqlite"
)

// Config selects and configures a storage provider.
type Config struct {
	// Provider is the backend to use: "memory" (default), "file", "sqlite".
	Provider string `koanf:"provider"`

	// File configures the file provider.
	File FileConfig `koanf:"file"`

	// SQLite configures the sqlite provider.
	SQLite SQLiteConfig `koanf:"sqlite"`
}

// FileConfig configures the file-backed provider.
type FileConfig struct {
	// Dir is the directory holding one JSON document per scope.
	Dir string `koanf:"dir"`

	// Watch enables filesystem watching so externally modified scope
	// files invalidate the in-memory cache.
	Watch bool `koanf:"watch"`
}

// SQLiteConfig configures the SQLite-backed provider.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `koanf:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderMemory
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderMemory:
	case ProviderFile:
		if c.File.Dir == "" {
			return fmt.Errorf("%w: file provider requires dir", ErrInvalidConfig)
		}
	case ProviderSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("%w: sqlite provider requires path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported provider %q (supported: memory, file, sqlite)", ErrInvalidConfig, c.Provider)
	}
	return nil
}
