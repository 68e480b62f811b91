package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/scanner"
	"github.com/starford/notegraph/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultDBFile is the index file name used when sqlite.path is empty.
const DefaultDBFile = ".notegraph.db"

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Watch  WatchConfig       `yaml:"watch"`
	Graph  GraphConfig       `yaml:"graph"`
	Search SearchConfig      `yaml:"search"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Vault, &c.SQLite, &c.Auth, &c.Watch, &c.Graph, &c.Search,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DBPath returns the index location: sqlite.path, or DefaultDBFile inside the vault.
func (c *Config) DBPath() string {
	if c.SQLite.Path != "" {
		return c.SQLite.Path
	}
	return filepath.Join(c.Vault.Path, DefaultDBFile)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig locates the corpus root and its ordering file.
type VaultConfig struct {
	Path      string `yaml:"path"`
	OrderFile string `yaml:"order_file"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	if c.OrderFile == "" {
		c.OrderFile = scanner.DefaultOrderFile
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.OrderFile, validation.By(baseName)),
	)
}

// baseName rejects order file names containing a directory part.
func baseName(value any) error {
	name, _ := value.(string)
	if filepath.Base(name) != name {
		return fmt.Errorf("must be a file name without directories")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration. An empty Path places
// the index inside the vault.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatchConfig controls the file watcher of the serve command.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(10*time.Millisecond), validation.Max(time.Minute)),
	)
}

// GraphConfig tunes graph construction and analysis.
type GraphConfig struct {
	WeakThreshold     int `yaml:"weak_threshold"`
	TagEdgeMaxMembers int `yaml:"tag_edge_max_members"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.WeakThreshold, validation.Min(1)),
		validation.Field(&c.TagEdgeMaxMembers, validation.Min(2)),
	)
}

// SearchConfig tunes the search facade.
type SearchConfig struct {
	CacheSize    int `yaml:"cache_size"`
	DefaultLimit int `yaml:"default_limit"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheSize, validation.Min(1)),
		validation.Field(&c.DefaultLimit, validation.Min(1), validation.Max(1000)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./vault",
			OrderFile: scanner.DefaultOrderFile,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: watcher.DefaultDebounce,
		},
		Graph: GraphConfig{
			WeakThreshold:     graph.DefaultWeakThreshold,
			TagEdgeMaxMembers: graph.DefaultTagEdgeMaxMembers,
		},
		Search: SearchConfig{
			CacheSize:    256,
			DefaultLimit: 20,
		},
	}
}
