// Package config loads mergeview settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/storage"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/viewbuild"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvConfigPath      = "MERGEVIEW_CONFIG"
	EnvMongoURI        = "MONGODB_URI"
	EnvViewName        = "DL_BLOCK_DETAILS_DB_VIEW_COLLECTION_NAME"
	EnvHistoryPassword = "MERGEVIEW_HISTORY_PASSWORD"
)

// DefaultPath is used when neither --config nor MERGEVIEW_CONFIG is set.
const DefaultPath = "mergeview.yaml"

// Config is the full mergeview configuration.
type Config struct {
	Mongo    MongoConfig    `yaml:"mongo"`
	View     ViewConfig     `yaml:"view"`
	Sources  SourcesConfig  `yaml:"sources"`
	Schedule ScheduleConfig `yaml:"schedule"`
	History  storage.Config `yaml:"history"`
	Lock     LockConfig     `yaml:"lock"`

	// path is the file the config was loaded from, if any.
	path string
}

type MongoConfig struct {
	URI      string   `yaml:"uri"`
	Database string   `yaml:"database"`
	Timeout  Duration `yaml:"timeout"`
}

type ViewConfig struct {
	Name             string   `yaml:"name"`
	Strategy         string   `yaml:"strategy"` // "dynamic" | "fixed"
	Fields           []string `yaml:"fields"`   // fixed strategy; empty means the block-details fields
	ProbeConcurrency int      `yaml:"probeConcurrency"`
}

// SourcesConfig narrows and orders the collections merged into the view.
type SourcesConfig struct {
	Anchor      string   `yaml:"anchor"`
	Collections []string `yaml:"collections"`
	Exclude     []string `yaml:"exclude"`
}

type ScheduleConfig struct {
	Cron        string `yaml:"cron"`
	WatchConfig bool   `yaml:"watchConfig"`
}

type LockConfig struct {
	Path    string   `yaml:"path"`
	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration that unmarshals from "30s"-style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a config with every default applied.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Mongo: MongoConfig{
			URI:     "mongodb://localhost:27017",
			Timeout: Duration(30 * time.Second),
		},
		View: ViewConfig{
			Strategy:         viewbuild.StrategyDynamic,
			ProbeConcurrency: 4,
		},
		History: storage.Config{
			Driver: storage.DriverSQLite,
			Path:   filepath.Join(dataDir, "history.db"),
		},
		Lock: LockConfig{
			Path:    filepath.Join(dataDir, "rebuild.lock"),
			Timeout: Duration(30 * time.Second),
		},
	}
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mergeview")
	}
	return filepath.Join(homeDir, ".local", "share", "mergeview")
}

// ResolvePath picks the config file location: explicit flag, then the
// environment, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults, then applies environment overrides
// and validates. A missing file is allowed only when required is false.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.path = path
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string { return c.path }

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMongoURI); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv(EnvViewName); v != "" {
		c.View.Name = v
	}
	if v := os.Getenv(EnvHistoryPassword); v != "" {
		c.History.Password = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri is required")
	}
	if c.View.Name == "" {
		return fmt.Errorf("view.name is required (or set %s)", EnvViewName)
	}
	if domain.IsReservedCollection(c.View.Name) {
		return fmt.Errorf("view.name %q is a reserved collection name", c.View.Name)
	}
	switch c.View.Strategy {
	case viewbuild.StrategyDynamic, viewbuild.StrategyFixed:
	default:
		return fmt.Errorf("unknown view.strategy %q", c.View.Strategy)
	}
	for _, f := range c.View.Fields {
		if f == "" || f == domain.IDField {
			return fmt.Errorf("view.fields: invalid field %q", f)
		}
	}
	if c.View.ProbeConcurrency < 1 {
		return errors.New("view.probeConcurrency must be at least 1")
	}
	switch c.History.Driver {
	case storage.DriverSQLite:
		if c.History.Path == "" {
			return errors.New("history.path is required for sqlite")
		}
	case storage.DriverPostgres, storage.DriverMySQL:
		if c.History.Host == "" || c.History.Database == "" {
			return fmt.Errorf("history.host and history.database are required for %s", c.History.Driver)
		}
	default:
		return fmt.Errorf("unknown history.driver %q", c.History.Driver)
	}
	return nil
}
