// Package config loads anchorctl configuration.
//
// A config file is YAML. It is checked against an embedded CUE schema before
// being decoded, so typos in keys and out-of-range enum values are rejected
// with the schema's path in the message.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/anchorage/internal/engine"
	"github.com/roach88/anchorage/internal/kv"
	"github.com/roach88/anchorage/internal/tracking"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full anchorctl configuration.
type Config struct {
	Store   Store   `yaml:"store"`
	Loader  Loader  `yaml:"loader"`
	Logging Logging `yaml:"logging"`
}

// Store selects the record store backend.
type Store struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Loader holds load pass timing.
type Loader struct {
	Delay           time.Duration `yaml:"delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	TrackingTimeout time.Duration `yaml:"tracking_timeout"`
}

// UnmarshalYAML accepts a bare 0 for any duration, which yaml.v3 would
// otherwise refuse as an untyped integer.
func (l *Loader) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 1; i < len(node.Content); i += 2 {
			v := node.Content[i]
			if v.Kind == yaml.ScalarNode && v.Tag == "!!int" && v.Value == "0" {
				v.Tag = "!!str"
				v.Value = "0s"
			}
		}
	}
	type plain Loader
	return node.Decode((*plain)(l))
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: Store{
			Backend: kv.BackendSQLite,
			Path:    "anchors.db",
		},
		Loader: Loader{
			Delay:        engine.DefaultLoadDelay,
			PollInterval: tracking.DefaultPollInterval,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path and overlays it on Default. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and overlays it on Default.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := checkSchema(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if len(raw) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkSchema(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if raw == nil {
		raw = map[string]any{}
	}
	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks constraints the schema cannot express.
func (c Config) Validate() error {
	if !slices.Contains(kv.ValidBackends, c.Store.Backend) {
		return fmt.Errorf("%w: unknown store.backend %q: must be one of %v", ErrInvalid, c.Store.Backend, kv.ValidBackends)
	}
	if c.Store.Backend != kv.BackendMemory && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("%w: store.path is required for backend %q", ErrInvalid, c.Store.Backend)
	}
	if c.Loader.Delay < 0 {
		return fmt.Errorf("%w: loader.delay must not be negative", ErrInvalid)
	}
	if c.Loader.PollInterval <= 0 {
		return fmt.Errorf("%w: loader.poll_interval must be positive", ErrInvalid)
	}
	if c.Loader.TrackingTimeout < 0 {
		return fmt.Errorf("%w: loader.tracking_timeout must not be negative", ErrInvalid)
	}
	return nil
}

// Engine returns the engine timing for c.
func (c Config) Engine() engine.Config {
	return engine.Config{
		LoadDelay:       c.Loader.Delay,
		PollInterval:    c.Loader.PollInterval,
		TrackingTimeout: c.Loader.TrackingTimeout,
	}
}

// Level returns the slog level for c.Logging.Level.
func (c Config) Level() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
