// Package config loads the read-only configuration snapshot the pipeline is
// built from.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

// Config is the whole snapshot. It is loaded once and not mutated after the
// pipeline is built.
type Config struct {
	Level      model.Level          `json:"level" yaml:"level" toml:"level"`
	StackTrace bool                 `json:"stack_trace" yaml:"stack_trace" toml:"stack_trace"`
	Categories []model.CategoryRule `json:"categories" yaml:"categories" toml:"categories"`
	Sinks      []string             `json:"sinks" yaml:"sinks" toml:"sinks"`

	Device  DeviceConfig  `json:"device" yaml:"device" toml:"device"`
	Console ConsoleConfig `json:"console" yaml:"console" toml:"console"`
	File    FileConfig    `json:"file" yaml:"file" toml:"file"`
	Network NetworkConfig `json:"network" yaml:"network" toml:"network"`
	Store   StoreConfig   `json:"store" yaml:"store" toml:"store"`
	Server  ServerConfig  `json:"server" yaml:"server" toml:"server"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
}

// DeviceConfig is stamped onto every record and network batch.
type DeviceConfig struct {
	ID         string `json:"id" yaml:"id" toml:"id"`
	AppVersion string `json:"app_version" yaml:"app_version" toml:"app_version"`
	Platform   string `json:"platform" yaml:"platform" toml:"platform"`
}

type ConsoleConfig struct {
	Color bool `json:"color" yaml:"color" toml:"color"`
}

// FileConfig drives the rotating file sink.
type FileConfig struct {
	Dir      string `json:"dir" yaml:"dir" toml:"dir"`
	BaseName string `json:"base_name" yaml:"base_name" toml:"base_name"`
	// MaxSize is a human size such as "10MB".
	MaxSize  string `json:"max_size" yaml:"max_size" toml:"max_size"`
	MaxFiles int    `json:"max_files" yaml:"max_files" toml:"max_files"`
}

// MaxSizeBytes parses MaxSize.
func (f FileConfig) MaxSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(f.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("file.max_size: %w", err)
	}
	return int64(n), nil
}

// NetworkConfig drives the batched network sink.
type NetworkConfig struct {
	Endpoint             string  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	BatchSize            int     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	FlushIntervalSeconds float64 `json:"flush_interval_seconds" yaml:"flush_interval_seconds" toml:"flush_interval_seconds"`
	TimeoutSeconds       float64 `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	FallbackPath         string  `json:"fallback_path" yaml:"fallback_path" toml:"fallback_path"`
}

// StoreConfig drives the segment store.
type StoreConfig struct {
	Dir            string `json:"dir" yaml:"dir" toml:"dir"`
	FlushThreshold int    `json:"flush_threshold" yaml:"flush_threshold" toml:"flush_threshold"`
	RetentionDays  int    `json:"retention_days" yaml:"retention_days" toml:"retention_days"`
	Compress       bool   `json:"compress" yaml:"compress" toml:"compress"`
	WAL            bool   `json:"wal" yaml:"wal" toml:"wal"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
}

// LogConfig configures the pipeline's own diagnostic logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Level:      model.LevelInfo,
		StackTrace: false,
		Sinks:      []string{string(sink.KindConsole)},
		Device: DeviceConfig{
			AppVersion: "0.0.0",
		},
		Console: ConsoleConfig{Color: true},
		File: FileConfig{
			Dir:      "logs",
			BaseName: "game_log",
			MaxSize:  "10MB",
			MaxFiles: 5,
		},
		Network: NetworkConfig{
			BatchSize:            50,
			FlushIntervalSeconds: 5,
			TimeoutSeconds:       10,
			FallbackPath:         filepath.Join("logs", "NetworkLogs_Fallback.txt"),
		},
		Store: StoreConfig{
			Dir:            filepath.Join("logs", "segments"),
			FlushThreshold: 100,
			RetentionDays:  7,
			WAL:            true,
		},
		Server: ServerConfig{Addr: ":8088"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default. The decoder is chosen by extension:
// .yaml/.yml, .toml, anything else is JSON. An empty path yields defaults.
// Environment overrides are applied after the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return json.Unmarshal(data, cfg)
	}
}

// ApplyEnv overlays BEHAVELOG_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BEHAVELOG_LEVEL"); ok && v != "" {
		lvl, err := model.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("BEHAVELOG_LEVEL: %w", err)
		}
		c.Level = lvl
	}
	if v, ok := lookup("BEHAVELOG_SINKS"); ok && v != "" {
		var kinds []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				kinds = append(kinds, part)
			}
		}
		c.Sinks = kinds
	}
	if v, ok := lookup("BEHAVELOG_NETWORK_ENDPOINT"); ok {
		c.Network.Endpoint = v
	}
	if v, ok := lookup("BEHAVELOG_STORE_DIR"); ok && v != "" {
		c.Store.Dir = v
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if !c.Level.Valid() {
		errs = append(errs, fmt.Errorf("level: invalid value %d", c.Level))
	}
	seen := make(map[string]bool)
	for i, rule := range c.Categories {
		if rule.Name == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
		}
		if seen[rule.Name] {
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate category %q", i, rule.Name))
		}
		seen[rule.Name] = true
	}
	for _, s := range c.Sinks {
		if _, err := sink.ParseKind(s); err != nil {
			errs = append(errs, fmt.Errorf("sinks: %w", err))
		}
	}
	if c.HasSink(sink.KindFile) {
		if n, err := c.File.MaxSizeBytes(); err != nil {
			errs = append(errs, err)
		} else if n <= 0 {
			errs = append(errs, errors.New("file.max_size must be positive"))
		}
		if c.File.MaxFiles < 1 {
			errs = append(errs, errors.New("file.max_files must be at least 1"))
		}
	}
	if c.Network.BatchSize < 1 {
		errs = append(errs, errors.New("network.batch_size must be at least 1"))
	}
	if c.Network.FlushIntervalSeconds <= 0 {
		errs = append(errs, errors.New("network.flush_interval_seconds must be positive"))
	}
	if c.Store.FlushThreshold < 1 {
		errs = append(errs, errors.New("store.flush_threshold must be at least 1"))
	}
	if c.Store.RetentionDays < 0 {
		errs = append(errs, errors.New("store.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}

// SinkKinds returns the configured kinds in order, without duplicates.
// Invalid names are skipped; Validate reports them.
func (c Config) SinkKinds() []sink.Kind {
	var kinds []sink.Kind
	seen := make(map[sink.Kind]bool)
	for _, s := range c.Sinks {
		k, err := sink.ParseKind(s)
		if err != nil || seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds
}

// HasSink reports whether kind is active.
func (c Config) HasSink(kind sink.Kind) bool {
	for _, k := range c.SinkKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
