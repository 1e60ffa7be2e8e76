// Package config holds the shim's settings. Everything has a default; a
// lovely.yaml next to the host executable and LOVELY_* environment variables
// override them.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lovely-injector/lovely/internal/log"
)

// FileName is looked up in the host executable's directory.
const FileName = "lovely.yaml"

// Config is the top-level configuration of the shim.
type Config struct {
	Product string       `yaml:"product"`
	Version string       `yaml:"version"`
	Target  TargetConfig `yaml:"target"`
	Mods    ModsConfig   `yaml:"mods"`
	Log     LogConfig    `yaml:"log"`
	// CrashLog receives fatal Go runtime output. Empty disables it.
	CrashLog string `yaml:"crash_log"`
}

// TargetConfig names the native function to intercept.
type TargetConfig struct {
	Module string `yaml:"module"`
	Symbol string `yaml:"symbol"`
}

type ModsConfig struct {
	Dir         string `yaml:"dir"`
	DumpDir     string `yaml:"dump_dir"`
	DumpWorkers int    `yaml:"dump_workers"`
}

type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
	// log files older than this many days are removed at startup
	KeepDays int `yaml:"keep_days"`
}

// Title is the console and crash dialog title.
func (c *Config) Title() string {
	return c.Product + " " + c.Version
}

// DefaultConfig returns the settings used when nothing is configured. Paths
// live under the user's config directory.
func DefaultConfig() *Config {
	base := filepath.Join(dataDir(), "lovely")
	return &Config{
		Product: "Lovely",
		Version: "dev",
		Target: TargetConfig{
			Module: "lua51.dll",
			Symbol: "luaL_loadbufferx",
		},
		Mods: ModsConfig{
			Dir:         filepath.Join(base, "mods"),
			DumpDir:     filepath.Join(base, "dump"),
			DumpWorkers: 4,
		},
		Log: LogConfig{
			Dir:      filepath.Join(base, "log"),
			Level:    "debug",
			KeepDays: 3,
		},
	}
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

// Load reads path over the defaults, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || !os.IsNotExist(errors.Cause(err)) {
		return cfg, err
	}
	cfg = DefaultConfig()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

// Path returns the config file location for the running executable.
func Path() string {
	exe, err := os.Executable()
	if err != nil {
		return FileName
	}
	return filepath.Join(filepath.Dir(exe), FileName)
}

// ApplyEnvOverrides reads LOVELY_* environment variables over the current
// values.
func (c *Config) ApplyEnvOverrides() {
	envOverrides := map[string]func(string){
		"LOVELY_PRODUCT":       func(v string) { c.Product = v },
		"LOVELY_VERSION":       func(v string) { c.Version = v },
		"LOVELY_TARGET_MODULE": func(v string) { c.Target.Module = v },
		"LOVELY_TARGET_SYMBOL": func(v string) { c.Target.Symbol = v },
		"LOVELY_MOD_DIR":       func(v string) { c.Mods.Dir = v },
		"LOVELY_DUMP_DIR":      func(v string) { c.Mods.DumpDir = v },
		"LOVELY_LOG_DIR":       func(v string) { c.Log.Dir = v },
		"LOVELY_LOG_LEVEL":     func(v string) { c.Log.Level = v },
		"LOVELY_CRASH_LOG":     func(v string) { c.CrashLog = v },
	}

	intOverrides := map[string]*int{
		"LOVELY_DUMP_WORKERS":  &c.Mods.DumpWorkers,
		"LOVELY_LOG_KEEP_DAYS": &c.Log.KeepDays,
	}

	for envKey, setter := range envOverrides {
		if val := os.Getenv(envKey); val != "" {
			setter(val)
		}
	}

	for envKey, target := range intOverrides {
		if val := os.Getenv(envKey); val != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				*target = n
			}
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Target.Module == "" {
		return errors.New("target.module is required")
	}
	if c.Target.Symbol == "" {
		return errors.New("target.symbol is required")
	}
	if c.Mods.DumpWorkers < 1 {
		return errors.New("mods.dump_workers must be positive")
	}
	if c.Log.KeepDays < 0 {
		return errors.New("log.keep_days must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}
