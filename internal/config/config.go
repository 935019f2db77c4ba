// Package config provides configuration management for the render agent.
// Values start from defaults, are overlaid by an optional TOML file and then
// by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/melt"
)

const (
	// Default values
	DefaultPort         = 8787
	DefaultLogLevel     = "info"
	DefaultDataDir      = ".heimdex-render"
	DefaultSettleDelay  = 2 * time.Second
	DefaultPollInterval = 5 * time.Second

	// Environment variable names
	EnvConfigFile     = "HEIMDEX_CONFIG"
	EnvPort           = "HEIMDEX_PORT"
	EnvLogLevel       = "HEIMDEX_LOG_LEVEL"
	EnvDataDir        = "HEIMDEX_DATA_DIR"
	EnvMeltPath       = "HEIMDEX_MELT_PATH"
	EnvTmpDir         = "HEIMDEX_TMP_DIR"
	EnvWipesDir       = "HEIMDEX_WIPES_DIR"
	EnvDebug          = "HEIMDEX_DEBUG"
	EnvLogging        = "HEIMDEX_LOGGING"
	EnvMaxLogSize     = "HEIMDEX_MAX_LOG_SIZE"
	EnvDateFormat     = "HEIMDEX_DATE_FORMAT"
	EnvSessionEnabled = "HEIMDEX_SESSION_ENABLED"
	EnvSessionSecret  = "HEIMDEX_SESSION_SECRET"
	EnvSettleDelay    = "HEIMDEX_SETTLE_DELAY"

	// Database filename
	DBFilename = "render.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Melt() melt.Config
	SessionSecret() string
	SettleDelay() time.Duration
	PollInterval() time.Duration
}

// fileConfig mirrors the TOML file. Unset keys keep their defaults.
type fileConfig struct {
	Port           int    `toml:"port"`
	LogLevel       string `toml:"log_level"`
	DataDir        string `toml:"data_dir"`
	MeltPath       string `toml:"melt_path"`
	TmpDir         string `toml:"tmp_dir"`
	WipesDir       string `toml:"wipes_dir"`
	Debug          *bool  `toml:"debug"`
	Logging        *bool  `toml:"logging"`
	MaxLogSize     string `toml:"max_log_size"`
	DateFormat     string `toml:"date_format"`
	SessionEnabled *bool  `toml:"session_enabled"`
	SessionSecret  string `toml:"session_secret"`
	SettleDelay    string `toml:"settle_delay"`
	PollInterval   string `toml:"poll_interval"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	melt          melt.Config
	sessionSecret string
	settleDelay   time.Duration
	pollInterval  time.Duration
	source        string
}

// New loads the file named by HEIMDEX_CONFIG, if any, then applies
// environment overrides.
func New() (*EnvConfig, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load reads the TOML file at path (skipped when empty) and applies
// environment overrides on top.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		melt:         melt.DefaultConfig(),
		settleDelay:  DefaultSettleDelay,
		pollInterval: DefaultPollInterval,
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.source = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if fc.Port != 0 {
		if err := c.setPort(strconv.Itoa(fc.Port), "port"); err != nil {
			return err
		}
	}
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.melt.MeltPath, fc.MeltPath)
	setString(&c.melt.TmpDir, fc.TmpDir)
	setString(&c.melt.WipesDir, fc.WipesDir)
	setString(&c.melt.DateFormat, fc.DateFormat)
	setString(&c.sessionSecret, fc.SessionSecret)
	if fc.Debug != nil {
		c.melt.Debug = *fc.Debug
	}
	if fc.Logging != nil {
		c.melt.Logging = *fc.Logging
	}
	if fc.SessionEnabled != nil {
		c.melt.SessionEnabled = *fc.SessionEnabled
	}
	if fc.MaxLogSize != "" {
		if err := c.setMaxLogSize(fc.MaxLogSize, "max_log_size"); err != nil {
			return err
		}
	}
	if fc.SettleDelay != "" {
		if err := setDuration(&c.settleDelay, fc.SettleDelay, "settle_delay"); err != nil {
			return err
		}
	}
	if fc.PollInterval != "" {
		if err := setDuration(&c.pollInterval, fc.PollInterval, "poll_interval"); err != nil {
			return err
		}
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		if err := c.setPort(p, EnvPort); err != nil {
			return err
		}
	}
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.melt.MeltPath, os.Getenv(EnvMeltPath))
	setString(&c.melt.TmpDir, os.Getenv(EnvTmpDir))
	setString(&c.melt.WipesDir, os.Getenv(EnvWipesDir))
	setString(&c.melt.DateFormat, os.Getenv(EnvDateFormat))
	setString(&c.sessionSecret, os.Getenv(EnvSessionSecret))

	for env, dst := range map[string]*bool{
		EnvDebug:          &c.melt.Debug,
		EnvLogging:        &c.melt.Logging,
		EnvSessionEnabled: &c.melt.SessionEnabled,
	} {
		if v := os.Getenv(env); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv(EnvMaxLogSize); v != "" {
		if err := c.setMaxLogSize(v, EnvMaxLogSize); err != nil {
			return err
		}
	}
	if v := os.Getenv(EnvSettleDelay); v != "" {
		if err := setDuration(&c.settleDelay, v, EnvSettleDelay); err != nil {
			return err
		}
	}
	return nil
}

func (c *EnvConfig) setPort(v, name string) error {
	port, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", name)
	}
	c.port = port
	return nil
}

// setMaxLogSize accepts plain byte counts and sizes such as "200KiB".
func (c *EnvConfig) setMaxLogSize(v, name string) error {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("invalid %s: %w", name, errors.New("must be positive"))
	}
	c.melt.MaxLogSize = int64(n)
	return nil
}

func setDuration(dst *time.Duration, v, name string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid %s: must not be negative", name)
	}
	*dst = d
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// Melt returns the builder settings.
func (c *EnvConfig) Melt() melt.Config {
	return c.melt
}

func (c *EnvConfig) SessionSecret() string {
	return c.sessionSecret
}

func (c *EnvConfig) SettleDelay() time.Duration {
	return c.settleDelay
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// Source returns the config file that was loaded, or "".
func (c *EnvConfig) Source() string {
	return c.source
}

// Values lists the effective settings for display. The session secret is
// masked.
func (c *EnvConfig) Values() [][2]string {
	m := c.melt
	return [][2]string{
		{"port", strconv.Itoa(c.port)},
		{"log_level", c.logLevel},
		{"data_dir", c.dataDir},
		{"melt_path", m.MeltPath},
		{"tmp_dir", m.TmpDir},
		{"wipes_dir", m.WipesDir},
		{"debug", strconv.FormatBool(m.Debug)},
		{"logging", strconv.FormatBool(m.Logging)},
		{"max_log_size", humanize.IBytes(uint64(m.MaxLogSize))},
		{"date_format", m.DateFormat},
		{"session_enabled", strconv.FormatBool(m.SessionEnabled)},
		{"session_secret", logging.SanitizeToken(c.sessionSecret)},
		{"settle_delay", c.settleDelay.String()},
		{"poll_interval", c.pollInterval.String()},
	}
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
