// Package config handles loading and resolving tsprep configuration.
// Resolution order (later wins):
//  1. built-in defaults
//  2. tsprep.yaml / tsprep.json in the working directory or $HOME/.tsprep
//  3. environment variables TSPREP_<KEY> (e.g. TSPREP_DB_PATH)
//  4. CLI flags bound to the same keys
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ConfigName         = "tsprep"
	EnvPrefix          = "TSPREP"
	DefaultFormat      = "auto" // table on a terminal, jsonl when piped
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
	DefaultRate        = 5.0
	DefaultColor       = "auto"
	DefaultLogLevel    = "warn"
	DefaultIQRK        = 1.5
	DefaultZThreshold  = 3.0
	DefaultRegression  = "c"
	DefaultAutoLag     = "aic"
	DefaultMissing     = "drop"
)

// Keys shared by the config file, environment and flag bindings.
const (
	KeyFormat        = "format"
	KeyDBPath        = "db_path"
	KeyTimeout       = "timeout"
	KeyConcurrency   = "concurrency"
	KeyRate          = "rate"
	KeyColor         = "color"
	KeyLogLevel      = "log_level"
	KeyIQRK          = "iqr_k"
	KeyZThreshold    = "z_threshold"
	KeyADFRegression = "adf_regression"
	KeyADFAutoLag    = "adf_autolag"
	KeyMissing       = "missing"
)

// Config is the fully-resolved runtime configuration.
// All callers use this struct; viper is only consulted during loading.
type Config struct {
	Format        string        `mapstructure:"format"`
	DBPath        string        `mapstructure:"db_path"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	Rate          float64       `mapstructure:"rate"`
	Color         string        `mapstructure:"color"` // auto, always, never
	LogLevel      string        `mapstructure:"log_level"`
	IQRK          float64       `mapstructure:"iqr_k"`
	ZThreshold    float64       `mapstructure:"z_threshold"`
	ADFRegression string        `mapstructure:"adf_regression"`
	ADFAutoLag    string        `mapstructure:"adf_autolag"`
	Missing       string        `mapstructure:"missing"` // drop, fill, error

	ConfigPath string `mapstructure:"-"` // file that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool `mapstructure:"-"`
	Verbose bool `mapstructure:"-"`
	Debug   bool `mapstructure:"-"`
}

// New returns a viper instance carrying the defaults and the environment
// binding. Commands bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyFormat, DefaultFormat)
	v.SetDefault(KeyDBPath, defaultDBPath())
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyConcurrency, DefaultConcurrency)
	v.SetDefault(KeyRate, DefaultRate)
	v.SetDefault(KeyColor, DefaultColor)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyIQRK, DefaultIQRK)
	v.SetDefault(KeyZThreshold, DefaultZThreshold)
	v.SetDefault(KeyADFRegression, DefaultRegression)
	v.SetDefault(KeyADFAutoLag, DefaultAutoLag)
	v.SetDefault(KeyMissing, DefaultMissing)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (explicitPath, or tsprep.* in the usual
// places) into v and resolves the final Config. A missing file is not an
// error.
func Load(v *viper.Viper, explicitPath string) (*Config, error) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tsprep"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no command could work with.
func (c *Config) Validate() error {
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: color must be auto, always or never, got %q", c.Color)
	}
	switch c.Missing {
	case "drop", "fill", "error":
	default:
		return fmt.Errorf("config: missing must be drop, fill or error, got %q", c.Missing)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("config: rate must be positive, got %g", c.Rate)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// WriteTemplate writes the current settings of v to path, refusing to
// overwrite an existing file. The format follows the file extension.
func WriteTemplate(v *viper.Viper, path string) error {
	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Settings returns the resolved key/value pairs for display.
func (c *Config) Settings() [][2]string {
	return [][2]string{
		{KeyFormat, c.Format},
		{KeyDBPath, c.DBPath},
		{KeyTimeout, c.Timeout.String()},
		{KeyConcurrency, fmt.Sprint(c.Concurrency)},
		{KeyRate, fmt.Sprint(c.Rate)},
		{KeyColor, c.Color},
		{KeyLogLevel, c.LogLevel},
		{KeyIQRK, fmt.Sprint(c.IQRK)},
		{KeyZThreshold, fmt.Sprint(c.ZThreshold)},
		{KeyADFRegression, c.ADFRegression},
		{KeyADFAutoLag, c.ADFAutoLag},
		{KeyMissing, c.Missing},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tsprep.db"
	}
	return filepath.Join(home, ".tsprep", "tsprep.db")
}

// Keys lists every settable configuration key.
var Keys = []string{
	KeyFormat, KeyDBPath, KeyTimeout, KeyConcurrency, KeyRate, KeyColor,
	KeyLogLevel, KeyIQRK, KeyZThreshold, KeyADFRegression, KeyADFAutoLag, KeyMissing,
}

// SetValue writes key=value into the config file at path, creating it from
// the defaults when absent. The result must still validate.
func SetValue(path, key, value string) error {
	known := false
	for _, k := range Keys {
		known = known || k == key
	}
	if !known {
		return fmt.Errorf("unknown config key %q\n\nValid keys: %s", key, strings.Join(Keys, ", "))
	}

	v := New()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	v.Set(key, value)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
