// Package config handles configuration for parabank-e2e.
//
// Values are layered: defaults, then parabank.yaml (or the file given with
// --config), then PARABANK_* environment variables, then -D user data.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
	"github.com/devicelab-dev/parabank-e2e/pkg/wait"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARABANK"

// Supported browser and drivers.
const (
	BrowserChrome    = "chrome"
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// DefaultServer is the public ParaBank demo.
const DefaultServer = "https://parabank.parasoft.com"

// Config represents the run configuration.
type Config struct {
	Browser string `mapstructure:"browser" yaml:"browser"`
	Server  string `mapstructure:"server" yaml:"server"`
	Driver  string `mapstructure:"driver" yaml:"driver"` // chromedp or playwright

	// Waits, in seconds, as in the suite's user data
	DriverWaitTime     float64 `mapstructure:"driver_wait_time" yaml:"DRIVER_WAIT_TIME"`
	StableElemsSleep   float64 `mapstructure:"stable_elems_sleep" yaml:"STABLE_ELEMS_SLEEP"`
	UnstableElemsSleep float64 `mapstructure:"unstable_elems_sleep" yaml:"UNSTABLE_ELEMS_SLEEP"`

	Headless       bool   `mapstructure:"headless" yaml:"headless"`
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`

	// Run selection and output
	Features []string `mapstructure:"features" yaml:"features"`
	Tags     string   `mapstructure:"tags" yaml:"tags"`
	Format   string   `mapstructure:"format" yaml:"format"`
	Output   string   `mapstructure:"output" yaml:"output"`
	Parallel int      `mapstructure:"parallel" yaml:"parallel"`

	Logger logger.Config `mapstructure:"logger" yaml:"logger"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("browser", BrowserChrome)
	v.SetDefault("server", DefaultServer)
	v.SetDefault("driver", DriverChromedp)
	v.SetDefault("driver_wait_time", wait.DefaultTimeout.Seconds())
	v.SetDefault("stable_elems_sleep", wait.DefaultSettle.Seconds())
	v.SetDefault("unstable_elems_sleep", wait.DefaultUnstableSettle.Seconds())
	v.SetDefault("headless", true)
	v.SetDefault("screenshots_dir", core.DefaultArtifactConfig().Dir)

	v.SetDefault("features", []string{"features"})
	v.SetDefault("tags", "")
	v.SetDefault("format", "pretty")
	v.SetDefault("output", "")
	v.SetDefault("parallel", 1)

	lc := logger.DefaultConfig()
	v.SetDefault("logger.level", lc.Level)
	v.SetDefault("logger.format", lc.Format)
	v.SetDefault("logger.file", lc.File)
	v.SetDefault("logger.max_size", lc.MaxSize)
	v.SetDefault("logger.max_backups", lc.MaxBackups)
	v.SetDefault("logger.max_age", lc.MaxAge)
	v.SetDefault("logger.compress", lc.Compress)
	v.SetDefault("logger.color", lc.Color)
	v.SetDefault("logger.name", lc.Name)
}

// Default returns the configuration with defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load builds the configuration. path may be empty, in which case
// parabank.yaml or parabank.yml in dir is used when present. userData is
// applied last and wins over every other layer.
func Load(path, dir string, userData map[string]string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path == "" {
		path = findFile(dir)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range userData {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findFile looks for parabank.yaml, then parabank.yml.
func findFile(dir string) string {
	if dir == "" {
		return ""
	}
	for _, name := range []string{"parabank.yaml", "parabank.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	// an unsupported browser is a mismatch against the one supported value
	if !strings.EqualFold(c.Browser, BrowserChrome) {
		return core.Assertion(fmt.Sprintf("The settings for browser %s are not configured.", c.Browser)).
			WithDetail("browser", c.Browser).
			WithDetail("expected", BrowserChrome)
	}
	switch c.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return core.ConfigError(fmt.Sprintf("unknown driver %q, expected %s or %s", c.Driver, DriverChromedp, DriverPlaywright))
	}
	if c.Server == "" {
		return core.ConfigError("server must not be empty")
	}
	if c.DriverWaitTime <= 0 {
		return core.ConfigError("DRIVER_WAIT_TIME must be positive")
	}
	if c.StableElemsSleep < 0 || c.UnstableElemsSleep < 0 {
		return core.ConfigError("element sleeps must not be negative")
	}
	if c.Parallel < 1 {
		return core.ConfigError("parallel must be at least 1")
	}
	return nil
}

// WaitPolicy converts the second-based wait keys into a wait.Policy.
func (c *Config) WaitPolicy() wait.Policy {
	return wait.Policy{
		Timeout:        seconds(c.DriverWaitTime),
		Interval:       wait.DefaultInterval,
		Settle:         seconds(c.StableElemsSleep),
		UnstableSettle: seconds(c.UnstableElemsSleep),
	}
}

// Artifacts returns the screenshot settings for this run.
func (c *Config) Artifacts() core.ArtifactConfig {
	a := core.DefaultArtifactConfig()
	if c.ScreenshotsDir != "" {
		a.Dir = c.ScreenshotsDir
	}
	return a
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ErrInvalidUserData is returned for -D values without "=".
var ErrInvalidUserData = errors.New("user data must be key=value")

// ParseUserData turns ["k=v", ...] into a map. Later keys win.
func ParseUserData(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidUserData, p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
