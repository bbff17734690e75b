// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/cdpsource"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/humanoid"
	"github.com/xkilldash9x/scalpel-fields/internal/monitor"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Scan() ScanConfig
	Monitor() MonitorConfig
	Fill() FillConfig
	Browser() BrowserConfig
	Loader() LoaderConfig

	// Scan Setters
	SetScanMaxDepth(int)
	SetScanIncludeShadowDOM(bool)
	SetScanIframeTraversal(bool)

	// Browser Setters
	SetBrowserHeadless(bool)

	// Humanoid Setters
	SetFillHumanoidEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	ScanCfg    ScanConfig    `mapstructure:"scan" yaml:"scan"`
	MonitorCfg MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	FillCfg    FillConfig    `mapstructure:"fill" yaml:"fill"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LoaderCfg  LoaderConfig  `mapstructure:"loader" yaml:"loader"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Scan() ScanConfig       { return c.ScanCfg }
func (c *Config) Monitor() MonitorConfig { return c.MonitorCfg }
func (c *Config) Fill() FillConfig       { return c.FillCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Loader() LoaderConfig   { return c.LoaderCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetScanMaxDepth(d int)          { c.ScanCfg.MaxDepth = d }
func (c *Config) SetScanIncludeShadowDOM(b bool) { c.ScanCfg.IncludeShadowDOM = b }
func (c *Config) SetScanIframeTraversal(b bool)  { c.ScanCfg.IframeTraversal = b }
func (c *Config) SetBrowserHeadless(b bool)      { c.BrowserCfg.Headless = b }
func (c *Config) SetFillHumanoidEnabled(b bool)  { c.FillCfg.Humanoid.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ScanConfig controls context enumeration.
type ScanConfig struct {
	IncludeShadowDOM bool `mapstructure:"include_shadow_dom" yaml:"include_shadow_dom"`
	IframeTraversal  bool `mapstructure:"iframe_traversal" yaml:"iframe_traversal"`
	MaxDepth         int  `mapstructure:"max_depth" yaml:"max_depth"`
}

// Options converts the section into scanner options.
func (s ScanConfig) Options() locator.ScanOptions {
	return locator.ScanOptions{
		IncludeShadowDOM: s.IncludeShadowDOM,
		IframeTraversal:  s.IframeTraversal,
		MaxDepth:         s.MaxDepth,
	}
}

// MonitorConfig tunes the change monitor.
type MonitorConfig struct {
	Debounce          time.Duration `mapstructure:"debounce" yaml:"debounce"`
	MaxScansPerSecond float64       `mapstructure:"max_scans_per_second" yaml:"max_scans_per_second"`
}

// Options converts the section into monitor options. Clock, publisher and
// logger are left for the caller.
func (m MonitorConfig) Options() monitor.Options {
	return monitor.Options{Debounce: m.Debounce, MaxScansPerSecond: m.MaxScansPerSecond}
}

// FillConfig configures fill passes.
type FillConfig struct {
	Humanoid humanoid.Config `mapstructure:"humanoid" yaml:"humanoid"`
}

// BrowserConfig holds settings for the headless browser used for URL targets.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// Options converts the section into browser options.
func (b BrowserConfig) Options() cdpsource.BrowserOptions {
	return cdpsource.BrowserOptions{
		Headless:          b.Headless,
		NavigationTimeout: b.NavigationTimeout,
		PostLoadWait:      b.PostLoadWait,
		Args:              b.Args,
	}
}

// LoaderConfig controls how static pages fetch their frames.
type LoaderConfig struct {
	MaxFrameDepth int           `mapstructure:"max_frame_depth" yaml:"max_frame_depth"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// FetchFrames enables HTTP fetching of same-origin src frames.
	FetchFrames bool `mapstructure:"fetch_frames" yaml:"fetch_frames"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-fields")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Scan --
	scan := locator.DefaultScanOptions()
	v.SetDefault("scan.include_shadow_dom", scan.IncludeShadowDOM)
	v.SetDefault("scan.iframe_traversal", scan.IframeTraversal)
	v.SetDefault("scan.max_depth", scan.MaxDepth)

	// -- Monitor --
	v.SetDefault("monitor.debounce", monitor.DefaultDebounce)
	v.SetDefault("monitor.max_scans_per_second", 4.0)

	// -- Fill --
	setHumanoidDefaults(v)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.args", []string{})

	// -- Loader --
	v.SetDefault("loader.max_frame_depth", 8)
	v.SetDefault("loader.timeout", "15s")
	v.SetDefault("loader.max_body_bytes", 8<<20)
	v.SetDefault("loader.fetch_frames", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ScanCfg.MaxDepth < 0 {
		return fmt.Errorf("scan.max_depth must not be negative")
	}
	if c.MonitorCfg.Debounce < 0 {
		return fmt.Errorf("monitor.debounce must not be negative")
	}
	if c.MonitorCfg.MaxScansPerSecond < 0 {
		return fmt.Errorf("monitor.max_scans_per_second must not be negative")
	}
	if c.LoaderCfg.MaxFrameDepth < 0 {
		return fmt.Errorf("loader.max_frame_depth must not be negative")
	}
	if c.LoaderCfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("loader.max_body_bytes must be a positive integer")
	}
	if err := c.FillCfg.Humanoid.Validate(); err != nil {
		return fmt.Errorf("fill.humanoid configuration invalid: %w", err)
	}
	return nil
}
