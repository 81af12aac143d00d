// Package config defines the application configuration surface. Every tunable
// the pipeline consumes (selectors, markers, timing budgets, retry counts) is
// an explicit field here; none of the core packages read ambient settings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object. It is populated once at startup and
// passed into component constructors as an immutable value.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Target      TargetConfig      `mapstructure:"target" yaml:"target"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Stability   StabilityConfig   `mapstructure:"stability" yaml:"stability"`
	Extraction  ExtractionConfig  `mapstructure:"extraction" yaml:"extraction"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// TargetConfig identifies the web application the pipeline drives.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless            bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent           string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth         int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight        int           `mapstructure:"window_height" yaml:"window_height"`
	// Args are extra Chrome flag names, without the leading dashes.
	Args                []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ScreenshotOnFailure bool          `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
	ScreenshotOnSuccess bool          `mapstructure:"screenshot_on_success" yaml:"screenshot_on_success"`
	ScreenshotDir       string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// AuthConfig controls credential loading, injection, and session verification.
type AuthConfig struct {
	CredentialFile string        `mapstructure:"credential_file" yaml:"credential_file"`
	CriticalNames  []string      `mapstructure:"critical_names" yaml:"critical_names"`
	InjectAttempts int           `mapstructure:"inject_attempts" yaml:"inject_attempts"`
	InjectBackoff  time.Duration `mapstructure:"inject_backoff" yaml:"inject_backoff"`
	// VerifySelector is a CSS selector that only renders for a recognized
	// session (e.g. the account avatar). Checked after navigation.
	VerifySelector string `mapstructure:"verify_selector" yaml:"verify_selector"`
	// VerifyMarker is a textual fallback: a fragment that appears in the page
	// body only when logged in. Used when VerifySelector matches nothing.
	VerifyMarker  string        `mapstructure:"verify_marker" yaml:"verify_marker"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	// VerifyPollInterval spaces the verification probes within VerifyTimeout.
	VerifyPollInterval time.Duration `mapstructure:"verify_poll_interval" yaml:"verify_poll_interval"`
}

// InteractionConfig tunes target location, typing pace, and submission.
type InteractionConfig struct {
	// InputSelectors are tried in priority order when locating the query box.
	InputSelectors []string `mapstructure:"input_selectors" yaml:"input_selectors"`
	// SubmitSelectors locate a dedicated submit control for the click fallback.
	SubmitSelectors    []string      `mapstructure:"submit_selectors" yaml:"submit_selectors"`
	LocateTimeout      time.Duration `mapstructure:"locate_timeout" yaml:"locate_timeout"`
	LocatePollInterval time.Duration `mapstructure:"locate_poll_interval" yaml:"locate_poll_interval"`
	// TypeDelayMin/Max bound the randomized per-character delay.
	TypeDelayMin time.Duration `mapstructure:"type_delay_min" yaml:"type_delay_min"`
	TypeDelayMax time.Duration `mapstructure:"type_delay_max" yaml:"type_delay_max"`
	// WhitespaceFactor stretches the delay for whitespace characters, which
	// carry a natural pause in human typing.
	WhitespaceFactor float64 `mapstructure:"whitespace_factor" yaml:"whitespace_factor"`
	// PredicateScript optionally replaces the built-in interactability check.
	// It must be a JavaScript expression template with one %q selector slot.
	PredicateScript string `mapstructure:"predicate_script" yaml:"predicate_script"`
}

// StabilityConfig tunes the convergence detector.
type StabilityConfig struct {
	RegionSelector      string        `mapstructure:"region_selector" yaml:"region_selector"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RequiredStableReads int           `mapstructure:"required_stable_reads" yaml:"required_stable_reads"`
	MinContentLength    int           `mapstructure:"min_content_length" yaml:"min_content_length"`
	MaxWait             time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// ExtractionConfig tunes the strategy cascade and the citation pass.
type ExtractionConfig struct {
	StartMarker string `mapstructure:"start_marker" yaml:"start_marker"`
	EndMarker   string `mapstructure:"end_marker" yaml:"end_marker"`
	// StripFragments are chrome/navigation fragments removed from a
	// marker-delimited slice.
	StripFragments []string `mapstructure:"strip_fragments" yaml:"strip_fragments"`
	// Denylist drops whole lines from the filtered full-text strategy.
	Denylist []string `mapstructure:"denylist" yaml:"denylist"`
	// ContainerXPaths are candidate answer containers for the direct-selection
	// strategy, tried in order against the HTML snapshot.
	ContainerXPaths []string `mapstructure:"container_xpaths" yaml:"container_xpaths"`
	// CitationXPath locates the container whose anchors are treated as sources.
	CitationXPath   string `mapstructure:"citation_xpath" yaml:"citation_xpath"`
	MinAnswerLength int    `mapstructure:"min_answer_length" yaml:"min_answer_length"`
}

// StoreConfig locates the local result database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for every tunable.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "askpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.screenshot_on_failure", true)
	v.SetDefault("browser.screenshot_on_success", false)
	v.SetDefault("browser.screenshot_dir", "screenshots")

	// -- Auth --
	v.SetDefault("auth.credential_file", "cookies.json")
	v.SetDefault("auth.critical_names", []string{"__session"})
	v.SetDefault("auth.inject_attempts", 2)
	v.SetDefault("auth.inject_backoff", "250ms")
	v.SetDefault("auth.verify_timeout", "10s")
	v.SetDefault("auth.verify_poll_interval", "500ms")

	// -- Interaction --
	v.SetDefault("interaction.input_selectors", []string{
		`textarea[placeholder]`,
		`div[contenteditable="true"]`,
		`textarea`,
	})
	v.SetDefault("interaction.submit_selectors", []string{
		`button[aria-label="Submit"]`,
		`button[type="submit"]`,
	})
	v.SetDefault("interaction.locate_timeout", "20s")
	v.SetDefault("interaction.locate_poll_interval", "250ms")
	v.SetDefault("interaction.type_delay_min", "45ms")
	v.SetDefault("interaction.type_delay_max", "140ms")
	v.SetDefault("interaction.whitespace_factor", 1.8)

	// -- Stability --
	v.SetDefault("stability.region_selector", `main`)
	v.SetDefault("stability.poll_interval", "400ms")
	v.SetDefault("stability.required_stable_reads", 3)
	v.SetDefault("stability.min_content_length", 40)
	v.SetDefault("stability.max_wait", "90s")

	// -- Extraction --
	v.SetDefault("extraction.min_answer_length", 20)
	v.SetDefault("extraction.citation_xpath", `//div[contains(@class,"citations")]`)
	v.SetDefault("extraction.container_xpaths", []string{
		`//div[contains(@class,"answer")]`,
		`//div[contains(@class,"prose")]`,
	})

	// -- Store --
	v.SetDefault("store.path", "askpilot.db")
}

// NewFromViper unmarshals and validates a Config from a prepared viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a Config carrying only the defaults. Used by tests
// and as the base for flag overrides.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	if err != nil {
		// Defaults are under our control; failing to unmarshal them is a bug.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Auth.InjectAttempts < 1 {
		return fmt.Errorf("auth.inject_attempts must be at least 1")
	}
	if len(c.Interaction.InputSelectors) == 0 {
		return fmt.Errorf("interaction.input_selectors must not be empty")
	}
	if c.Interaction.TypeDelayMin < 0 || c.Interaction.TypeDelayMax < c.Interaction.TypeDelayMin {
		return fmt.Errorf("interaction type delay range is inverted")
	}
	if c.Interaction.WhitespaceFactor < 1.0 {
		return fmt.Errorf("interaction.whitespace_factor must be >= 1.0")
	}
	if c.Stability.PollInterval <= 0 {
		return fmt.Errorf("stability.poll_interval must be positive")
	}
	if c.Stability.RequiredStableReads < 2 {
		return fmt.Errorf("stability.required_stable_reads must be at least 2")
	}
	if c.Stability.MinContentLength <= 0 {
		return fmt.Errorf("stability.min_content_length must be positive")
	}
	if c.Stability.MaxWait <= c.Stability.PollInterval {
		return fmt.Errorf("stability.max_wait must exceed the poll interval")
	}
	if c.Extraction.MinAnswerLength <= 0 {
		return fmt.Errorf("extraction.min_answer_length must be positive")
	}
	return nil
}
