// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Resolver  ResolverConfig  `mapstructure:"resolver" yaml:"resolver"`
	Articles  ArticlesConfig  `mapstructure:"articles" yaml:"articles"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
}

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

// BrowserConfig holds settings for the browser process.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent      string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args           []string `mapstructure:"args" yaml:"args"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// NetworkConfig tunes browser-level waiting behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// SessionConfig locates the persisted authentication state.
type SessionConfig struct {
	AuthFile string `mapstructure:"auth_file" yaml:"auth_file"`
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
}

// Selectors abstracts the structure-dependent DOM queries. The host page's
// markup is the most fragile coupling point of the whole tool, so every query
// the extractor issues is policy here, not a constant in the state machine.
type Selectors struct {
	Item        string   `mapstructure:"item" yaml:"item"`
	Timestamp   string   `mapstructure:"timestamp" yaml:"timestamp"`
	AuthorName  string   `mapstructure:"author_name" yaml:"author_name"`
	AuthorLink  string   `mapstructure:"author_link" yaml:"author_link"`
	Text        string   `mapstructure:"text" yaml:"text"`
	PhotoImage  string   `mapstructure:"photo_image" yaml:"photo_image"`
	LinkZones   []string `mapstructure:"link_zones" yaml:"link_zones"`
	ArticleBody string   `mapstructure:"article_body" yaml:"article_body"`
}

// CollectorConfig drives the scroll-and-parse loop.
type CollectorConfig struct {
	BookmarksURL         string        `mapstructure:"bookmarks_url" yaml:"bookmarks_url"`
	MaxScrolls           int           `mapstructure:"max_scrolls" yaml:"max_scrolls"`
	ScrollDelay          time.Duration `mapstructure:"scroll_delay" yaml:"scroll_delay"`
	EmptyScrollThreshold int           `mapstructure:"empty_scroll_threshold" yaml:"empty_scroll_threshold"`
	InitialWait          time.Duration `mapstructure:"initial_wait" yaml:"initial_wait"`
	Selectors            Selectors     `mapstructure:"selectors" yaml:"selectors"`
	PlatformHosts        []string      `mapstructure:"platform_hosts" yaml:"platform_hosts"`
	ImageHostFragment    string        `mapstructure:"image_host_fragment" yaml:"image_host_fragment"`
	ImageVariant         string        `mapstructure:"image_variant" yaml:"image_variant"`
}

// ResolverConfig bounds the shortlink expansion layer.
type ResolverConfig struct {
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRedirects   int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	RatePerSecond  float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	ShortlinkHosts []string      `mapstructure:"shortlink_hosts" yaml:"shortlink_hosts"`
}

// ArticlesConfig controls native-article enrichment.
type ArticlesConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ExportConfig selects output files and formats.
type ExportConfig struct {
	Stem   string `mapstructure:"stem" yaml:"stem"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "magpie-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	// Headful by default: the interactive login flow needs a visible window.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 900)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- Session --
	v.SetDefault("session.auth_file", "")
	v.SetDefault("session.login_url", "https://x.com/login")

	// -- Collector --
	v.SetDefault("collector.bookmarks_url", "https://x.com/i/bookmarks")
	v.SetDefault("collector.max_scrolls", 100)
	v.SetDefault("collector.scroll_delay", "2s")
	v.SetDefault("collector.empty_scroll_threshold", 5)
	v.SetDefault("collector.initial_wait", "30s")
	v.SetDefault("collector.platform_hosts", []string{"x.com", "twitter.com"})
	v.SetDefault("collector.image_host_fragment", "pbs.twimg.com/media")
	v.SetDefault("collector.image_variant", "orig")
	v.SetDefault("collector.selectors.item", `article[data-testid="tweet"]`)
	v.SetDefault("collector.selectors.timestamp", "time")
	v.SetDefault("collector.selectors.author_name", `div[data-testid="User-Name"] a span`)
	v.SetDefault("collector.selectors.author_link", `a[role="link"]`)
	v.SetDefault("collector.selectors.text", `div[data-testid="tweetText"]`)
	v.SetDefault("collector.selectors.photo_image", `div[data-testid="tweetPhoto"] img`)
	v.SetDefault("collector.selectors.link_zones", []string{
		`div[data-testid="tweetText"]`,
		`div[data-testid="card.wrapper"]`,
		`div[role="link"]`,
	})
	v.SetDefault("collector.selectors.article_body", `[data-testid="articleBody"]`)

	// -- Resolver --
	v.SetDefault("resolver.concurrency", 10)
	v.SetDefault("resolver.timeout", "10s")
	v.SetDefault("resolver.max_redirects", 10)
	v.SetDefault("resolver.rate_per_second", 20.0)
	v.SetDefault("resolver.shortlink_hosts", []string{"t.co"})

	// -- Articles --
	v.SetDefault("articles.enabled", true)
	v.SetDefault("articles.concurrency", 2)
	v.SetDefault("articles.timeout", "30s")

	// -- Export --
	v.SetDefault("export.stem", "bookmarks")
	v.SetDefault("export.format", "csv")
}

// NewDefaultConfig creates a configuration struct populated with default values.
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

// NewConfigFromViper creates a validated configuration instance from a viper object.
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
	if c.Collector.MaxScrolls < 1 {
		return fmt.Errorf("collector.max_scrolls must be at least 1")
	}
	if c.Collector.ScrollDelay < 0 {
		return fmt.Errorf("collector.scroll_delay must not be negative")
	}
	if c.Collector.EmptyScrollThreshold < 1 {
		return fmt.Errorf("collector.empty_scroll_threshold must be at least 1")
	}
	if c.Collector.Selectors.Item == "" {
		return fmt.Errorf("collector.selectors.item is required")
	}
	if c.Resolver.Concurrency < 1 {
		return fmt.Errorf("resolver.concurrency must be a positive integer")
	}
	if c.Articles.Concurrency < 1 {
		return fmt.Errorf("articles.concurrency must be a positive integer")
	}
	switch c.Export.Format {
	case "csv", "jsonl", "both":
	default:
		return fmt.Errorf("export.format must be one of csv, jsonl, both (got %q)", c.Export.Format)
	}
	return nil
}

// AuthFilePath returns the configured auth file, falling back to a stable
// per-user default when unset.
func (c *Config) AuthFilePath() (string, error) {
	if c.Session.AuthFile != "" {
		return c.Session.AuthFile, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for default auth file: %w", err)
	}
	return filepath.Join(home, ".magpie", "auth.json"), nil
}
