// Package config provides configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"NewsSmoke/pkg/health"
	"NewsSmoke/pkg/scheduler"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings
type Config struct {
	// Site under test, e.g. "https://oxu.az"
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Backend servers probed directly by IP
	Servers     []health.Server   `json:"servers" yaml:"servers"`
	ServerCheck ServerCheckConfig `json:"server_check" yaml:"server_check"`

	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Scroll   ScrollConfig   `json:"scroll" yaml:"scroll"`
	Site     SiteConfig     `json:"site" yaml:"site"`
	Browser  BrowserConfig  `json:"browser" yaml:"browser"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`

	// Schedule is a standard 5-field cron spec; empty runs once and exits.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// DevMode shows the browser with devtools, logs to the console and waits
	// for Enter before closing the browser.
	DevMode bool `json:"dev_mode" yaml:"dev_mode"`
}

// ServerCheckConfig controls the backend liveness probes.
type ServerCheckConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	Port           int  `json:"port" yaml:"port"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	BotToken    string  `json:"bot_token" yaml:"bot_token"`
	ChatID      int64   `json:"chat_id" yaml:"chat_id"`
	APIEndpoint string  `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty"`
	RatePerSec  float64 `json:"rate_per_second,omitempty" yaml:"rate_per_second,omitempty"`
}

// ScrollConfig tunes pagination checks.
type ScrollConfig struct {
	// MaxPages is the last page each listing must reach; pages 2..MaxPages are targets.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	// ScrollTimeout is the per-page deadline in seconds.
	ScrollTimeout int `json:"scroll_timeout" yaml:"scroll_timeout"`
	// LoadTimeout bounds selector waits after navigation, in seconds.
	LoadTimeout int `json:"load_timeout" yaml:"load_timeout"`

	InitialMinItems   int `json:"initial_min_items,omitempty" yaml:"initial_min_items,omitempty"`
	StepPixels        int `json:"step_pixels,omitempty" yaml:"step_pixels,omitempty"`
	PauseMS           int `json:"pause_ms,omitempty" yaml:"pause_ms,omitempty"`
	StallLimit        int `json:"stall_limit,omitempty" yaml:"stall_limit,omitempty"`
	ReachedSettleMS   int `json:"reached_settle_ms,omitempty" yaml:"reached_settle_ms,omitempty"`
	AnalyticsSettleMS int `json:"analytics_settle_ms,omitempty" yaml:"analytics_settle_ms,omitempty"`
	BeaconWindowMS    int `json:"beacon_window_ms,omitempty" yaml:"beacon_window_ms,omitempty"`
}

// SiteConfig describes the page structure the checks rely on.
type SiteConfig struct {
	AnalyticsMarker string    `json:"analytics_marker" yaml:"analytics_marker"`
	CategorySample  int       `json:"category_sample" yaml:"category_sample"`
	TagSample       int       `json:"tag_sample" yaml:"tag_sample"`
	ExcludedNames   []string  `json:"excluded_names" yaml:"excluded_names"`
	SearchTerm      string    `json:"search_term" yaml:"search_term"`
	Selectors       Selectors `json:"selectors" yaml:"selectors"`
}

// Selectors are the CSS selectors of the site's layout.
type Selectors struct {
	NewsItem     string `json:"news_item" yaml:"news_item"`
	MainSlider   string `json:"main_slider" yaml:"main_slider"`
	ListingTitle string `json:"listing_title" yaml:"listing_title"`
	MenuToggle   string `json:"menu_toggle" yaml:"menu_toggle"`
	Menu         string `json:"menu" yaml:"menu"`
	MenuLinks    string `json:"menu_links" yaml:"menu_links"`
	TagsBar      string `json:"tags_bar" yaml:"tags_bar"`
	TagLinks     string `json:"tag_links" yaml:"tag_links"`
	SearchToggle string `json:"search_toggle" yaml:"search_toggle"`
	SearchInput  string `json:"search_input" yaml:"search_input"`
	SearchForm   string `json:"search_form" yaml:"search_form"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless       bool   `json:"headless" yaml:"headless"`
	ViewportWidth  int    `json:"viewport_width,omitempty" yaml:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty" yaml:"viewport_height,omitempty"`
	UserAgent      string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	ScreenshotDir  string `json:"screenshot_dir" yaml:"screenshot_dir"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// LogConfig holds the run log settings.
type LogConfig struct {
	Path  string `json:"path" yaml:"path"`
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	ListenAddress string `json:"listen_address" yaml:"listen_address"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://oxu.az",

		ServerCheck: ServerCheckConfig{
			Enabled:        true,
			Port:           80,
			TimeoutSeconds: 10,
		},

		Telegram: TelegramConfig{
			Enabled:    true,
			RatePerSec: 1,
		},

		Scroll: ScrollConfig{
			MaxPages:          3,
			ScrollTimeout:     30,
			LoadTimeout:       5,
			InitialMinItems:   1,
			StepPixels:        300,
			PauseMS:           100,
			StallLimit:        50,
			ReachedSettleMS:   1000,
			AnalyticsSettleMS: 5000,
			BeaconWindowMS:    5000,
		},

		Site: SiteConfig{
			AnalyticsMarker: "www.google-analytics.com/g/collect",
			CategorySample:  3,
			TagSample:       3,
			ExcludedNames:   []string{"Home"},
			SearchTerm:      "ilham əliyev",
			Selectors: Selectors{
				NewsItem:     ".index-post-block",
				MainSlider:   ".main-slider",
				ListingTitle: ".main-posts-title",
				MenuToggle:   ".custom-navbar-toggle",
				Menu:         ".custom-navbar-menu",
				MenuLinks:    ".custom-navbar-menu ul li a",
				TagsBar:      ".custom-navbar-tags",
				TagLinks:     ".swiper ul li a",
				SearchToggle: ".custom-navbar-search-toggle",
				SearchInput:  ".custom-navbar-search-form form input",
				SearchForm:   ".custom-navbar-search-form form",
			},
		},

		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			ScreenshotDir:  "screenshots",
			TimeoutSeconds: 30,
		},

		Log: LogConfig{
			Path:  "news_website_test.log",
			Level: "INFO",
		},

		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9108",
		},
	}
}

// GetConfigPaths returns a prioritized list of configuration file paths
func GetConfigPaths(cliPath string) []string {
	// An explicit path is the only candidate
	if cliPath != "" {
		return []string{cliPath}
	}

	paths := []string{
		"newssmoke.yaml",
		"config.yaml",
		"config.json",
		"configs/config.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".newssmoke", "config.yaml"))
	}

	return paths
}

// Load loads configuration from the first available path in the prioritized
// list. It returns the path used, or "" when running on defaults.
func Load(cliPath string) (*Config, string, error) {
	loadDotEnv(".env")

	for _, path := range GetConfigPaths(cliPath) {
		data, err := os.ReadFile(path)
		if err != nil {
			if cliPath != "" {
				return nil, path, fmt.Errorf("read config: %w", err)
			}
			continue
		}

		cfg := DefaultConfig()
		if err := decode(path, data, cfg); err != nil {
			return nil, path, err
		}
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, path, fmt.Errorf("configuration validation failed in %s: %w", path, err)
		}
		return cfg, path, nil
	}

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("default configuration validation failed: %w", err)
	}
	return cfg, "", nil
}

// decode picks the format from the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid YAML in config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid JSON in config file %s: %w", path, err)
		}
	}
	return nil
}

// allowedEnvVars is a whitelist of environment variable names that may be set from .env
var allowedEnvVars = map[string]bool{
	"TELEGRAM_BOT_TOKEN": true,
	"TELEGRAM_CHAT_ID":   true,
	"NEWSSMOKE_BASE_URL": true,
	"NEWSSMOKE_SCHEDULE": true,
	"LOG_LEVEL":          true,
	"DEV_MODE":           true,
}

// loadDotEnv copies whitelisted keys from a .env file into the environment
// without overriding variables that are already set.
func loadDotEnv(path string) {
	values, err := godotenv.Read(path)
	if err != nil {
		return // .env doesn't exist, that's ok
	}

	for key, value := range values {
		if !allowedEnvVars[key] {
			continue
		}
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to set environment variable %s: %v\n", key, err)
			}
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if botToken := os.Getenv("TELEGRAM_BOT_TOKEN"); botToken != "" {
		cfg.Telegram.BotToken = botToken
	}
	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		if chatID, err := strconv.ParseInt(chatIDStr, 10, 64); err == nil {
			cfg.Telegram.ChatID = chatID
		}
	}
	if baseURL := os.Getenv("NEWSSMOKE_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if schedule, ok := os.LookupEnv("NEWSSMOKE_SCHEDULE"); ok {
		cfg.Schedule = schedule
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if dev := os.Getenv("DEV_MODE"); dev != "" {
		if v, err := strconv.ParseBool(dev); err == nil {
			cfg.DevMode = v
		}
	}
}

// SiteHost returns the host of BaseURL, e.g. "oxu.az".
func (c *Config) SiteHost() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// TargetPages returns the pages every listing must reach, 2..MaxPages.
func (c *Config) TargetPages() []int {
	var pages []int
	for p := 2; p <= c.Scroll.MaxPages; p++ {
		pages = append(pages, p)
	}
	return pages
}

// GetScrollTimeout returns the per-page deadline, defaulting to 30s.
func (c *Config) GetScrollTimeout() time.Duration {
	return seconds(c.Scroll.ScrollTimeout, 30)
}

// GetLoadTimeout returns the selector wait after navigation, defaulting to 5s.
func (c *Config) GetLoadTimeout() time.Duration {
	return seconds(c.Scroll.LoadTimeout, 5)
}

// GetServerTimeout returns the probe timeout, defaulting to 10s.
func (c *Config) GetServerTimeout() time.Duration {
	return seconds(c.ServerCheck.TimeoutSeconds, 10)
}

// GetBrowserTimeout returns the default Playwright timeout, defaulting to 30s.
func (c *Config) GetBrowserTimeout() time.Duration {
	return seconds(c.Browser.TimeoutSeconds, 30)
}

// GetBrowserViewportW returns the browser viewport width, defaulting to 1920.
func (c *Config) GetBrowserViewportW() int {
	if c.Browser.ViewportWidth > 0 {
		return c.Browser.ViewportWidth
	}
	return 1920
}

// GetBrowserViewportH returns the browser viewport height, defaulting to 1080.
func (c *Config) GetBrowserViewportH() int {
	if c.Browser.ViewportHeight > 0 {
		return c.Browser.ViewportHeight
	}
	return 1080
}

func seconds(v, def int) time.Duration {
	if v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Duration(def) * time.Second
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ScrollPause, ReachedSettle, AnalyticsSettle and BeaconWindow convert the
// millisecond settings; zero leaves the verifier default in place.
func (c *Config) ScrollPause() time.Duration     { return millis(c.Scroll.PauseMS) }
func (c *Config) ReachedSettle() time.Duration   { return millis(c.Scroll.ReachedSettleMS) }
func (c *Config) AnalyticsSettle() time.Duration { return millis(c.Scroll.AnalyticsSettleMS) }
func (c *Config) BeaconWindow() time.Duration    { return millis(c.Scroll.BeaconWindowMS) }

// Validate validates the configuration and returns any errors
func (c *Config) Validate() error {
	if err := validateURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram is enabled but bot_token is empty (set TELEGRAM_BOT_TOKEN)")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram is enabled but chat_id is empty (set TELEGRAM_CHAT_ID)")
		}
	}

	if c.ServerCheck.Enabled {
		if c.ServerCheck.Port < 1 || c.ServerCheck.Port > 65535 {
			return fmt.Errorf("server_check.port must be between 1 and 65535, got %d", c.ServerCheck.Port)
		}
		seen := make(map[string]bool, len(c.Servers))
		for i, s := range c.Servers {
			if s.Name == "" || s.IP == "" {
				return fmt.Errorf("servers[%d]: name and ip are required", i)
			}
			if seen[s.Name] {
				return fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name)
			}
			seen[s.Name] = true
		}
	}

	if c.Scroll.MaxPages < 2 {
		return fmt.Errorf("scroll.max_pages must be at least 2, got %d", c.Scroll.MaxPages)
	}
	if c.Scroll.InitialMinItems < 0 {
		return fmt.Errorf("scroll.initial_min_items must not be negative")
	}
	if c.Site.CategorySample < 0 || c.Site.TagSample < 0 {
		return fmt.Errorf("site.category_sample and site.tag_sample must not be negative")
	}
	if c.Site.Selectors.NewsItem == "" {
		return fmt.Errorf("site.selectors.news_item is required")
	}

	if c.Schedule != "" {
		if err := scheduler.ValidateSpec(c.Schedule); err != nil {
			return err
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}

	switch strings.ToUpper(c.Log.Level) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("log.level must be one of DEBUG, INFO, WARN, ERROR, got %q", c.Log.Level)
	}

	return nil
}

// validateURL validates that a URL is properly formatted
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL is required")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a valid host")
	}

	return nil
}
