package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FAVSYNC_"

// Config holds all configuration options for favsync
type Config struct {
	// Remote service endpoint and credentials
	Remote RemoteConfig `yaml:"remote" toml:"remote" json:"remote"`

	// Download and packaging behavior
	Download DownloadConfig `yaml:"download" toml:"download" json:"download"`

	// Local state store
	Storage StorageConfig `yaml:"storage" toml:"storage" json:"storage"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" toml:"logging" json:"logging"`
}

// RemoteConfig holds the remote API settings
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url" toml:"base_url" json:"base_url"`
	Username      string        `yaml:"username" toml:"username" json:"username"`
	Password      string        `yaml:"password" toml:"password" json:"password"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	UserAgent     string        `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	ItemURLFormat string        `yaml:"item_url_format" toml:"item_url_format" json:"item_url_format"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	OutputDir       string        `yaml:"output_dir" toml:"output_dir" json:"output_dir"`
	Retries         int           `yaml:"retries" toml:"retries" json:"retries"`
	RetryDelay      time.Duration `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	ExtractTitle    bool          `yaml:"extract_title" toml:"extract_title" json:"extract_title"`
	DeleteAfterPack bool          `yaml:"delete_after_pack" toml:"delete_after_pack" json:"delete_after_pack"`
	Favorites       bool          `yaml:"favorites" toml:"favorites" json:"favorites"`
	AlbumIDs        []string      `yaml:"album_ids" toml:"album_ids" json:"album_ids"`
	ConcurrentPages int           `yaml:"concurrent_pages" toml:"concurrent_pages" json:"concurrent_pages"`
	ChapterFormat   string        `yaml:"chapter_format" toml:"chapter_format" json:"chapter_format"`
}

// StorageConfig holds the state store location
type StorageConfig struct {
	Database string `yaml:"database" toml:"database" json:"database"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" toml:"burst_size" json:"burst_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level" json:"level"`
	File    string `yaml:"file" toml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" toml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:       "http://localhost:8080/api",
			Timeout:       20 * time.Second,
			UserAgent:     "favsync/1.0",
			ItemURLFormat: "",
		},
		Download: DownloadConfig{
			OutputDir:       "./downloads",
			Retries:         3,
			RetryDelay:      500 * time.Millisecond,
			ExtractTitle:    false,
			DeleteAfterPack: false,
			Favorites:       true,
			ConcurrentPages: 1,
			ChapterFormat:   "Chapter %d",
		},
		Storage: StorageConfig{
			Database: "./downloads_db.sqlite",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			BurstSize:         4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from FAVSYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("BASE_URL", &c.Remote.BaseURL)
	str("USERNAME", &c.Remote.Username)
	str("PASSWORD", &c.Remote.Password)
	str("USER_AGENT", &c.Remote.UserAgent)
	dur("TIMEOUT", &c.Remote.Timeout)

	str("OUTPUT_DIR", &c.Download.OutputDir)
	num("RETRIES", &c.Download.Retries)
	dur("RETRY_DELAY", &c.Download.RetryDelay)
	flag("EXTRACT_TITLE", &c.Download.ExtractTitle)
	flag("DELETE_AFTER_PACK", &c.Download.DeleteAfterPack)
	flag("FAVORITES", &c.Download.Favorites)
	num("CONCURRENT_PAGES", &c.Download.ConcurrentPages)
	if ids := os.Getenv(EnvPrefix + "ALBUM_IDS"); ids != "" {
		c.Download.AlbumIDs = splitList(ids)
	}

	str("DATABASE", &c.Storage.Database)
	num("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML or TOML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// FindConfigFile returns the first config file present in the standard
// locations, or "" when there is none.
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"favsync.yaml",
		"favsync.toml",
		".favsync.yaml",
		".favsync.yml",
		filepath.Join(home, ".config", "favsync", "config.yaml"),
		filepath.Join(home, ".config", "favsync", "config.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote base URL is required"))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote timeout must be positive"))
	}
	if (c.Remote.Username == "") != (c.Remote.Password == "") {
		errs = append(errs, errors.New("username and password must be set together"))
	}

	if c.Download.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Download.Retries <= 0 {
		errs = append(errs, errors.New("retries must be positive"))
	}
	if c.Download.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}
	if c.Download.ConcurrentPages <= 0 {
		errs = append(errs, errors.New("concurrent pages must be positive"))
	}
	if c.Download.ConcurrentPages > 16 {
		errs = append(errs, errors.New("concurrent pages should not exceed 16"))
	}
	if !strings.Contains(c.Download.ChapterFormat, "%d") {
		errs = append(errs, errors.New("chapter format must contain %d"))
	}

	if c.Storage.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Download.OutputDir = v
	}
	if v, ok := flags["database"].(string); ok && v != "" {
		c.Storage.Database = v
	}
	if v, ok := flags["username"].(string); ok && v != "" {
		c.Remote.Username = v
	}
	if v, ok := flags["password"].(string); ok && v != "" {
		c.Remote.Password = v
	}
	if v, ok := flags["base-url"].(string); ok && v != "" {
		c.Remote.BaseURL = v
	}
	if v, ok := flags["retries"].(int); ok && v > 0 {
		c.Download.Retries = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentPages = v
	}
	if v, ok := flags["album-ids"].([]string); ok && len(v) > 0 {
		c.Download.AlbumIDs = v
	}
	if v, ok := flags["favorites"].(bool); ok {
		c.Download.Favorites = v
	}
	if v, ok := flags["delete-after-pack"].(bool); ok {
		c.Download.DeleteAfterPack = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".favsync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// OriginalsDir is where raw page directories live.
func (c *Config) OriginalsDir() string {
	return filepath.Join(c.Download.OutputDir, "originals")
}

// ArchivesDir is where packaged archives live.
func (c *Config) ArchivesDir() string {
	return filepath.Join(c.Download.OutputDir, "cbz")
}

// EnsureDirectories creates the output tree and the database parent directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.OriginalsDir(), c.ArchivesDir(), filepath.Dir(c.Storage.Database)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
