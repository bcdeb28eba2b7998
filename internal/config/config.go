package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers accepted for DBDriver.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// Config holds the server and CLI configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	DBDriver   string `yaml:"db_driver"` // "sqlite" (default) or "sqlite3"

	// AppSecret keys the vault that encrypts stored GitHub tokens.
	AppSecret string `yaml:"app_secret,omitempty"`

	GitHubAPIURL     string        `yaml:"github_api_url"`
	GitHubGraphQLURL string        `yaml:"github_graphql_url"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogFormat       string        `yaml:"log_format"` // "json" (default) or "text"
	LogLevel        string        `yaml:"log_level"`  // "debug", "info" (default), "warn", "error"

	RateLimitGitHub    int      `yaml:"rate_limit_github"` // per user per minute, 0 = off
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins,omitempty"`

	// User is the acting user id for CLI commands.
	User string `yaml:"user,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		DBPath:           "./data/scopes.db",
		DBDriver:         DriverModernc,
		GitHubAPIURL:     "https://api.github.com",
		GitHubGraphQLURL: "https://api.github.com/graphql",
		HTTPTimeout:      30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		LogFormat:        "json",
		LogLevel:         "info",
		RateLimitGitHub:  60,
	}
}

// Path returns the config file location: SCOPES_CONFIG_FILE, else
// scopes/config.yaml under the user config dir.
func Path() string {
	if v := os.Getenv("SCOPES_CONFIG_FILE"); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".scopes", "config.yaml")
	}
	return filepath.Join(dir, "scopes", "config.yaml")
}

// Load reads the defaults, the config file at Path (if present) and the
// SCOPES_* environment, in that order of precedence.
func Load() (Config, error) {
	cfg := Default()
	if err := readFile(Path(), &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.DBDriver != DriverModernc && c.DBDriver != DriverCgo {
		return fmt.Errorf("db_driver must be %q or %q, got %q", DriverModernc, DriverCgo, c.DBDriver)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.RateLimitGitHub < 0 {
		return fmt.Errorf("rate_limit_github must not be negative")
	}
	return nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SCOPES_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SCOPES_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SCOPES_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("SCOPES_APP_SECRET"); v != "" {
		cfg.AppSecret = v
	}
	if v := os.Getenv("SCOPES_GITHUB_API_URL"); v != "" {
		cfg.GitHubAPIURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SCOPES_GITHUB_GRAPHQL_URL"); v != "" {
		cfg.GitHubGraphQLURL = v
	}
	if v := os.Getenv("SCOPES_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if v := os.Getenv("SCOPES_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("SCOPES_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SCOPES_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SCOPES_RATE_LIMIT_GITHUB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RateLimitGitHub = n
		}
	}
	if v := os.Getenv("SCOPES_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("SCOPES_USER"); v != "" {
		cfg.User = v
	}
}

// Save writes cfg to path using atomic write (temp file + rename).
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// withLock serializes read-modify-write cycles on path across processes.
func withLock(path string, fn func() error) error {
	lockPath := path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return err
	}
	defer unlockFile(f)

	return fn()
}

// Update applies fn to the file at path and writes it back. Only values
// stored in the file are rewritten; environment overrides are not persisted.
func Update(path string, fn func(*Config)) error {
	return withLock(path, func() error {
		cfg := Default()
		if err := readFile(path, &cfg); err != nil {
			return err
		}
		fn(&cfg)
		return Save(path, cfg)
	})
}
