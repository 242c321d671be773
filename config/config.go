// Package config provides centralized configuration for litebrowse.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "LITEBROWSE_"

// Config holds all application configuration values.
type Config struct {
	Port           string   `koanf:"port" json:"-"`            // HTTP listen address (e.g., ":8001")
	Databases      []string `koanf:"databases" json:"-"`       // SQLite files to serve
	MetadataPath   string   `koanf:"metadata" json:"-"`        // Optional metadata YAML/JSON file
	Driver         string   `koanf:"driver" json:"-"`          // database/sql driver: sqlite3 or libsql
	Watch          bool     `koanf:"watch" json:"-"`           // Re-inspect databases when files change
	LogLevel       string   `koanf:"log_level" json:"-"`       // debug, info, warn, error
	CORSOrigins    []string `koanf:"cors_origins" json:"-"`    // Allowed CORS origins (empty allows none, "*" allows all)
	RateLimit      int      `koanf:"rate_limit" json:"-"`      // Requests per minute per IP (0 disables)
	RequestTimeout int      `koanf:"request_timeout" json:"-"` // Request timeout in seconds

	DefaultPageSize         int  `koanf:"default_page_size" json:"default_page_size"`
	MaxReturnedRows         int  `koanf:"max_returned_rows" json:"max_returned_rows"`
	SQLTimeLimitMs          int  `koanf:"sql_time_limit_ms" json:"sql_time_limit_ms"`
	DefaultFacetSize        int  `koanf:"default_facet_size" json:"default_facet_size"`
	FacetTimeLimitMs        int  `koanf:"facet_time_limit_ms" json:"facet_time_limit_ms"`
	FacetSuggestTimeLimitMs int  `koanf:"facet_suggest_time_limit_ms" json:"facet_suggest_time_limit_ms"`
	AllowFacet              bool `koanf:"allow_facet" json:"allow_facet"`
	SuggestFacets           bool `koanf:"suggest_facets" json:"suggest_facets"`
	AllowDownload           bool `koanf:"allow_download" json:"allow_download"`
	AllowSQL                bool `koanf:"allow_sql" json:"allow_sql"`
	DefaultCacheTTL         int  `koanf:"default_cache_ttl" json:"default_cache_ttl"`
	HashURLs                bool `koanf:"hash_urls" json:"hash_urls"` // Redirect /{db} to /{db}-{short hash}
	NumSQLThreads           int  `koanf:"num_sql_threads" json:"num_sql_threads"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"port":                        ":8001",
		"driver":                      "sqlite3",
		"watch":                       false,
		"log_level":                   "info",
		"rate_limit":                  0,
		"request_timeout":             30,
		"default_page_size":           100,
		"max_returned_rows":           1000,
		"sql_time_limit_ms":           1000,
		"default_facet_size":          30,
		"facet_time_limit_ms":         200,
		"facet_suggest_time_limit_ms": 50,
		"allow_facet":                 true,
		"suggest_facets":              true,
		"allow_download":              true,
		"allow_sql":                   true,
		"default_cache_ttl":           365 * 24 * 60 * 60,
		"hash_urls":                   true,
		"num_sql_threads":             3,
	}
}

// Default returns a Config populated only from Defaults.
func Default() *Config {
	k := koanf.New(".")
	k.Load(confmap.Provider(Defaults(), "."), nil)
	var cfg Config
	k.Unmarshal("", &cfg)
	return &cfg
}

// findConfigFile returns the explicit path, or litebrowse.yaml/.yml in the
// working directory when present.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"litebrowse.yaml", "litebrowse.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration from defaults, the config file, .env and
// LITEBROWSE_* environment variables, and changed command-line flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Load .env before reading env vars (ignore error if file doesn't exist)
	godotenv.Load()
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both list values and a single comma separated string,
// which is what an environment variable provides.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the engine cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.DefaultPageSize < 0:
		return fmt.Errorf("default_page_size must be >= 0, got %d", c.DefaultPageSize)
	case c.MaxReturnedRows < 1:
		return fmt.Errorf("max_returned_rows must be >= 1, got %d", c.MaxReturnedRows)
	case c.DefaultPageSize > c.MaxReturnedRows:
		return fmt.Errorf("default_page_size (%d) must be <= max_returned_rows (%d)", c.DefaultPageSize, c.MaxReturnedRows)
	case c.NumSQLThreads < 1:
		return fmt.Errorf("num_sql_threads must be >= 1, got %d", c.NumSQLThreads)
	case c.Driver != "sqlite3" && c.Driver != "libsql":
		return fmt.Errorf("driver must be sqlite3 or libsql, got %q", c.Driver)
	}
	return nil
}

// SQLTimeLimit returns sql_time_limit_ms as a duration.
func (c *Config) SQLTimeLimit() time.Duration {
	return time.Duration(c.SQLTimeLimitMs) * time.Millisecond
}

// FacetTimeLimit returns facet_time_limit_ms as a duration.
func (c *Config) FacetTimeLimit() time.Duration {
	return time.Duration(c.FacetTimeLimitMs) * time.Millisecond
}

// FacetSuggestTimeLimit returns facet_suggest_time_limit_ms as a duration.
func (c *Config) FacetSuggestTimeLimit() time.Duration {
	return time.Duration(c.FacetSuggestTimeLimitMs) * time.Millisecond
}
