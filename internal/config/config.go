// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/dashboard-gateway/config.toml",
	"configs/config.toml",
}

// minLogoMaxAge is the shortest max-age a logo Cache-Control may carry (one day).
const minLogoMaxAge = 24 * 60 * 60

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string   `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string   `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int      `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL string   `kong:"name='backend-url',help='Backend origin (overrides config and origin env variables).'"`
	LogLevel   string   `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	EnvFile    []string `kong:"name='env-file',help='Dotenv files consulted after the process environment.',env='ENV_FILE'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig  `toml:"server"`
	Backend  BackendConfig `toml:"backend"`
	Logo     LogoConfig    `toml:"logo"`
	Log      LogConfig     `toml:"log"`
	Metrics  MetricsConfig `toml:"metrics"`
	EnvFiles []string      `toml:"env_files"`

	filePath string            // resolved config file path (unexported)
	env      map[string]string // dotenv overlay
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	ProxyPrefix  string          `toml:"proxy_prefix"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig holds settings for the generic forwarding gateway.
type BackendConfig struct {
	// Origin is the raw origin string; when empty the OriginEnv variables are
	// consulted in order.
	Origin                       string   `toml:"origin"`
	OriginEnv                    []string `toml:"origin_env"`
	ResponseHeaderTimeoutSeconds int      `toml:"response_header_timeout_seconds"`
	IdleConnections              int      `toml:"idle_connections"`
}

// LogoConfig holds settings for the image fetch gateway.
type LogoConfig struct {
	Path               string          `toml:"path"`
	URLTemplate        string          `toml:"url_template"`
	TokenParam         string          `toml:"token_param"`
	CredentialEnv      []string        `toml:"credential_env"`
	TimeoutSeconds     int             `toml:"timeout_seconds"`
	MaxBytes           int64           `toml:"max_bytes"`
	CacheControl       string          `toml:"cache_control"`
	DefaultContentType string          `toml:"default_content_type"`
	Cache              LogoCacheConfig `toml:"cache"`
}

// LogoCacheConfig controls the in-process logo cache.
type LogoCacheConfig struct {
	Enabled    bool  `toml:"enabled"`
	MaxBytes   int64 `toml:"max_bytes"`
	TTLSeconds int   `toml:"ttl_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, applies CLI overrides and loads dotenv files.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/dashboard-gateway/config.toml then configs/config.toml; finding nothing
// is not an error and leaves every setting at its default.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validateRoutes(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	env, err := readEnvFiles(cfg.EnvFiles)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.env = env

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendURL != "" {
		c.Backend.Origin = cli.BackendURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if len(cli.EnvFile) > 0 {
		c.EnvFiles = append(append([]string(nil), c.EnvFiles...), cli.EnvFile...)
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if c.Backend.ResponseHeaderTimeoutSeconds < 0 {
		return fmt.Errorf("backend.response_header_timeout_seconds must be non-negative; got %d", c.Backend.ResponseHeaderTimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		return fmt.Errorf("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}
	if c.Logo.TimeoutSeconds < 0 {
		return fmt.Errorf("logo.timeout_seconds must be non-negative; got %d", c.Logo.TimeoutSeconds)
	}
	if c.Logo.MaxBytes < 0 {
		return fmt.Errorf("logo.max_bytes must be non-negative; got %d", c.Logo.MaxBytes)
	}
	if c.Logo.Cache.MaxBytes < 0 {
		return fmt.Errorf("logo.cache.max_bytes must be non-negative; got %d", c.Logo.Cache.MaxBytes)
	}
	if c.Logo.Cache.TTLSeconds < 0 {
		return fmt.Errorf("logo.cache.ttl_seconds must be non-negative; got %d", c.Logo.Cache.TTLSeconds)
	}

	// Logo upstream.
	if t := c.Logo.URLTemplate; t != "" {
		if !strings.Contains(t, "{symbol}") {
			return fmt.Errorf("logo.url_template must contain {symbol}; got %q", t)
		}
		probe := strings.NewReplacer("{symbol}", "X", "{exchange}", "X").Replace(t)
		u, err := url.Parse(probe)
		if err != nil {
			return fmt.Errorf("logo.url_template is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("logo.url_template must use http or https; got %q", t)
		}
	}
	if cc := c.Logo.CacheControl; cc != "" {
		maxAge, ok := parseMaxAge(cc)
		if !ok || maxAge < minLogoMaxAge {
			return fmt.Errorf("logo.cache_control must allow caching for at least %d seconds (max-age); got %q", minLogoMaxAge, cc)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	return nil
}

// validateRoutes checks route paths once defaults are in place.
func (c *Config) validateRoutes() error {
	for name, p := range map[string]string{
		"server.proxy_prefix": c.Server.ProxyPrefix,
		"logo.path":           c.Logo.Path,
	} {
		if p[0] != '/' || p == "/" || strings.HasSuffix(p, "/") {
			return fmt.Errorf("%s must start with '/', must not end with '/' and must not be the root; got %q", name, p)
		}
	}
	if overlaps(c.Logo.Path, c.Server.ProxyPrefix) {
		return fmt.Errorf("logo.path %q conflicts with server.proxy_prefix %q", c.Logo.Path, c.Server.ProxyPrefix)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range c.ReservedRoutes() {
			if overlaps(p, reserved) {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// ReservedRoutes lists the route prefixes served by the gateway itself.
func (c *Config) ReservedRoutes() []string {
	return []string{c.Server.ProxyPrefix, c.Logo.Path, "/healthz", "/gateway/status"}
}

func overlaps(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Server.ProxyPrefix == "" {
		c.Server.ProxyPrefix = "/api/proxy"
	}
	if len(c.Backend.OriginEnv) == 0 {
		c.Backend.OriginEnv = []string{"BACKEND_API_URL", "NEXT_PUBLIC_API_URL"}
	}
	if c.Backend.ResponseHeaderTimeoutSeconds == 0 {
		c.Backend.ResponseHeaderTimeoutSeconds = 60
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Logo.Path == "" {
		c.Logo.Path = "/api/logo"
	}
	if c.Logo.URLTemplate == "" {
		c.Logo.URLTemplate = "https://financialmodelingprep.com/image-stock/{symbol}.png"
	}
	if c.Logo.TokenParam == "" {
		c.Logo.TokenParam = "apikey"
	}
	if len(c.Logo.CredentialEnv) == 0 {
		c.Logo.CredentialEnv = []string{"FMP_API_KEY", "NEXT_PUBLIC_FMP_API_KEY", "FMP_API_TOKEN", "NEXT_PUBLIC_FMP_API_TOKEN"}
	}
	if c.Logo.TimeoutSeconds == 0 {
		c.Logo.TimeoutSeconds = 10
	}
	if c.Logo.MaxBytes == 0 {
		c.Logo.MaxBytes = 5 * 1024 * 1024 // 5 MB
	}
	if c.Logo.CacheControl == "" {
		c.Logo.CacheControl = "public, max-age=86400, s-maxage=86400, immutable"
	}
	if c.Logo.DefaultContentType == "" {
		c.Logo.DefaultContentType = "image/png"
	}
	if c.Logo.Cache.MaxBytes == 0 {
		c.Logo.Cache.MaxBytes = 64 * 1024 * 1024 // 64 MB
	}
	if c.Logo.Cache.TTLSeconds == 0 {
		c.Logo.Cache.TTLSeconds = minLogoMaxAge
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// parseMaxAge extracts the max-age directive from a Cache-Control value.
func parseMaxAge(cc string) (int, bool) {
	for _, directive := range strings.Split(cc, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		n, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// readEnvFiles merges the given dotenv files; later files override earlier ones.
func readEnvFiles(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(paths...)
	if err != nil {
		return nil, fmt.Errorf("read env files %v: %w", paths, err)
	}
	return env, nil
}

// LookupEnv returns a named value from the process environment, falling back
// to the dotenv overlay when the process value is unset or blank.
func (c *Config) LookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	if fv, fok := c.env[name]; fok {
		return fv, true
	}
	return v, ok
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
