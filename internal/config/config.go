// Package config provides configuration management for gridconnect.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/gridconnect/gridconnect/internal/constants"
	"github.com/gridconnect/gridconnect/internal/retry"
)

// ConfigDir is the directory name under the user's config root.
const ConfigDir = "gridconnect"

// Config holds every setting the CLI needs to reach the platform and move data.
//
// INI format:
//
//	[service]
//	api_url = https://api.gridconnect.io
//	workspace_id = 8a81b09d5e8c6f27015e8d3d6e6b0c1a
//	model_id = 75A40874E6B64FA3AE0743278996850F
//	token = <token>
//
//	[transfer]
//	chunk_size_mb = 10
//	concurrency = 2
//
//	[retry]
//	max_retry_count = 3
//	base_seconds = 5
//	multiplier = 1.5
//	cap_seconds = 120
//
//	[proxy]
//	mode = no-proxy
//
//	[database]
//	dsn = postgres://user@localhost:5432/sales
type Config struct {
	// Platform connection
	APIBaseURL  string
	Token       string
	WorkspaceID string
	ModelID     string

	// Chunk transfer
	ChunkSizeMB int
	Concurrency int

	// Retry policy
	MaxRetryCount   int
	RetryBase       time.Duration
	RetryMultiplier float64
	RetryCap        time.Duration

	// Proxy settings
	ProxyMode     string // no-proxy, system, basic, ntlm
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string
	ProxyWarmup   bool

	// Database used by db import/export
	DatabaseDSN string
}

// Overrides carries values from command-line flags. Zero values leave the config untouched.
type Overrides struct {
	Token       string
	TokenFile   string
	APIBaseURL  string
	WorkspaceID string
	ModelID     string
	ChunkSizeMB int
	Concurrency int
	ProxyMode   string
	ProxyHost   string
	ProxyPort   int
	DatabaseDSN string
}

// Validation errors
var (
	ErrMissingAPIURL      = errors.New("api_url is required")
	ErrMissingToken       = errors.New("token is required (set via --token, GRIDCONNECT_TOKEN or --token-file)")
	ErrMissingWorkspace   = errors.New("workspace_id is required")
	ErrMissingModel       = errors.New("model_id is required")
	ErrInvalidChunkSize   = fmt.Errorf("chunk_size_mb must be between %d and %d", constants.MinChunkSizeMB, constants.MaxChunkSizeMB)
	ErrInvalidConcurrency = fmt.Errorf("concurrency must be between 1 and %d", constants.MaxConcurrency)
	ErrInvalidProxyMode   = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
)

// New returns a config populated with defaults.
func New() *Config {
	return &Config{
		APIBaseURL:      constants.DefaultAPIBaseURL,
		ChunkSizeMB:     constants.DefaultChunkSizeMB,
		Concurrency:     constants.DefaultConcurrency,
		MaxRetryCount:   constants.DefaultMaxRetryCount,
		RetryBase:       constants.DefaultRetryBase,
		RetryMultiplier: constants.DefaultRetryMultiplier,
		RetryCap:        constants.DefaultRetryCap,
		ProxyMode:       "no-proxy",
	}
}

// Load reads configuration from an INI file.
// If the file doesn't exist, returns defaults and no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	svc := iniFile.Section("service")
	cfg.APIBaseURL = svc.Key("api_url").MustString(cfg.APIBaseURL)
	cfg.Token = svc.Key("token").String()
	cfg.WorkspaceID = svc.Key("workspace_id").String()
	cfg.ModelID = svc.Key("model_id").String()

	tr := iniFile.Section("transfer")
	cfg.ChunkSizeMB = tr.Key("chunk_size_mb").MustInt(cfg.ChunkSizeMB)
	cfg.Concurrency = tr.Key("concurrency").MustInt(cfg.Concurrency)

	rt := iniFile.Section("retry")
	cfg.MaxRetryCount = rt.Key("max_retry_count").MustInt(cfg.MaxRetryCount)
	cfg.RetryBase = seconds(rt.Key("base_seconds").MustFloat64(cfg.RetryBase.Seconds()))
	cfg.RetryMultiplier = rt.Key("multiplier").MustFloat64(cfg.RetryMultiplier)
	cfg.RetryCap = seconds(rt.Key("cap_seconds").MustFloat64(cfg.RetryCap.Seconds()))

	px := iniFile.Section("proxy")
	cfg.ProxyMode = px.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = px.Key("host").String()
	cfg.ProxyPort = px.Key("port").MustInt(0)
	cfg.ProxyUser = px.Key("user").String()
	cfg.ProxyPassword = px.Key("password").String()
	cfg.NoProxy = px.Key("no_proxy").String()
	cfg.ProxyWarmup = px.Key("warmup").MustBool(false)

	cfg.DatabaseDSN = iniFile.Section("database").Key("dsn").String()

	return cfg, nil
}

// Save writes cfg to an INI file with owner-only permissions.
// The proxy password is never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
		if path == "" {
			return fmt.Errorf("failed to determine config path")
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"service", [][2]string{
			{"api_url", cfg.APIBaseURL},
			{"workspace_id", cfg.WorkspaceID},
			{"model_id", cfg.ModelID},
			{"token", cfg.Token},
		}},
		{"transfer", [][2]string{
			{"chunk_size_mb", strconv.Itoa(cfg.ChunkSizeMB)},
			{"concurrency", strconv.Itoa(cfg.Concurrency)},
		}},
		{"retry", [][2]string{
			{"max_retry_count", strconv.Itoa(cfg.MaxRetryCount)},
			{"base_seconds", strconv.FormatFloat(cfg.RetryBase.Seconds(), 'f', -1, 64)},
			{"multiplier", strconv.FormatFloat(cfg.RetryMultiplier, 'f', -1, 64)},
			{"cap_seconds", strconv.FormatFloat(cfg.RetryCap.Seconds(), 'f', -1, 64)},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", strconv.Itoa(cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
			{"warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		}},
		{"database", [][2]string{
			{"dsn", cfg.DatabaseDSN},
		}},
	}
	for _, s := range sections {
		sec, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			sec.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Temporary file + rename so a crash never leaves a truncated config
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Merge applies token files, environment variables and flags on top of the file values.
// Token precedence (highest to lowest): --token > GRIDCONNECT_TOKEN > --token-file >
// default token file > config file.
func (c *Config) Merge(o Overrides) {
	var tokenSources []string

	if path := DefaultTokenPath(); path != "" {
		if token, err := ReadTokenFile(path); err == nil {
			c.Token = token
			tokenSources = append(tokenSources, fmt.Sprintf("default token file (%s)", path))
		}
	}
	if o.TokenFile != "" {
		if token, err := ReadTokenFile(o.TokenFile); err == nil {
			c.Token = token
			tokenSources = append(tokenSources, "--token-file flag")
		} else {
			log.Printf("[WARN] Ignoring token file: %v", err)
		}
	}
	if env := os.Getenv("GRIDCONNECT_TOKEN"); env != "" {
		c.Token = env
		tokenSources = append(tokenSources, "GRIDCONNECT_TOKEN environment variable")
	}
	if o.Token != "" {
		c.Token = o.Token
		tokenSources = append(tokenSources, "--token flag")
	}
	if len(tokenSources) > 1 {
		log.Printf("[WARN] Multiple token sources detected, using %s", tokenSources[len(tokenSources)-1])
	}

	if env := os.Getenv("GRIDCONNECT_API_URL"); env != "" {
		c.APIBaseURL = env
	}
	if env := os.Getenv("HTTPS_PROXY"); env != "" && c.ProxyHost == "" {
		c.parseProxyURL(env)
	}

	if o.APIBaseURL != "" {
		c.APIBaseURL = o.APIBaseURL
	}
	if o.WorkspaceID != "" {
		c.WorkspaceID = o.WorkspaceID
	}
	if o.ModelID != "" {
		c.ModelID = o.ModelID
	}
	if o.ChunkSizeMB > 0 {
		c.ChunkSizeMB = o.ChunkSizeMB
	}
	if o.Concurrency > 0 {
		c.Concurrency = o.Concurrency
	}
	if o.ProxyMode != "" {
		c.ProxyMode = o.ProxyMode
	}
	if o.ProxyHost != "" {
		c.ProxyHost = o.ProxyHost
	}
	if o.ProxyPort > 0 {
		c.ProxyPort = o.ProxyPort
	}
	if o.DatabaseDSN != "" {
		c.DatabaseDSN = o.DatabaseDSN
	}

	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http") {
		c.APIBaseURL = "https://" + c.APIBaseURL
	}
}

// parseProxyURL takes host and port from an http(s)://host:port proxy URL.
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(strings.TrimSuffix(parts[1], "/")); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && (c.ProxyMode == "no-proxy" || c.ProxyMode == "") {
		c.ProxyMode = "system"
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingAPIURL
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if c.ChunkSizeMB < constants.MinChunkSizeMB || c.ChunkSizeMB > constants.MaxChunkSizeMB {
		return ErrInvalidChunkSize
	}
	if c.Concurrency < 1 || c.Concurrency > constants.MaxConcurrency {
		return ErrInvalidConcurrency
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// ValidateForModel additionally requires the workspace and model that scope every
// file and task call.
func (c *Config) ValidateForModel() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.WorkspaceID) == "" {
		return ErrMissingWorkspace
	}
	if strings.TrimSpace(c.ModelID) == "" {
		return ErrMissingModel
	}
	return nil
}

// ChunkSizeBytes returns the configured chunk size in bytes.
func (c *Config) ChunkSizeBytes() int {
	return c.ChunkSizeMB * constants.MB
}

// RetryPolicy builds the clamped retry policy described by the config.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.NewPolicy(c.MaxRetryCount, c.RetryBase, c.RetryMultiplier, c.RetryCap)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
