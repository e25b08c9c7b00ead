// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the assistant server.
// It loads the YAML configuration file, applies defaults and environment
// overrides, and validates the result before any component is built.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/traylinx/switchAIAssist/internal/backend"
	"github.com/traylinx/switchAIAssist/internal/completion"
)

// Environment variables that override file values.
const (
	EnvStoreDriver   = "ASSIST_STORE_DRIVER"
	EnvStoreDSN      = "ASSIST_STORE_DSN"
	EnvManagementKey = "ASSIST_MANAGEMENT_KEY"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// TLS config controls HTTPS server settings.
	TLS TLSConfig `yaml:"tls" json:"tls"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is where rotating log files are written.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// ManagementKey protects the statistics endpoint. Plaintext values are
	// replaced by a bcrypt hash at load time.
	ManagementKey string `yaml:"management-key" json:"-"`

	Store      StoreConfig      `yaml:"store" json:"store"`
	Backends   []BackendConfig  `yaml:"backends" json:"backends"`
	Completion CompletionConfig `yaml:"completion" json:"completion"`
	WarmUp     WarmUpConfig     `yaml:"warmup" json:"warmup"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Rules      RulesConfig      `yaml:"rules" json:"rules"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat" json:"heartbeat"`
	Jobs       JobsConfig       `yaml:"jobs" json:"jobs"`

	location *time.Location
}

// TLSConfig holds HTTPS server settings.
type TLSConfig struct {
	// Enable toggles HTTPS server mode.
	Enable bool `yaml:"enable" json:"enable"`
	// Cert is the path to the TLS certificate file.
	Cert string `yaml:"cert" json:"cert"`
	// Key is the path to the TLS private key file.
	Key string `yaml:"key" json:"key"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn" json:"-"`
	// RetentionDays bounds how long predictions and exported training
	// examples are kept. Zero disables pruning.
	RetentionDays int `yaml:"retention-days" json:"retention-days"`
	// SeedFile is an optional YAML dataset loaded into the index at startup.
	SeedFile string `yaml:"seed-file" json:"seed-file"`
}

// BackendConfig describes one completion backend.
type BackendConfig struct {
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind" json:"kind"`
	BaseURL string `yaml:"base-url" json:"base-url"`
	APIKey  string `yaml:"api-key" json:"-"`
	// APIKeyEnv names an environment variable holding the API key.
	APIKeyEnv string `yaml:"api-key-env" json:"api-key-env"`
	Model     string `yaml:"model" json:"model"`
	// Priority ranks backends; lower is preferred.
	Priority          int     `yaml:"priority" json:"priority"`
	MaxTokens         int     `yaml:"max-tokens" json:"max-tokens"`
	RequestsPerMinute int     `yaml:"requests-per-minute" json:"requests-per-minute"`
	TokensPerMinute   int     `yaml:"tokens-per-minute" json:"tokens-per-minute"`
	CostWeight        float64 `yaml:"cost-weight" json:"cost-weight"`
	// Role is "capable", "fast" or empty.
	Role string `yaml:"role" json:"role"`
}

// CompletionConfig tunes the completion router.
type CompletionConfig struct {
	InferenceTimeout time.Duration `yaml:"inference-timeout" json:"inference-timeout"`
	// RaceTimeout bounds the completion stage of a classification.
	RaceTimeout    time.Duration `yaml:"race-timeout" json:"race-timeout"`
	RetryCount     int           `yaml:"retry-count" json:"retry-count"`
	RetryBaseDelay time.Duration `yaml:"retry-base-delay" json:"retry-base-delay"`
	RetryMaxDelay  time.Duration `yaml:"retry-max-delay" json:"retry-max-delay"`
	MaxRetryAfter  time.Duration `yaml:"max-retry-after" json:"max-retry-after"`
	CoolDown       time.Duration `yaml:"cool-down" json:"cool-down"`
	CacheTTL       time.Duration `yaml:"cache-ttl" json:"cache-ttl"`
	CacheCapacity  int           `yaml:"cache-capacity" json:"cache-capacity"`
}

// WarmUpConfig controls startup warm-up completions.
type WarmUpConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Backends limits warm-up to the named backends; empty means all.
	Backends []string      `yaml:"backends" json:"backends"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// CacheConfig sizes the classification cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	Capacity int           `yaml:"capacity" json:"capacity"`
}

// ClassifierConfig holds the cascade thresholds.
type ClassifierConfig struct {
	AcceptThreshold  float64 `yaml:"accept-threshold" json:"accept-threshold"`
	ConfirmThreshold float64 `yaml:"confirm-threshold" json:"confirm-threshold"`
	SimilarityFloor  float64 `yaml:"similarity-floor" json:"similarity-floor"`
	// Timezone resolves relative dates; "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`
}

// RulesConfig locates operator-defined rule files.
type RulesConfig struct {
	// Dir holds *.yaml rule files; empty keeps the built-in table only.
	Dir   string `yaml:"dir" json:"dir"`
	Watch bool   `yaml:"watch" json:"watch"`
}

// HeartbeatConfig controls the backend health monitor.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// JobsConfig holds cron schedules for maintenance jobs.
type JobsConfig struct {
	PruneSchedule  string `yaml:"prune-schedule" json:"prune-schedule"`
	ExportSchedule string `yaml:"export-schedule" json:"export-schedule"`
}

// Default returns a configuration with every documented default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	cfg.Host = "" // Default empty: binds to all interfaces
	cfg.Port = 18080
	cfg.LogDir = "logs"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = "assist.db"
	cfg.Store.RetentionDays = 30

	cd := completion.DefaultConfig()
	cfg.Completion = CompletionConfig{
		InferenceTimeout: cd.InferenceTimeout,
		RaceTimeout:      time.Second,
		RetryCount:       cd.RetryCount,
		RetryBaseDelay:   cd.RetryBaseDelay,
		RetryMaxDelay:    cd.RetryMaxDelay,
		MaxRetryAfter:    cd.MaxRetryAfter,
		CoolDown:         cd.CoolDown,
		CacheTTL:         cd.CacheTTL,
		CacheCapacity:    cd.CacheCapacity,
	}
	cfg.WarmUp.Timeout = 60 * time.Second
	cfg.Cache.TTL = time.Hour
	cfg.Cache.Capacity = 1000
	cfg.Classifier = ClassifierConfig{
		AcceptThreshold:  0.85,
		ConfirmThreshold: 0.65,
		SimilarityFloor:  0.5,
		Timezone:         "Local",
	}
	cfg.Rules.Watch = true
	cfg.Heartbeat.Enabled = true
	cfg.Heartbeat.Interval = 30 * time.Second
	cfg.Jobs.PruneSchedule = "@daily"
	cfg.Jobs.ExportSchedule = "@every 5m"
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, defaults are used.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	var cfg Config
	// Set defaults before unmarshal so that absent keys keep defaults.
	cfg.applyDefaults()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if !optional || !(os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = nil
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	// Hash the management key if plaintext is detected.
	if cfg.ManagementKey != "" && !looksLikeBcrypt(cfg.ManagementKey) {
		fromFile := os.Getenv(EnvManagementKey) == ""
		hashed, errHash := hashSecret(cfg.ManagementKey)
		if errHash != nil {
			return nil, fmt.Errorf("failed to hash management key: %w", errHash)
		}
		cfg.ManagementKey = hashed

		// Persist the hash so the plaintext does not stay on disk.
		if fromFile && len(data) > 0 {
			_ = UpdateScalar(configFile, []string{"management-key"}, hashed)
		}
	}

	cfg.SanitizeBackends()
	cfg.SanitizeJobs()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays environment variables onto the loaded values.
func (cfg *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvStoreDriver)); v != "" {
		cfg.Store.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreDSN)); v != "" {
		cfg.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvManagementKey)); v != "" {
		cfg.ManagementKey = v
	}
}

// SanitizeBackends trims entries, resolves api-key-env references and drops
// entries without a name or model. Relative order is preserved.
func (cfg *Config) SanitizeBackends() {
	if cfg == nil || len(cfg.Backends) == 0 {
		return
	}
	out := make([]BackendConfig, 0, len(cfg.Backends))
	for i := range cfg.Backends {
		b := cfg.Backends[i]
		b.Name = strings.TrimSpace(b.Name)
		b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
		b.BaseURL = strings.TrimSpace(b.BaseURL)
		b.Model = strings.TrimSpace(b.Model)
		b.Role = strings.ToLower(strings.TrimSpace(b.Role))
		b.APIKey = strings.TrimSpace(b.APIKey)
		if b.APIKey == "" && b.APIKeyEnv != "" {
			b.APIKey = strings.TrimSpace(os.Getenv(strings.TrimSpace(b.APIKeyEnv)))
		}
		if b.Kind == "" {
			b.Kind = string(backend.KindOpenAI)
		}
		if b.Name == "" || b.Model == "" {
			continue
		}
		out = append(out, b)
	}
	cfg.Backends = out
}

// SanitizeJobs restores default schedules for blank entries.
func (cfg *Config) SanitizeJobs() {
	cfg.Jobs.PruneSchedule = strings.TrimSpace(cfg.Jobs.PruneSchedule)
	cfg.Jobs.ExportSchedule = strings.TrimSpace(cfg.Jobs.ExportSchedule)
	if cfg.Jobs.PruneSchedule == "" {
		cfg.Jobs.PruneSchedule = "@daily"
	}
	if cfg.Jobs.ExportSchedule == "" {
		cfg.Jobs.ExportSchedule = "@every 5m"
	}
}

// Validate reports the first invalid setting.
func (cfg *Config) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	if cfg.TLS.Enable && (cfg.TLS.Cert == "" || cfg.TLS.Key == "") {
		return fmt.Errorf("config: tls enabled without cert and key")
	}
	switch strings.ToLower(cfg.Store.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		return fmt.Errorf("config: unsupported store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.RetentionDays < 0 {
		return fmt.Errorf("config: store.retention-days must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if seen[b.Name] {
			return fmt.Errorf("config: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
		switch backend.Kind(b.Kind) {
		case backend.KindOpenAI, backend.KindOllama, backend.KindAnthropic, backend.KindGemini:
		default:
			return fmt.Errorf("config: backend %s has unknown kind %q", b.Name, b.Kind)
		}
		switch backend.Role(b.Role) {
		case backend.RoleNone, backend.RoleCapable, backend.RoleFast:
		default:
			return fmt.Errorf("config: backend %s has unknown role %q", b.Name, b.Role)
		}
	}

	c := cfg.Classifier
	for name, v := range map[string]float64{
		"accept-threshold":  c.AcceptThreshold,
		"confirm-threshold": c.ConfirmThreshold,
		"similarity-floor":  c.SimilarityFloor,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("config: classifier.%s must be in (0,1], got %v", name, v)
		}
	}
	if c.ConfirmThreshold > c.AcceptThreshold {
		return fmt.Errorf("config: classifier.confirm-threshold must not exceed accept-threshold")
	}

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: classifier.timezone: %w", err)
	}
	cfg.location = loc

	if cfg.Completion.RaceTimeout <= 0 {
		return fmt.Errorf("config: completion.race-timeout must be positive")
	}
	if cfg.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache.capacity must be positive")
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	case "UTC", "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Location returns the zone used for relative date resolution.
func (cfg *Config) Location() *time.Location {
	if cfg.location == nil {
		if loc, err := loadLocation(cfg.Classifier.Timezone); err == nil {
			return loc
		}
		return time.Local
	}
	return cfg.location
}

// BackendSpecs converts the backend entries into router specs.
func (cfg *Config) BackendSpecs() []backend.Spec {
	specs := make([]backend.Spec, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		specs = append(specs, backend.Spec{
			Name:              b.Name,
			Kind:              backend.Kind(b.Kind),
			BaseURL:           b.BaseURL,
			APIKey:            b.APIKey,
			Model:             b.Model,
			Priority:          b.Priority,
			MaxTokens:         b.MaxTokens,
			RequestsPerMinute: b.RequestsPerMinute,
			TokensPerMinute:   b.TokensPerMinute,
			CostWeight:        b.CostWeight,
			Role:              backend.Role(b.Role),
		})
	}
	return specs
}

// RouterConfig converts the completion section into router tunables.
func (cfg *Config) RouterConfig() completion.Config {
	c := cfg.Completion
	return completion.Config{
		InferenceTimeout: c.InferenceTimeout,
		RetryCount:       c.RetryCount,
		RetryBaseDelay:   c.RetryBaseDelay,
		RetryMaxDelay:    c.RetryMaxDelay,
		MaxRetryAfter:    c.MaxRetryAfter,
		CoolDown:         c.CoolDown,
		CacheTTL:         c.CacheTTL,
		CacheCapacity:    c.CacheCapacity,
	}
}

// CheckManagementKey reports whether presented matches the configured key.
// An unset key allows every request.
func (cfg *Config) CheckManagementKey(presented string) bool {
	if cfg.ManagementKey == "" {
		return true
	}
	if presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(cfg.ManagementKey), []byte(presented)) == nil
}

// looksLikeBcrypt returns true if the provided string appears to be a bcrypt hash.
func looksLikeBcrypt(s string) bool {
	return len(s) > 4 && (s[:4] == "$2a$" || s[:4] == "$2b$" || s[:4] == "$2y$")
}

// hashSecret hashes the given secret using bcrypt.
func hashSecret(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}
