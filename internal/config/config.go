// Package config loads and validates the host's JSON5 configuration file,
// overlaying environment variables the same way the upstream gateway does:
// file values first, env vars always win, secrets never round-trip to disk.
package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the host process.
type Config struct {
	Workspace  WorkspaceDefaults `json:"workspace"`
	Agent      AgentConfig       `json:"agent"`
	Scheduler  SchedulerConfig   `json:"scheduler"`
	Worker     WorkerConfig      `json:"worker"`
	Commands   CommandsConfig    `json:"commands"`
	Security   SecurityConfig    `json:"security"`
	Providers  ProvidersConfig   `json:"providers"`
	Store      StoreConfig       `json:"store,omitempty"`
	Telemetry  TelemetryConfig   `json:"telemetry,omitempty"`

	mu sync.RWMutex
}

// WorkspaceDefaults are applied to every newly registered workspace unless
// overridden in the registration payload.
type WorkspaceDefaults struct {
	Trigger      string `json:"trigger"`
	IsAdmin      bool   `json:"is_admin"`
	DefaultImage string `json:"default_image"`
}

// AgentConfig names the host-facing identity the workers speak for.
type AgentConfig struct {
	Name           string   `json:"name"`
	TriggerAliases []string `json:"trigger_aliases,omitempty"`
}

// SchedulerConfig tunes the cron/interval poll loop.
type SchedulerConfig struct {
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	TimezoneOverride    string `json:"timezone_override,omitempty"`
}

// PollInterval returns the configured poll interval as a duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	if s.PollIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// WorkerConfig bounds the worker session manager's resource usage.
type WorkerConfig struct {
	Image            string `json:"image"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	IdleTimeoutSeconds int   `json:"idle_timeout_seconds"`
	MaxConcurrent    int    `json:"max_concurrent"`
	MaxOutputBytes   int    `json:"max_output_bytes"`
}

// Timeout returns the configured hard worker timeout.
func (w WorkerConfig) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle-eviction timeout.
func (w WorkerConfig) IdleTimeout() time.Duration {
	if w.IdleTimeoutSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(w.IdleTimeoutSeconds) * time.Second
}

// CommandsConfig lists the magic-command word sets the router recognizes,
// in either order, as a verb+noun pair or a single alias.
type CommandsConfig struct {
	ResetContext FlexibleStringSlice `json:"reset_context"`
	EndSession   FlexibleStringSlice `json:"end_session"`
	Redeploy     FlexibleStringSlice `json:"redeploy"`
}

// SecurityConfig tunes the gate's auxiliary timers and retention.
type SecurityConfig struct {
	ApprovalTimeoutSeconds int `json:"approval_timeout_seconds"`
	AuditRetentionDays     int `json:"audit_retention_days"`
}

// ApprovalTimeout returns the configured approval wait timeout.
func (s SecurityConfig) ApprovalTimeout() time.Duration {
	if s.ApprovalTimeoutSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.ApprovalTimeoutSeconds) * time.Second
}

// AuditRetention returns the configured audit log retention window.
func (s SecurityConfig) AuditRetention() time.Duration {
	if s.AuditRetentionDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(s.AuditRetentionDays) * 24 * time.Hour
}

// ProvidersConfig configures the host's own (Cop-only) model client.
type ProvidersConfig struct {
	Anthropic AnthropicConfig `json:"anthropic,omitempty"`
}

// AnthropicConfig holds Cop's LLM client settings. APIKey is never read from
// the config file — env only.
type AnthropicConfig struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// StoreConfig points at the single-process SQLite state store.
type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// TelemetryConfig configures the OTel trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// Hash returns the config's content hash, used by the deploy continuation
// record to detect a config drift across a redeploy.
func (c *Config) Hash() string { return hashConfig(c) }
