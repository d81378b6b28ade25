package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults for a single-tenant host.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceDefaults{
			Trigger:      "@agent",
			DefaultImage: "agenthost-worker:latest",
		},
		Agent: AgentConfig{
			Name: "agent",
		},
		Scheduler: SchedulerConfig{
			PollIntervalSeconds: 60,
		},
		Worker: WorkerConfig{
			Image:              "agenthost-worker:latest",
			TimeoutSeconds:     600,
			IdleTimeoutSeconds: 900,
			MaxConcurrent:      4,
			MaxOutputBytes:     1 << 20,
		},
		Commands: CommandsConfig{
			ResetContext: []string{"reset", "context"},
			EndSession:   []string{"end", "session"},
			Redeploy:     []string{"redeploy"},
		},
		Security: SecurityConfig{
			ApprovalTimeoutSeconds: 86400,
			AuditRetentionDays:     90,
		},
		Store: StoreConfig{
			Path: "~/.agenthost/state.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: defaults plus env overrides are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays environment variables onto the config. Env vars
// always take precedence over file values, and secrets are never read from
// the file at all.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("AGENTHOST_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("AGENTHOST_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.BaseURL)
	envStr("AGENTHOST_ANTHROPIC_MODEL", &c.Providers.Anthropic.Model)

	envStr("AGENTHOST_STORE_PATH", &c.Store.Path)
	envStr("AGENTHOST_WORKER_IMAGE", &c.Worker.Image)

	if v := os.Getenv("AGENTHOST_SCHEDULER_POLL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Scheduler.PollIntervalSeconds = secs
		}
	}
	if v := os.Getenv("AGENTHOST_WORKER_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Worker.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("AGENTHOST_WORKER_IDLE_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Worker.IdleTimeoutSeconds = secs
		}
	}
	if v := os.Getenv("AGENTHOST_WORKER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.MaxConcurrent = n
		}
	}
	if v := os.Getenv("AGENTHOST_AUDIT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Security.AuditRetentionDays = n
		}
	}

	envStr("AGENTHOST_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTHOST_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENTHOST_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTHOST_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file with restrictive permissions.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func hashConfig(c *Config) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
