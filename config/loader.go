package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the REXEC_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("REXEC_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("REXEC_PORT"); v > 0 {
		cfg.Port = v
	}
	if envBool("REXEC_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := envInt("REXEC_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}

	// Server
	if v := os.Getenv("REXEC_CREDENTIALS"); v != "" {
		cfg.CredentialsPath = v
	}
	if v := envInt("REXEC_MAX_SESSIONS"); v > 0 {
		cfg.MaxSessions = v
	}
	if v := os.Getenv("REXEC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if envBool("REXEC_EXIT_STATUS") {
		cfg.ExitStatus = true
	}

	// Client
	if v := os.Getenv("REXEC_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := envInt("REXEC_RETRIES"); v > 0 {
		cfg.Retries = v
	}

	// SSH tunnel
	if v := os.Getenv("REXEC_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("REXEC_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("REXEC_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("REXEC_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("REXEC_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("REXEC_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := os.Getenv("REXEC_SSH_CONFIG"); v != "" {
		cfg.SSHConfigPath = v
	}

	// Output
	if v := envInt("REXEC_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
