package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rexerr "rexec/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── ParsePort ────────────────────────────────────────────────────────

func TestParsePort(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"4000", 4000, false},
		{"1", 1, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"70000", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePort(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestJoinCommand(t *testing.T) {
	assert.Equal(t, "ls -l /tmp", JoinCommand([]string{"ls", "-l", "/tmp"}))
	assert.Equal(t, "echo", JoinCommand([]string{"echo"}))
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 1, cfg.MaxSessions)
	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.Retries)
}

// ── Validate ─────────────────────────────────────────────────────────

func validClient() *Config {
	cfg := New()
	cfg.Host = "127.0.0.1"
	cfg.User = "alice"
	cfg.Password = "secret"
	cfg.Command = "echo hello"
	return cfg
}

func validServer() *Config {
	cfg := New()
	cfg.Listen = true
	cfg.CredentialsPath = "users.properties"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validClient().Validate())
	require.NoError(t, validServer().Validate())
}

func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func() *Config
		field   string
		wantSub string
	}{
		{"server without credentials", func() *Config {
			c := validServer()
			c.CredentialsPath = ""
			return c
		}, "credentials", "hint:"},
		{"server with zero sessions", func() *Config {
			c := validServer()
			c.MaxSessions = 0
			return c
		}, "max-sessions", "at least 1"},
		{"server through tunnel", func() *Config {
			c := validServer()
			c.TunnelEnabled = true
			c.TunnelHost = "gw"
			return c
		}, "tunnel", "client mode"},
		{"bad port", func() *Config {
			c := validClient()
			c.Port = 70000
			return c
		}, "port", "hint:"},
		{"negative timeout", func() *Config {
			c := validClient()
			c.Timeout = -time.Second
			return c
		}, "timeout", "negative"},
		{"client without host", func() *Config {
			c := validClient()
			c.Host = ""
			return c
		}, "host", "hint:"},
		{"client without user", func() *Config {
			c := validClient()
			c.User = ""
			return c
		}, "user", "required"},
		{"blank command", func() *Config {
			c := validClient()
			c.Command = "   "
			return c
		}, "command", "required"},
		{"newline in password", func() *Config {
			c := validClient()
			c.Password = "a\nb"
			return c
		}, "password", "line breaks"},
		{"negative retries", func() *Config {
			c := validClient()
			c.Retries = -1
			return c
		}, "retries", "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate().Validate()
			require.Error(t, err)

			var ce *rexerr.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}
