// Package config defines the runtime configuration for rexec and
// provides helpers for parsing tunnel specifications, ports, and the
// credentials file.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	rexerr "rexec/internal/errors"
)

// Config holds every tuneable for a rexec server or client run.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Listen  bool
	Host    string // client: server address
	Port    int    // server: listen port; client: destination port
	NoDNS   bool
	Timeout time.Duration // per-session deadline (0 = none)

	// ── Server ───────────────────────────────────────────────────────
	CredentialsPath string
	MaxSessions     int    // concurrent sessions; 1 = strictly sequential
	MetricsAddr     string // optional operator HTTP endpoint
	ExitStatus      bool   // append an exit-status trailer line

	// ── Client request ───────────────────────────────────────────────
	User     string
	Password string
	Command  string // full command line, arguments joined by single spaces
	Retries  int    // extra dial attempts (0 = no retry)

	// ── SSH tunnel (client only) ─────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	SSHConfigPath  string // OpenSSH client config for -T aliases

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	DryRun  bool
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Port:        DefaultPort,
		MaxSessions: DefaultMaxSessions,
	}
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port number in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// JoinCommand rebuilds a command line from positional arguments the
// way the client sends it: single spaces, no quoting.
func JoinCommand(args []string) string {
	return strings.Join(args, " ")
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &rexerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the default rexec port is %d", DefaultPort),
		}
	}
	if c.Timeout < 0 {
		return &rexerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}

	if c.Listen {
		return c.validateServer()
	}
	return c.validateClient()
}

func (c *Config) validateServer() error {
	if c.CredentialsPath == "" {
		return &rexerr.ConfigError{
			Field:   "credentials",
			Message: "listen mode requires a credentials file",
			Hint:    "rexec -l [options] <credentials-file>",
		}
	}
	if c.MaxSessions < 1 {
		return &rexerr.ConfigError{
			Field:   "max-sessions",
			Value:   c.MaxSessions,
			Message: "must be at least 1",
			Hint:    "1 serves one client at a time",
		}
	}
	if c.TunnelEnabled {
		return &rexerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "SSH tunnels are only supported in client mode",
		}
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Host == "" {
		return &rexerr.ConfigError{
			Field:   "host",
			Message: "server address is required",
			Hint:    "rexec [options] <host> <user> <password> <program> [args...]",
		}
	}
	if c.User == "" {
		return &rexerr.ConfigError{Field: "user", Message: "username is required"}
	}
	if strings.TrimSpace(c.Command) == "" {
		return &rexerr.ConfigError{Field: "command", Message: "a program to run is required"}
	}
	// The handshake is line-delimited; embedded newlines would shift
	// every following field.
	for field, v := range map[string]string{"user": c.User, "password": c.Password, "command": c.Command} {
		if strings.ContainsAny(v, "\r\n") {
			return &rexerr.ConfigError{Field: field, Message: "must not contain line breaks"}
		}
	}
	if c.Retries < 0 {
		return &rexerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &rexerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	return nil
}
