package core

import (
	"fmt"
	"strings"

	"rexec/config"
	"rexec/internal/auth"
	"rexec/internal/capability"
	"rexec/internal/metrics"
	"rexec/internal/session"
	"rexec/internal/transport"
	"rexec/tunnel"
	"rexec/util"
)

// Build constructs the appropriate Mode from the given configuration.
// In listen mode the credentials file is read here, so a missing or
// malformed file fails before any socket is bound.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger)
	}
	return buildConnect(cfg, logger)
}

// Describe renders the plan for cfg without side effects.  It is what
// --dry-run prints.
func Describe(cfg *config.Config) string {
	var b strings.Builder
	if cfg.Listen {
		fmt.Fprintf(&b, "serve on :%d\n", cfg.Port)
		fmt.Fprintf(&b, "credentials: %s\n", cfg.CredentialsPath)
		fmt.Fprintf(&b, "max sessions: %d\n", cfg.MaxSessions)
		if cfg.Timeout > 0 {
			fmt.Fprintf(&b, "session timeout: %s\n", cfg.Timeout)
		}
		if cfg.MetricsAddr != "" {
			fmt.Fprintf(&b, "metrics: %s\n", cfg.MetricsAddr)
		}
		if cfg.ExitStatus {
			b.WriteString("exit status trailer: on\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "connect to %s\n", util.FormatAddr(cfg.Host, cfg.Port))
	if cfg.TunnelEnabled {
		jump := util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort)
		if cfg.TunnelUser != "" {
			jump = cfg.TunnelUser + "@" + jump
		}
		fmt.Fprintf(&b, "via SSH %s\n", jump)
	}
	fmt.Fprintf(&b, "user: %s\n", cfg.User)
	fmt.Fprintf(&b, "command: %s\n", cfg.Command)
	if cfg.Retries > 0 {
		fmt.Fprintf(&b, "retries: %d\n", cfg.Retries)
	}
	if cfg.Timeout > 0 {
		fmt.Fprintf(&b, "timeout: %s\n", cfg.Timeout)
	}
	return b.String()
}

// ── mode builders ────────────────────────────────────────────────────

func buildListen(cfg *config.Config, logger *util.Logger) (Mode, error) {
	dir, err := auth.Load(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	logger.Verbose("loaded %d users from %s", len(dir.Users()), cfg.CredentialsPath)

	collector := metrics.New()
	return &ListenMode{
		Address:     fmt.Sprintf(":%d", cfg.Port),
		MaxSessions: cfg.MaxSessions,
		Timeout:     cfg.Timeout,
		Capability: &capability.Exec{
			Directory:  dir,
			ExitStatus: cfg.ExitStatus,
			Metrics:    collector,
		},
		Logger:      logger,
		Metrics:     collector,
		MetricsAddr: cfg.MetricsAddr,
	}, nil
}

func buildConnect(cfg *config.Config, logger *util.Logger) (Mode, error) {
	address, err := util.ResolveAddr(cfg.Host, cfg.Port, cfg.NoDNS)
	if err != nil {
		return nil, err
	}

	dialer, err := buildDialer(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &ConnectMode{
		Dialer: dialer,
		Capability: &capability.Submit{Request: session.Request{
			User:     cfg.User,
			Password: cfg.Password,
			Command:  cfg.Command,
		}},
		Address: address,
		Retries: cfg.Retries,
		Timeout: cfg.Timeout,
		Logger:  logger,
	}, nil
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) (transport.Dialer, error) {
	if cfg.TunnelEnabled {
		sshCfg, err := tunnel.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return transport.NewSSHDialer(sshCfg, logger), nil
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}, nil
}
