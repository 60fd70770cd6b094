// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"rexec/config"
	"rexec/internal/core"
	"rexec/tunnel"
	"rexec/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X rexec/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Overridable in tests.
var (
	stdout       io.Writer       = os.Stdout             //nolint:gochecknoglobals
	stderr       io.Writer       = os.Stderr             //nolint:gochecknoglobals
	readPassword tunnel.Prompter = tunnel.TerminalPrompt //nolint:gochecknoglobals
)

// Execute parses args and runs the server or the client.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("rexec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false) // everything after <program> belongs to it

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Serve requests (server mode)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on or connect to")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")

	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Session deadline in seconds (0 = none)")

	// ── server ───────────────────────────────────────────────────
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Clients served at once")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve /metrics and /healthz on this address")
	fs.BoolVar(&cfg.ExitStatus, "exit-status", cfg.ExitStatus, "Send the program's exit status after its output")

	// ── client ───────────────────────────────────────────────────
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra connection attempts")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Connect via SSH jump host [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.StringVar(&cfg.SSHConfigPath, "ssh-config", cfg.SSHConfigPath, "OpenSSH client config for -T aliases")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and print the plan, then exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "rexec %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutSec) * time.Second

	// ── positional arguments ─────────────────────────────────────
	prompt, err := parsePositional(cfg, fs.Args())
	if err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		fmt.Fprint(stdout, core.Describe(cfg))
		return nil
	}

	if prompt {
		pw, err := readPassword(fmt.Sprintf("%s's password: ", cfg.User))
		if err != nil {
			return err
		}
		cfg.Password = pw
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(logLevel(cfg))
	defer logger.Sync() //nolint:errcheck

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if cm, ok := mode.(*core.ConnectMode); ok {
		cm.Stdout = stdout
	}
	return mode.Run(ctx)
}

// logLevel picks the logger verbosity.  The server reports connections
// and requests by default; the client stays quiet so only the remote
// program's output reaches stdout.
func logLevel(cfg *config.Config) int {
	if cfg.Listen {
		return cfg.Verbose + 1
	}
	return cfg.Verbose
}

// ── helpers ──────────────────────────────────────────────────────────

// passwordFromTerminal marks a client password to be read interactively.
const passwordFromTerminal = "-"

// parsePositional fills cfg from the arguments left after the flags.
// It reports whether the client password still has to be prompted for.
func parsePositional(cfg *config.Config, remaining []string) (bool, error) {
	if cfg.Listen {
		switch len(remaining) {
		case 0:
			// REXEC_CREDENTIALS may have supplied it; Validate decides.
		case 1:
			cfg.CredentialsPath = remaining[0]
		default:
			return false, fmt.Errorf("too many arguments for listen mode (use --help for usage)")
		}
		return false, nil
	}

	// Client: host user password program [args…]
	if len(remaining) < 4 {
		return false, fmt.Errorf("expected <host> <user> <password> <program> [args...] (use --help for usage)")
	}
	cfg.Host = remaining[0]
	cfg.User = remaining[1]
	cfg.Command = config.JoinCommand(remaining[3:])

	if pw := remaining[2]; pw != passwordFromTerminal {
		cfg.Password = pw
		return false, nil
	}
	// "-" uses REXEC_PASSWORD when set, the terminal otherwise.
	return cfg.Password == "", nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `rexec – remote program execution v%s

Runs an allow-listed program on a remote host and prints its output.

Usage:
  rexec -l [options] <credentials-file>                    Serve
  rexec [options] <host> <user> <password|-> <program> [args...]   Run

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  rexec -l users.properties                   Serve on port %d
  rexec -l -p 5000 --max-sessions 4 users.properties
  rexec server.example.com alice - ls -l /tmp Prompt for the password
  rexec -T admin@bastion 10.0.0.5 alice - df  Through an SSH jump host

Credentials file:
  user.alice=secret
  user.alice.prog=ls,df,echo
`, config.DefaultPort)
}
