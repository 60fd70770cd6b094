package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"rexec/config"
	rexerr "rexec/internal/errors"
	"rexec/util"
)

// SSHConfig holds everything needed to log in to a jump host.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt reads key passphrases and the SSH password.  Defaults to
	// TerminalPrompt.
	Prompt Prompter
}

func (c *SSHConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *SSHConfig) prompter() Prompter {
	if c.Prompt != nil {
		return c.Prompt
	}
	return TerminalPrompt
}

// FromConfig builds the jump-host settings from the CLI configuration,
// resolving the host through the OpenSSH client config when it names
// an alias.
func FromConfig(cfg *config.Config) (*SSHConfig, error) {
	c := &SSHConfig{
		User:          cfg.TunnelUser,
		Host:          cfg.TunnelHost,
		Port:          cfg.TunnelPort,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   config.DefaultConnTimeout,
	}

	path := cfg.SSHConfigPath
	if path == "" {
		path = DefaultSSHConfigPath()
	}
	if path != "" {
		aliases, err := LoadAliases(path)
		if err != nil {
			return nil, fmt.Errorf("ssh config: %w", err)
		}
		aliases.Apply(c)
	}
	if c.User == "" {
		c.User = currentUser()
	}
	return c, nil
}

// JumpHost implements [Tunnel] by opening an SSH connection and
// forwarding traffic with ssh.Client.Dial.
type JumpHost struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewJumpHost creates a tunnel that is ready to [JumpHost.Connect].
func NewJumpHost(cfg *SSHConfig, logger *util.Logger) *JumpHost {
	if cfg.Port == 0 {
		cfg.Port = config.DefaultSSHPort
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = config.DefaultConnTimeout
	}
	return &JumpHost{config: cfg, logger: logger}
}

// Connect dials the jump host and completes the SSH handshake.
func (j *JumpHost) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(j.config)
	if err != nil {
		return rexerr.WrapSSH("auth", j.config.Host, j.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(j.config)
	if err != nil {
		return rexerr.WrapSSH("hostkey", j.config.Host, j.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            j.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         j.config.ConnTimeout,
	}

	addr := j.config.addr()
	j.logger.Debug("SSH: dialing %s as %s", addr, j.config.User)

	dialer := net.Dialer{Timeout: j.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return rexerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return rexerr.WrapSSH("handshake", j.config.Host, j.config.Port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	j.mu.Lock()
	j.client = client
	j.alive = true
	j.mu.Unlock()

	go j.monitor(client)
	return nil
}

// Dial opens a direct-tcpip channel to address from the jump host.
// Name resolution of address happens on the jump host.
func (j *JumpHost) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	j.mu.RLock()
	client, alive := j.client, j.alive
	j.mu.RUnlock()

	if !alive || client == nil {
		return nil, rexerr.ErrNotConnected
	}

	j.logger.Debug("tunnel: dialing %s %s", network, address)

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := client.Dial(network, address)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("tunnel dial %s: %w", address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the SSH connection.
func (j *JumpHost) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.alive = false
	if j.client != nil {
		err := j.client.Close()
		j.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the SSH connection is still up.
func (j *JumpHost) IsAlive() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (j *JumpHost) monitor(client *ssh.Client) {
	err := client.Wait()

	j.mu.Lock()
	j.alive = false
	j.mu.Unlock()

	if err != nil {
		j.logger.Debug("SSH connection closed: %v", err)
	} else {
		j.logger.Debug("SSH connection closed")
	}
}
