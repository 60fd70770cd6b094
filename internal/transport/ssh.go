package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	rexerr "rexec/internal/errors"
	"rexec/internal/retry"
	"rexec/tunnel"
	"rexec/util"
)

// SSHDialer routes connections through an SSH jump host.  The SSH
// connection is made lazily on the first Dial call and torn down on
// Close.
type SSHDialer struct {
	tunnel    tunnel.Tunnel
	config    *tunnel.SSHConfig
	logger    *util.Logger
	mu        sync.Mutex
	connected bool
}

// NewSSHDialer creates a dialer that forwards connections through the
// jump host described by cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewJumpHost(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.tunnel.IsAlive() {
		return nil
	}

	d.logger.Verbose("opening SSH connection to %s@%s:%d",
		d.config.User, d.config.Host, d.config.Port)

	if err := d.tunnel.Connect(ctx); err != nil {
		err = fmt.Errorf("jump host: %w", err)
		// Bad keys, credentials or host keys fail the same way every time.
		var se *rexerr.SSHError
		if rexerr.As(err, &se) {
			return retry.Permanent(err)
		}
		return err
	}

	d.connected = true
	d.logger.Verbose("SSH connection established")
	return nil
}

// Dial connects to address from the jump host.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the SSH connection.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		d.connected = false
		return d.tunnel.Close()
	}
	return nil
}
