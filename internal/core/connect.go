package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"rexec/internal/capability"
	rexerr "rexec/internal/errors"
	"rexec/internal/retry"
	"rexec/internal/session"
	"rexec/internal/transport"
	"rexec/util"
)

// ConnectMode dials a rexec server and runs a capability on the
// resulting connection.
type ConnectMode struct {
	Dialer     transport.Dialer
	Capability capability.Capability
	Address    string
	Retries    int           // extra dial attempts; 0 = fail on the first error
	Timeout    time.Duration // whole-exchange deadline; 0 = none
	Logger     *util.Logger

	// Stdout defaults to os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdout io.Writer
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the server, creates a session, and hands it to the
// capability.  The transport is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}

	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	sess := session.New(conn, m.stdout(), m.Logger)
	defer sess.Close()
	release := sess.Bind(ctx)
	defer release()

	err = m.Capability.Handle(ctx, sess)
	if err != nil && timedOut(ctx, err) {
		return fmt.Errorf("%s: %w", m.Address, rexerr.ErrTimeout)
	}
	return err
}

// The connection deadline can fire just before the context timer, so a
// deadline error counts unless the context was cancelled outright.
func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	return errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

func (m *ConnectMode) dial(ctx context.Context) (net.Conn, error) {
	b := retry.DefaultBackoff()
	b.MaxAttempts = m.Retries + 1
	b.Retryable = func(err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return rexerr.IsRetryable(err)
	}
	b.OnRetry = func(attempt int, wait time.Duration, err error) {
		m.Logger.Warn("attempt %d: %v (retrying in %s)", attempt, err, wait)
	}

	var conn net.Conn
	err := b.Do(ctx, func(attempt int) error {
		m.Logger.Verbose("connecting to %s (attempt %d)", m.Address, attempt)
		c, err := m.Dialer.Dial(ctx, "tcp", m.Address)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}
