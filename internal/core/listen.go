package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"rexec/config"
	"rexec/internal/capability"
	rexerr "rexec/internal/errors"
	"rexec/internal/metrics"
	"rexec/internal/retry"
	"rexec/internal/session"
	"rexec/util"
)

// ListenMode accepts inbound connections and runs a capability on
// each one.  At most MaxSessions connections are served at a time; a
// slot is taken before Accept, so with MaxSessions=1 the next client
// is not accepted until the current session has closed.
type ListenMode struct {
	Address     string // ":port"
	MaxSessions int
	Timeout     time.Duration // per-session deadline; 0 = none
	Capability  capability.Capability
	Logger      *util.Logger
	Metrics     *metrics.Collector

	// MetricsAddr, when set, serves the collector over HTTP.
	MetricsAddr string

	// OnListen is called with the bound address before the first
	// Accept.
	OnListen func(net.Addr)
}

// acceptBackoff paces retries after temporary accept failures such as
// running out of file descriptors.
var acceptBackoff = &retry.Backoff{
	InitialDelay: 5 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2,
}

// Run binds the listening socket and serves connections until ctx is
// cancelled.  Failing to bind is returned; errors inside a session are
// logged and never stop the loop.  On shutdown, in-flight sessions are
// cancelled and awaited.
func (m *ListenMode) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.Address)
	if err != nil {
		return rexerr.Wrap("listen", m.Address, err)
	}
	defer ln.Close()

	m.Logger.Info("listening on %s", ln.Addr())
	if m.OnListen != nil {
		m.OnListen(ln.Addr())
	}

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		m.Logger.Verbose("metrics at shutdown:\n%s", m.Metrics.JSON())
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.MetricsAddr != "" {
		if err := m.serveMetrics(ctx, &wg); err != nil {
			return err
		}
	}

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slots := semaphore.NewWeighted(int64(max(m.MaxSessions, 1)))
	failures := 0
	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			slots.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			if rexerr.IsTemporary(err) {
				failures++
				m.Metrics.AcceptRetry()
				m.Logger.Warn("accept: %v (retrying)", err)
				if acceptBackoff.Wait(ctx, failures) != nil {
					return nil
				}
				continue
			}
			return rexerr.Wrap("accept", ln.Addr().String(), err)
		}
		failures = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer slots.Release(1)
			m.serveConn(ctx, conn)
		}()
	}
}

func (m *ListenMode) serveMetrics(ctx context.Context, wg *sync.WaitGroup) error {
	srv, err := metrics.Listen(m.MetricsAddr, m.Metrics)
	if err != nil {
		return err
	}
	m.Logger.Verbose("metrics on http://%s/metrics", srv.Addr())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, config.DefaultGracePeriod); err != nil {
			m.Logger.Error("metrics server: %v", err)
		}
	}()
	return nil
}

// serveConn runs one session to completion.  Nothing that happens here,
// including a panic, may escape into the accept loop.
func (m *ListenMode) serveConn(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, nil, m.Logger)
	sess.Metrics = m.Metrics
	defer sess.Close()

	m.Metrics.SessionOpened()
	defer m.Metrics.SessionClosed()

	sess.Logger.Info("connection from %s", util.RemoteHost(conn))

	defer func() {
		if r := recover(); r != nil {
			m.Metrics.RecordError(fmt.Sprint(r))
			sess.Logger.Error("session panicked: %v", r)
		}
	}()

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}
	release := sess.Bind(ctx)
	defer release()

	if err := m.Capability.Handle(ctx, sess); err != nil {
		m.Metrics.RecordError(err.Error())
		sess.Logger.Error("%v", err)
		return
	}
	sess.Logger.Verbose("session closed")
}
