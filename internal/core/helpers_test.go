package core

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rexec/config"
	"rexec/internal/auth"
	"rexec/internal/capability"
	"rexec/internal/metrics"
	"rexec/util"
)

const testCredentials = `# rexec users
user.alice=secret
user.alice.prog=echo,sleep,seq
user.bob=hunter2
user.carol=pw
user.carol.prog=ls
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
}

func writeCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.properties")
	require.NoError(t, os.WriteFile(path, []byte(testCredentials), 0o600))
	return path
}

func testServer(maxSessions int) *ListenMode {
	props, err := config.ParseProperties(strings.NewReader(testCredentials))
	if err != nil {
		panic(err)
	}
	collector := metrics.New()
	return &ListenMode{
		MaxSessions: maxSessions,
		Capability:  &capability.Exec{Directory: auth.NewDirectory(props), Metrics: collector},
		Logger:      util.NewLogger(0),
		Metrics:     collector,
	}
}

// startServer runs m on a loopback port and returns its address and a
// func that cancels it and returns Run's result.
func startServer(t *testing.T, m *ListenMode) (string, func() error) {
	t.Helper()

	ready := make(chan net.Addr, 1)
	m.Address = "127.0.0.1:0"
	m.OnListen = func(a net.Addr) { ready <- a }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-errc:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening")
	}

	stop := func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down in time")
			return nil
		}
	}
	return addr.String(), stop
}

// request sends input as a whole client conversation and returns the
// server's reply.
func request(t *testing.T, addr, input string) string {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	_, err = io.WriteString(conn, input)
	require.NoError(t, err)

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}
