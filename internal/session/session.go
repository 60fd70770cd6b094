// Package session represents a single connection lifecycle: the
// connection itself, a buffered reader over it, the line-oriented
// handshake, and a logger tagged with the session ID.
//
// Capabilities operate on sessions rather than raw connections, so
// the server-side handler and the client-side request share one
// definition of the wire format.
package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	rexerr "rexec/internal/errors"
	"rexec/internal/metrics"
	"rexec/util"
)

// Request is the three-line handshake that opens every session.
type Request struct {
	User     string
	Password string
	Command  string // full command line, space-delimited
}

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID      string
	Conn    net.Conn
	Stdout  io.Writer // local output; used by the client
	Logger  *util.Logger
	Metrics *metrics.Collector

	reader    *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

// New creates a Session bound to conn.  The logger is tagged with a
// fresh session ID and the peer address.
func New(conn net.Conn, stdout io.Writer, logger *util.Logger) *Session {
	id := uuid.NewString()
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Session{
		ID:     id,
		Conn:   conn,
		Stdout: stdout,
		Logger: logger.With("session", id[:8], "remote", conn.RemoteAddr().String()),
		reader: bufio.NewReaderSize(conn, util.DefaultBufSize),
	}
}

// Reader returns the buffered reader over the connection.  All reads
// must go through it so buffered bytes are not lost.
func (s *Session) Reader() *bufio.Reader { return s.reader }

// ReadRequest reads the username, password, and command-line lines.
// If the peer closes before all three arrive it returns
// errors.ErrHandshake; other read failures come back as a
// *errors.NetworkError.
func (s *Session) ReadRequest() (Request, error) {
	var fields [3]string
	for i := range fields {
		line, err := util.ReadLine(s.reader)
		if err != nil {
			if util.IsHarmless(err) {
				return Request{}, rexerr.ErrHandshake
			}
			return Request{}, rexerr.Wrap("read", s.remote(), err)
		}
		fields[i] = line
	}
	return Request{User: fields[0], Password: fields[1], Command: fields[2]}, nil
}

// WriteRequest sends the handshake for req.
func (s *Session) WriteRequest(req Request) error {
	for _, line := range []string{req.User, req.Password, req.Command} {
		if _, err := util.WriteLine(s.Conn, line); err != nil {
			return rexerr.Wrap("write", s.remote(), err)
		}
	}
	return nil
}

// WriteLine sends one newline-terminated line to the peer.
func (s *Session) WriteLine(line string) error {
	n, err := util.WriteLine(s.Conn, line)
	if err != nil {
		return rexerr.Wrap("write", s.remote(), err)
	}
	s.Metrics.LineSent(int64(n))
	return nil
}

// Bind applies ctx to the connection: a context deadline becomes the
// connection deadline, and cancellation unblocks any pending I/O.  The
// returned func releases the watcher and must be called.
func (s *Session) Bind(ctx context.Context) (release func()) {
	if dl, ok := ctx.Deadline(); ok {
		s.Conn.SetDeadline(dl) //nolint:errcheck
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Unblock reads and writes immediately.
			s.Conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// Close closes the connection once.  Later calls return the first
// result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

func (s *Session) remote() string {
	return s.Conn.RemoteAddr().String()
}
