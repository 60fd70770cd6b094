package util

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// ReadLine reads one line from r and strips the trailing "\n" or
// "\r\n".  A final line that ends at EOF without a newline is returned
// with a nil error; io.EOF is only returned when nothing was read.
// Lines have no length limit.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// WriteLine writes s followed by a single "\n".
func WriteLine(w io.Writer, s string) (int, error) {
	return io.WriteString(w, s+"\n")
}

// CopyLines forwards src to dst one line at a time until src reaches
// EOF or ctx is cancelled.  Each line is re-terminated with "\n" so an
// unterminated final line still prints cleanly.  It returns the number
// of lines written.
func CopyLines(ctx context.Context, dst io.Writer, src io.Reader) (int, error) {
	r := bufio.NewReaderSize(src, DefaultBufSize)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line, err := ReadLine(r)
		if err != nil {
			if IsHarmless(err) {
				return n, nil
			}
			return n, err
		}
		if _, err := WriteLine(dst, line); err != nil {
			return n, err
		}
		n++
	}
}

// IsHarmless returns true for errors that are expected during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
