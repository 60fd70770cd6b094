package capability

import (
	"context"

	"rexec/internal/session"
	"rexec/util"
)

// Submit is the client side: it sends the handshake and copies every
// line the server returns to the session's Stdout until the server
// closes the connection.
type Submit struct {
	Request session.Request
}

// Handle implements Capability.
func (s *Submit) Handle(ctx context.Context, sess *session.Session) error {
	if err := sess.WriteRequest(s.Request); err != nil {
		return err
	}
	n, err := util.CopyLines(ctx, sess.Stdout, sess.Reader())
	sess.Logger.Debug("received %d lines", n)
	return err
}
