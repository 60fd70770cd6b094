// Package capability defines what happens over an established
// connection.  Each Capability encapsulates one side of the rexec
// exchange (serve a request, or submit one) and operates on a Session
// rather than a raw net.Conn, which keeps capabilities testable and
// decoupled from transport details.
package capability

import (
	"context"

	"rexec/internal/session"
)

// Capability handles a single connection according to a specific
// behaviour.  Implementations are Exec (server) and Submit (client).
type Capability interface {
	// Handle runs the capability against the given session.
	// It blocks until the exchange is done or the context is
	// cancelled.
	Handle(ctx context.Context, sess *session.Session) error
}
