package auth

// Outcome is how a session ended, as far as the client is concerned.
type Outcome int

const (
	// OutcomeAborted means the session ended before a decision was
	// sent: an incomplete handshake or an I/O error.
	OutcomeAborted Outcome = iota
	OutcomeUnauthenticated
	OutcomeNoPrograms
	OutcomeUnauthorized
	OutcomeLaunchFailed
	OutcomeExecuted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAborted:
		return "aborted"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeNoPrograms:
		return "no-programs"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeLaunchFailed:
		return "launch-failed"
	case OutcomeExecuted:
		return "executed"
	default:
		return "unknown"
	}
}
