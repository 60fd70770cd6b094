package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultPort is the rexec server port.
	DefaultPort = 4000

	// DefaultMaxSessions serves one client at a time.
	DefaultMaxSessions = 1

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds the SSH jump-host dial.
	DefaultConnTimeout = 30 * time.Second

	// DefaultRetryDelay is the first backoff step for client dial
	// retries and temporary accept errors.
	DefaultRetryDelay = 250 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff.
	DefaultMaxRetryDelay = 5 * time.Second

	// DefaultGracePeriod is how long shutdown waits for the metrics
	// endpoint to drain.
	DefaultGracePeriod = 5 * time.Second
)
