// Package metrics provides lightweight, lock-free counters and gauges
// for tracking what a rexec server has been doing.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a rexec server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	authFailures   atomic.Int64
	denials        atomic.Int64
	executions     atomic.Int64
	launchFailures atomic.Int64
	nonZeroExits   atomic.Int64
	linesSent      atomic.Int64
	bytesOut       atomic.Int64
	errorsTotal    atomic.Int64
	acceptRetries  atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of sessions currently being served.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Decision metrics ─────────────────────────────────────────────────

// AuthFailed records a rejected username/password pair.
func (c *Collector) AuthFailed() {
	if c == nil {
		return
	}
	c.authFailures.Add(1)
}

// Denied records an authenticated request outside the allow-list.
func (c *Collector) Denied() {
	if c == nil {
		return
	}
	c.denials.Add(1)
}

// Executed records a program that was started.
func (c *Collector) Executed() {
	if c == nil {
		return
	}
	c.executions.Add(1)
}

// LaunchFailed records a program that could not be started.
func (c *Collector) LaunchFailed() {
	if c == nil {
		return
	}
	c.launchFailures.Add(1)
}

// NonZeroExit records a program that finished with a failure status.
func (c *Collector) NonZeroExit() {
	if c == nil {
		return
	}
	c.nonZeroExits.Add(1)
}

// AuthFailures returns the number of rejected credentials.
func (c *Collector) AuthFailures() int64 {
	if c == nil {
		return 0
	}
	return c.authFailures.Load()
}

// Denials returns the number of allow-list rejections.
func (c *Collector) Denials() int64 {
	if c == nil {
		return 0
	}
	return c.denials.Load()
}

// Executions returns the number of programs started.
func (c *Collector) Executions() int64 {
	if c == nil {
		return 0
	}
	return c.executions.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// LineSent records one line of n bytes written to a client.
func (c *Collector) LineSent(n int64) {
	if c == nil {
		return
	}
	c.linesSent.Add(1)
	c.bytesOut.Add(n)
}

// TotalBytesOut returns total bytes sent to clients.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// TotalLinesOut returns total lines sent to clients.
func (c *Collector) TotalLinesOut() int64 {
	if c == nil {
		return 0
	}
	return c.linesSent.Load()
}

// AcceptRetry records a temporary accept failure that was retried.
func (c *Collector) AcceptRetry() {
	if c == nil {
		return
	}
	c.acceptRetries.Add(1)
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	AuthFailures     int64  `json:"auth_failures"`
	Denials          int64  `json:"denials"`
	Executions       int64  `json:"executions"`
	LaunchFailures   int64  `json:"launch_failures"`
	NonZeroExits     int64  `json:"non_zero_exits"`
	LinesOut         int64  `json:"lines_out"`
	BytesOut         int64  `json:"bytes_out"`
	AcceptRetries    int64  `json:"accept_retries"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		AuthFailures:   c.authFailures.Load(),
		Denials:        c.denials.Load(),
		Executions:     c.executions.Load(),
		LaunchFailures: c.launchFailures.Load(),
		NonZeroExits:   c.nonZeroExits.Load(),
		LinesOut:       c.linesSent.Load(),
		BytesOut:       c.bytesOut.Load(),
		AcceptRetries:  c.acceptRetries.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
