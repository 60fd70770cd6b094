// Package process runs a requested program and exposes its standard
// output as a lazy sequence of lines.
//
// A Process is an owned resource with an explicit lifecycle:
//
//	NotStarted → Running → {ExitedSuccess, ExitedFailure}
//	NotStarted → LaunchFailed
//
// Only standard output is captured; standard error is discarded.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	rexerr "rexec/internal/errors"
	"rexec/util"
)

// State is a point in the process lifecycle.
type State int

const (
	NotStarted State = iota
	Running
	ExitedSuccess
	ExitedFailure
	LaunchFailed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case ExitedSuccess:
		return "exited-success"
	case ExitedFailure:
		return "exited-failure"
	case LaunchFailed:
		return "launch-failed"
	default:
		return "unknown"
	}
}

// ErrConsumed is returned when the output of a process is read twice.
var ErrConsumed = errors.New("process output already consumed")

// Split tokenizes a command line on runs of whitespace.  There is no
// quoting: an argument cannot contain a space.
func Split(commandLine string) []string {
	return strings.Fields(commandLine)
}

// Process is one running (or finished) child.
type Process struct {
	argv   []string
	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu       sync.Mutex
	state    State
	exitCode int
	consumed bool
	waitErr  error
	waited   bool
}

// Start launches argv[0] with argv[1:] directly, without a shell.  The
// process is killed if ctx is cancelled.  Any failure to start is
// returned as a *errors.LaunchError and leaves no child behind.
func Start(ctx context.Context, argv []string) (*Process, error) {
	p := &Process{argv: argv, exitCode: -1}

	if len(argv) == 0 {
		p.state = LaunchFailed
		return p, rexerr.Launch(argv, errors.New("empty command"))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = nil  // /dev/null
	cmd.Stderr = nil // discarded

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.state = LaunchFailed
		return p, rexerr.Launch(argv, err)
	}
	if err := cmd.Start(); err != nil {
		p.state = LaunchFailed
		return p, rexerr.Launch(argv, err)
	}

	p.cmd = cmd
	p.stdout = stdout
	p.state = Running
	return p, nil
}

// Argv returns the program and its arguments.
func (p *Process) Argv() []string { return p.argv }

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitCode returns the exit status once the process has been reaped,
// or -1 before that (or when it was killed by a signal).
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Each calls fn for every line the process writes to standard output,
// in order, as soon as the line is complete.  It returns when output
// ends, when fn returns an error, or when reading fails.  Output can
// only be consumed once.
func (p *Process) Each(fn func(line string) error) error {
	p.mu.Lock()
	if p.state != Running && p.state != ExitedSuccess && p.state != ExitedFailure {
		p.mu.Unlock()
		return fmt.Errorf("read output: process is %s", p.state)
	}
	if p.consumed {
		p.mu.Unlock()
		return ErrConsumed
	}
	p.consumed = true
	p.mu.Unlock()

	r := bufio.NewReaderSize(p.stdout, util.DefaultBufSize)
	for {
		line, err := util.ReadLine(r)
		if err != nil {
			if util.IsHarmless(err) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read output: %w", err)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// Wait reaps the process after its output has ended and returns the
// terminal state.  A non-zero exit is reported through the state, not
// as an error; the error is only set when waiting itself failed.
func (p *Process) Wait() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitLocked()
}

// Close kills the process if it is still running and reaps it.  It is
// safe to call more than once and after Wait.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Running {
		return nil
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Kill() //nolint:errcheck
	}
	_, err := p.waitLocked()
	return err
}

func (p *Process) waitLocked() (State, error) {
	if p.waited || p.cmd == nil {
		return p.state, p.waitErr
	}
	p.waited = true

	err := p.cmd.Wait()
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.state = ExitedSuccess
	case errors.As(err, &exitErr):
		p.state = ExitedFailure
	default:
		p.state = ExitedFailure
		p.waitErr = fmt.Errorf("wait %s: %w", p.argv[0], err)
	}
	return p.state, p.waitErr
}
