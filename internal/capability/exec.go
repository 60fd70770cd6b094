package capability

import (
	"context"
	"errors"
	"fmt"

	"rexec/internal/auth"
	rexerr "rexec/internal/errors"
	"rexec/internal/metrics"
	"rexec/internal/process"
	"rexec/internal/session"
)

// Response lines written to the client.
const (
	msgBadCredentials = "Incorrect credentials please try again"
	msgNoPrograms     = "%s, you do not have access to any programs"
	msgNotPermitted   = "%s, you do not have permission to run %s"
	msgAboutToRun     = "%s, we are about to attempt running your program."
	msgOutputHeader   = "Here is the program output:"
	msgLaunchFailed   = "%s, your program could not be started"
	msgExitStatus     = "%s, your program exited with status %d"
)

// Exec serves one rexec request: it reads the handshake, checks the
// credentials and the command allow-list, and streams the program's
// standard output back line by line.
type Exec struct {
	Directory auth.Lookup

	// ExitStatus appends a trailer line with the program's exit code.
	ExitStatus bool

	Metrics *metrics.Collector
}

// Handle implements Capability.
func (e *Exec) Handle(ctx context.Context, sess *session.Session) error {
	_, err := e.Serve(ctx, sess)
	return err
}

// Serve runs the exchange and reports how it ended.  Rejections are
// outcomes, not errors; the error is non-nil only when I/O failed or
// the program could not be reaped.
func (e *Exec) Serve(ctx context.Context, sess *session.Session) (auth.Outcome, error) {
	req, err := sess.ReadRequest()
	if err != nil {
		if errors.Is(err, rexerr.ErrHandshake) {
			sess.Logger.Verbose("client left before completing the handshake")
			return auth.OutcomeAborted, nil
		}
		return auth.OutcomeAborted, err
	}

	if err := auth.Authenticate(e.Directory, req.User, req.Password); err != nil {
		e.Metrics.AuthFailed()
		sess.Logger.Warn("rejected credentials for %q", req.User)
		return auth.OutcomeUnauthenticated, sess.WriteLine(msgBadCredentials)
	}

	switch err := auth.Authorize(e.Directory, req.User, req.Command); {
	case errors.Is(err, rexerr.ErrNoPrograms):
		e.Metrics.Denied()
		sess.Logger.Warn("%s has no programs", req.User)
		return auth.OutcomeNoPrograms, sess.WriteLine(fmt.Sprintf(msgNoPrograms, req.User))
	case errors.Is(err, rexerr.ErrUnauthorized):
		e.Metrics.Denied()
		sess.Logger.Warn("%s may not run %q", req.User, req.Command)
		return auth.OutcomeUnauthorized, sess.WriteLine(fmt.Sprintf(msgNotPermitted, req.User, req.Command))
	}

	sess.Logger.Info("%s is attempting to run %s", req.User, req.Command)
	if err := sess.WriteLine(fmt.Sprintf(msgAboutToRun, req.User)); err != nil {
		return auth.OutcomeAborted, err
	}

	proc, err := process.Start(ctx, process.Split(req.Command))
	if err != nil {
		e.Metrics.LaunchFailed()
		sess.Logger.Warn("%v", err)
		return auth.OutcomeLaunchFailed, sess.WriteLine(fmt.Sprintf(msgLaunchFailed, req.User))
	}
	defer proc.Close()
	e.Metrics.Executed()

	if err := sess.WriteLine(msgOutputHeader); err != nil {
		return auth.OutcomeExecuted, err
	}
	if err := proc.Each(sess.WriteLine); err != nil {
		return auth.OutcomeExecuted, err
	}

	state, err := proc.Wait()
	if err != nil {
		return auth.OutcomeExecuted, err
	}
	sess.Logger.Verbose("%s finished: %s (status %d)", proc.Argv()[0], state, proc.ExitCode())
	if state == process.ExitedFailure {
		e.Metrics.NonZeroExit()
	}
	if e.ExitStatus {
		return auth.OutcomeExecuted, sess.WriteLine(fmt.Sprintf(msgExitStatus, req.User, proc.ExitCode()))
	}
	return auth.OutcomeExecuted, nil
}
