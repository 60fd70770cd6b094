package capability

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rexec/config"
	"rexec/internal/auth"
	"rexec/internal/metrics"
	"rexec/internal/session"
	"rexec/util"
)

func testDirectory() *auth.Directory {
	return auth.NewDirectory(config.Properties{
		"user.alice":      "secret",
		"user.alice.prog": "echo,false,seq,/definitely/not,touch",
		"user.bob":        "hunter2",
		"user.carol":      "pw",
		"user.carol.prog": "ls",
	})
}

type result struct {
	outcome auth.Outcome
	err     error
}

// exchange runs e against one loopback connection.  input is sent as
// the client's entire side of the conversation; the returned string is
// everything the server wrote back before closing.
func exchange(t *testing.T, e *Exec, input string) (auth.Outcome, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- result{err: err}
			return
		}
		sess := session.New(conn, nil, util.NewLogger(0))
		defer sess.Close()
		o, err := e.Serve(ctx, sess)
		done <- result{o, err}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, input)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	out, err := io.ReadAll(conn)
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)
	return r.outcome, string(out)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
}

func TestExec_AuthorizedRun(t *testing.T) {
	skipOnWindows(t)

	m := metrics.New()
	e := &Exec{Directory: testDirectory(), Metrics: m}

	outcome, out := exchange(t, e, "alice\nsecret\necho hello\n")
	assert.Equal(t, auth.OutcomeExecuted, outcome)
	assert.Equal(t,
		"alice, we are about to attempt running your program.\n"+
			"Here is the program output:\n"+
			"hello\n",
		out)
	assert.Equal(t, int64(1), m.Executions())
}

func TestExec_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		outcome auth.Outcome
		want    string
	}{
		{
			name:    "wrong password",
			input:   "alice\nwrong\necho hello\n",
			outcome: auth.OutcomeUnauthenticated,
			want:    "Incorrect credentials please try again\n",
		},
		{
			name:    "unknown user",
			input:   "mallory\nsecret\necho hello\n",
			outcome: auth.OutcomeUnauthenticated,
			want:    "Incorrect credentials please try again\n",
		},
		{
			name:    "no programs",
			input:   "bob\nhunter2\nls\n",
			outcome: auth.OutcomeNoPrograms,
			want:    "bob, you do not have access to any programs\n",
		},
		{
			name:    "not in allow-list",
			input:   "carol\npw\ncat /etc/passwd\n",
			outcome: auth.OutcomeUnauthorized,
			want:    "carol, you do not have permission to run cat /etc/passwd\n",
		},
		{
			name:    "prefix is case-sensitive",
			input:   "carol\npw\nLS\n",
			outcome: auth.OutcomeUnauthorized,
			want:    "carol, you do not have permission to run LS\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Exec{Directory: testDirectory()}
			outcome, out := exchange(t, e, tt.input)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExec_RejectedRequestsSpawnNothing(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	e := &Exec{Directory: testDirectory()}

	for _, input := range []string{
		"alice\nwrong\ntouch " + marker + "\n",
		"carol\npw\ntouch " + marker + "\n",
		"bob\nhunter2\ntouch " + marker + "\n",
	} {
		exchange(t, e, input)
	}
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "no program may run for a rejected request")

	exchange(t, e, "alice\nsecret\ntouch "+marker+"\n")
	_, err = os.Stat(marker)
	assert.NoError(t, err)
}

func TestExec_ShortHandshakeWritesNothing(t *testing.T) {
	for _, input := range []string{"", "alice\n", "alice\nsecret\n"} {
		e := &Exec{Directory: testDirectory()}
		outcome, out := exchange(t, e, input)
		assert.Equal(t, auth.OutcomeAborted, outcome)
		assert.Empty(t, out)
	}
}

func TestExec_Idempotent(t *testing.T) {
	skipOnWindows(t)

	e := &Exec{Directory: testDirectory()}
	_, first := exchange(t, e, "alice\nsecret\necho same\n")
	_, second := exchange(t, e, "alice\nsecret\necho same\n")
	assert.Equal(t, first, second)
}

func TestExec_CRLFHandshake(t *testing.T) {
	skipOnWindows(t)

	e := &Exec{Directory: testDirectory()}
	outcome, out := exchange(t, e, "alice\r\nsecret\r\necho hi\r\n")
	assert.Equal(t, auth.OutcomeExecuted, outcome)
	assert.True(t, strings.HasSuffix(out, "Here is the program output:\nhi\n"), out)
}

func TestExec_LaunchFailure(t *testing.T) {
	m := metrics.New()
	e := &Exec{Directory: testDirectory(), Metrics: m}

	outcome, out := exchange(t, e, "alice\nsecret\n/definitely/not/here\n")
	assert.Equal(t, auth.OutcomeLaunchFailed, outcome)
	assert.Equal(t,
		"alice, we are about to attempt running your program.\n"+
			"alice, your program could not be started\n",
		out)
	assert.Equal(t, int64(0), m.Executions())
	assert.Equal(t, int64(1), m.Snapshot().LaunchFailures)
}

func TestExec_ExitStatusTrailer(t *testing.T) {
	skipOnWindows(t)

	t.Run("off by default", func(t *testing.T) {
		e := &Exec{Directory: testDirectory()}
		_, out := exchange(t, e, "alice\nsecret\nfalse\n")
		assert.Equal(t,
			"alice, we are about to attempt running your program.\n"+
				"Here is the program output:\n",
			out)
	})

	t.Run("enabled", func(t *testing.T) {
		m := metrics.New()
		e := &Exec{Directory: testDirectory(), ExitStatus: true, Metrics: m}
		_, out := exchange(t, e, "alice\nsecret\nfalse\n")
		assert.True(t, strings.HasSuffix(out, "alice, your program exited with status 1\n"), out)
		assert.Equal(t, int64(1), m.Snapshot().NonZeroExits)
	})
}

func TestExec_StreamsLargeOutput(t *testing.T) {
	skipOnWindows(t)

	e := &Exec{Directory: testDirectory()}
	_, out := exchange(t, e, "alice\nsecret\nseq 1 5000\n")

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2+5000)
	assert.Equal(t, "1", lines[2])
	assert.Equal(t, "5000", lines[len(lines)-1])
}

func TestSubmit_PrintsServerLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		var lines []string
		for i := 0; i < 3; i++ {
			line, _ := util.ReadLine(r)
			lines = append(lines, line)
		}
		got <- lines
		io.WriteString(conn, "first\nsecond\nunterminated") //nolint:errcheck
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	sess := session.New(conn, out, util.NewLogger(0))
	defer sess.Close()

	s := &Submit{Request: session.Request{User: "alice", Password: "secret", Command: "echo hello"}}
	require.NoError(t, s.Handle(context.Background(), sess))

	assert.Equal(t, []string{"alice", "secret", "echo hello"}, <-got)
	assert.Equal(t, "first\nsecond\nunterminated\n", out.String())
}
