package util

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("alice\r\nsecret\necho hello"))

	for _, want := range []string{"alice", "secret", "echo hello"} {
		got, err := ReadLine(r)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLine_EmptyLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\n"))
	got, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestCopyLines(t *testing.T) {
	// Set up a TCP server that sends a few lines and closes.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, "one\ntwo\nthree") //nolint:errcheck
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	output := &bytes.Buffer{}
	n, err := CopyLines(ctx, output, conn)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "one\ntwo\nthree\n", output.String())
}

func TestCopyLines_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CopyLines(ctx, io.Discard, strings.NewReader("x\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsHarmless(t *testing.T) {
	if !IsHarmless(nil) {
		t.Error("nil should be harmless")
	}
	if !IsHarmless(io.EOF) {
		t.Error("io.EOF should be harmless")
	}
	if !IsHarmless(net.ErrClosed) {
		t.Error("net.ErrClosed should be harmless")
	}
	if IsHarmless(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT be harmless")
	}
}
