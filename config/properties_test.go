package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rexerr "rexec/internal/errors"
)

func TestParseProperties(t *testing.T) {
	src := `# rexec users
! legacy comment
user.alice=secret
user.alice.prog=echo,ls
user.bob : pw
user.carol   hunter2

user.dave.prog = cat /var/log/,\
                 tail -f
user.eve=p\u00e4ss\tword
key\=with\:seps=v
`
	props, err := ParseProperties(strings.NewReader(src))
	require.NoError(t, err)

	want := Properties{
		"user.alice":      "secret",
		"user.alice.prog": "echo,ls",
		"user.bob":        "pw",
		"user.carol":      "hunter2",
		"user.dave.prog":  "cat /var/log/,tail -f",
		"user.eve":        "päss\tword",
		"key=with:seps":   "v",
	}
	assert.Equal(t, want, props)
}

func TestParseProperties_LaterKeyWins(t *testing.T) {
	props, err := ParseProperties(strings.NewReader("user.a=1\nuser.a=2\n"))
	require.NoError(t, err)

	v, ok := props["user.a"]
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestParseProperties_EmptyValue(t *testing.T) {
	props, err := ParseProperties(strings.NewReader("user.x.prog=\nuser.y\n"))
	require.NoError(t, err)

	v, ok := props["user.x.prog"]
	assert.True(t, ok)
	assert.Equal(t, "", v)

	v, ok = props["user.y"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestParseProperties_BadEscape(t *testing.T) {
	_, err := ParseProperties(strings.NewReader("a=1\nuser.z=\\u12\n"))
	require.Error(t, err)

	var le *rexerr.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Line)
}

func TestLoadProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.properties")
	require.NoError(t, os.WriteFile(path, []byte("user.alice=secret\n"), 0o600))

	props, err := LoadProperties(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", props["user.alice"])
}

func TestLoadProperties_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.properties")

	_, err := LoadProperties(path)
	require.Error(t, err)

	var le *rexerr.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
