package tunnel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rexec/config"
)

const sampleSSHConfig = `
Host bastion
  HostName 203.0.113.7
  User jump
  Port 2222
  IdentityFile /keys/bastion

Host plain
  HostName plain.example.com
`

func TestAliases_Apply(t *testing.T) {
	a, err := DecodeAliases(strings.NewReader(sampleSSHConfig))
	require.NoError(t, err)

	t.Run("fills unset fields", func(t *testing.T) {
		c := &SSHConfig{Host: "bastion", Port: config.DefaultSSHPort}
		a.Apply(c)
		assert.Equal(t, "203.0.113.7", c.Host)
		assert.Equal(t, "jump", c.User)
		assert.Equal(t, 2222, c.Port)
		assert.Equal(t, "/keys/bastion", c.KeyPath)
	})

	t.Run("command line wins", func(t *testing.T) {
		c := &SSHConfig{Host: "bastion", User: "admin", Port: 2200, KeyPath: "/mine"}
		a.Apply(c)
		assert.Equal(t, "203.0.113.7", c.Host)
		assert.Equal(t, "admin", c.User)
		assert.Equal(t, 2200, c.Port)
		assert.Equal(t, "/mine", c.KeyPath)
	})

	t.Run("partial entry", func(t *testing.T) {
		c := &SSHConfig{Host: "plain", Port: config.DefaultSSHPort}
		a.Apply(c)
		assert.Equal(t, "plain.example.com", c.Host)
		assert.Equal(t, config.DefaultSSHPort, c.Port)
		assert.Empty(t, c.User)
		assert.Empty(t, c.KeyPath)
	})

	t.Run("unknown host untouched", func(t *testing.T) {
		c := &SSHConfig{Host: "10.0.0.1", Port: config.DefaultSSHPort}
		a.Apply(c)
		assert.Equal(t, "10.0.0.1", c.Host)
		assert.Equal(t, config.DefaultSSHPort, c.Port)
	})
}

func TestAliases_NilIsNoop(t *testing.T) {
	var a *Aliases
	c := &SSHConfig{Host: "bastion"}
	a.Apply(c)
	assert.Equal(t, "bastion", c.Host)
}

func TestLoadAliases_MissingFile(t *testing.T) {
	a, err := LoadAliases(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)

	c := &SSHConfig{Host: "bastion"}
	a.Apply(c)
	assert.Equal(t, "bastion", c.Host)
}

func TestFromConfig_ResolvesAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(sampleSSHConfig), 0o600))

	cfg := config.New()
	cfg.TunnelHost = "bastion"
	cfg.TunnelPort = config.DefaultSSHPort
	cfg.SSHConfigPath = path

	c, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", c.Host)
	assert.Equal(t, 2222, c.Port)
	assert.Equal(t, "jump", c.User)
	assert.Equal(t, config.DefaultConnTimeout, c.ConnTimeout)
}

func TestFromConfig_DefaultsUser(t *testing.T) {
	cfg := config.New()
	cfg.TunnelHost = "10.0.0.1"
	cfg.TunnelPort = config.DefaultSSHPort
	cfg.SSHConfigPath = filepath.Join(t.TempDir(), "none")

	c, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, currentUser(), c.User)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_ed25519"), expandHome("~/.ssh/id_ed25519"))
	assert.Equal(t, "/abs/key", expandHome("/abs/key"))
	assert.Equal(t, "", expandHome(""))
}
