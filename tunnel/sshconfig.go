package tunnel

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	sshconfig "github.com/kevinburke/ssh_config"

	"rexec/config"
)

// Aliases resolves jump-host names through an OpenSSH client config,
// so "-T bastion" can pick up HostName, User, Port and IdentityFile
// from ~/.ssh/config.
type Aliases struct {
	cfg *sshconfig.Config
}

// DecodeAliases parses an OpenSSH client config.
func DecodeAliases(r io.Reader) (*Aliases, error) {
	cfg, err := sshconfig.Decode(r)
	if err != nil {
		return nil, err
	}
	return &Aliases{cfg: cfg}, nil
}

// LoadAliases reads the config at path.  A missing file yields an empty
// set of aliases.
func LoadAliases(path string) (*Aliases, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Aliases{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := DecodeAliases(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Apply fills c from the entry matching c.Host.  Values given on the
// command line win, except that the default port 22 yields to a Port
// line, since an explicit ":22" cannot be told apart from no port.
func (a *Aliases) Apply(c *SSHConfig) {
	if a == nil || a.cfg == nil {
		return
	}
	alias := c.Host

	if c.User == "" {
		c.User = a.get(alias, "User")
	}
	if c.Port == 0 || c.Port == config.DefaultSSHPort {
		if p, err := strconv.Atoi(a.get(alias, "Port")); err == nil && p > 0 && p < 65536 {
			c.Port = p
		}
	}
	if c.KeyPath == "" {
		c.KeyPath = expandHome(a.get(alias, "IdentityFile"))
	}
	if h := a.get(alias, "HostName"); h != "" {
		c.Host = h
	}
}

func (a *Aliases) get(alias, key string) string {
	v, err := a.cfg.Get(alias, key)
	if err != nil {
		return ""
	}
	return v
}

// DefaultSSHConfigPath returns ~/.ssh/config, or "" when there is no
// home directory.
func DefaultSSHConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "config")
}

// ssh_config does not expand "~".
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
