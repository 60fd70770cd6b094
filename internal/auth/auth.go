// Package auth holds the credential directory and the two decisions the
// server makes about every request: is the user who they claim to be,
// and may they run this command.
package auth

import (
	"crypto/subtle"
	"sort"
	"strings"

	"rexec/config"
	rexerr "rexec/internal/errors"
)

const (
	userPrefix = "user."
	progSuffix = ".prog"
)

// Lookup is the read-only view of user credentials the session handler
// depends on.
type Lookup interface {
	// Password returns the stored password for user.
	Password(user string) (string, bool)
	// AllowedPrefixes returns the user's ordered allow-list.
	AllowedPrefixes(user string) ([]string, bool)
}

// Directory is an immutable snapshot of users, passwords, and command
// allow-lists.  It is safe for concurrent use.
type Directory struct {
	passwords map[string]string
	prefixes  map[string][]string
}

// NewDirectory builds a Directory from credentials-file properties:
//
//	user.<name>=<password>
//	user.<name>.prog=<prefix>[,<prefix>...]
//
// Allow-list entries are trimmed and empty entries are dropped; an
// allow-list with no entries left counts as absent.  An empty entry
// would otherwise be a prefix of every command line, so "user.x.prog="
// denies everything rather than allowing it.  Keys outside the "user."
// namespace are ignored.
func NewDirectory(props config.Properties) *Directory {
	d := &Directory{
		passwords: make(map[string]string),
		prefixes:  make(map[string][]string),
	}
	for key, value := range props {
		if !strings.HasPrefix(key, userPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, userPrefix)
		if user, ok := strings.CutSuffix(name, progSuffix); ok {
			if list := splitPrefixes(value); len(list) > 0 {
				d.prefixes[user] = list
			}
			continue
		}
		d.passwords[name] = value
	}
	return d
}

// Load reads the credentials file at path.
func Load(path string) (*Directory, error) {
	props, err := config.LoadProperties(path)
	if err != nil {
		return nil, err
	}
	return NewDirectory(props), nil
}

// Password implements Lookup.
func (d *Directory) Password(user string) (string, bool) {
	pw, ok := d.passwords[user]
	return pw, ok
}

// AllowedPrefixes implements Lookup.  The returned slice is a copy.
func (d *Directory) AllowedPrefixes(user string) ([]string, bool) {
	list, ok := d.prefixes[user]
	if !ok {
		return nil, false
	}
	return append([]string(nil), list...), true
}

// Users returns the known usernames in sorted order.
func (d *Directory) Users() []string {
	out := make([]string, 0, len(d.passwords))
	for u := range d.passwords {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Authenticate checks user and password against l.  Unknown users and
// wrong passwords both yield ErrAuthFailed so callers cannot tell them
// apart.
func Authenticate(l Lookup, user, password string) error {
	stored, ok := l.Password(user)
	if !ok {
		// Compare anyway so both failure paths cost about the same.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return rexerr.ErrAuthFailed
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return rexerr.ErrAuthFailed
	}
	return nil
}

// Authorize reports whether commandLine starts with one of the user's
// allowed prefixes.  Matching is a literal, case-sensitive byte prefix
// of the whole line, not a token or path match.  It returns
// ErrNoPrograms when the user has no allow-list and ErrUnauthorized
// when no prefix matches.
func Authorize(l Lookup, user, commandLine string) error {
	prefixes, ok := l.AllowedPrefixes(user)
	if !ok {
		return rexerr.ErrNoPrograms
	}
	for _, p := range prefixes {
		if strings.HasPrefix(commandLine, p) {
			return nil
		}
	}
	return rexerr.ErrUnauthorized
}

func splitPrefixes(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
