package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	rexerr "rexec/internal/errors"
)

// Properties is the flat key/value content of a credentials file.
//
// The file uses the Java .properties syntax: one "key=value" (or
// "key: value", or "key value") pair per line, '#' and '!' comments,
// a trailing backslash to continue a line, and the usual backslash
// escapes including \uXXXX.
type Properties map[string]string

// LoadProperties reads and parses the file at path.  Any failure is
// reported as a *errors.LoadError.
func LoadProperties(path string) (Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &rexerr.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	props, err := ParseProperties(f)
	if err != nil {
		var le *rexerr.LoadError
		if rexerr.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &rexerr.LoadError{Path: path, Err: err}
	}
	return props, nil
}

// ParseProperties parses properties from r.  Later keys override
// earlier ones.
func ParseProperties(r io.Reader) (Properties, error) {
	props := make(Properties)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	var logical strings.Builder
	start := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if logical.Len() == 0 {
			line = strings.TrimLeft(line, " \t\f")
			if line == "" || line[0] == '#' || line[0] == '!' {
				continue
			}
			start = lineNo
		} else {
			line = strings.TrimLeft(line, " \t\f")
		}

		if continues(line) {
			logical.WriteString(line[:len(line)-1])
			continue
		}
		logical.WriteString(line)

		key, value, err := splitPair(logical.String())
		logical.Reset()
		if err != nil {
			return nil, &rexerr.LoadError{Line: start, Err: err}
		}
		props[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if logical.Len() > 0 {
		// Continuation on the last line: keep what we have.
		key, value, err := splitPair(logical.String())
		if err != nil {
			return nil, &rexerr.LoadError{Line: start, Err: err}
		}
		props[key] = value
	}
	return props, nil
}

// continues reports whether line ends in an odd number of backslashes.
func continues(line string) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// splitPair separates a logical line into an unescaped key and value.
func splitPair(line string) (string, string, error) {
	end := len(line)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' {
			i++
			continue
		}
		if c == '=' || c == ':' || c == ' ' || c == '\t' || c == '\f' {
			end = i
			break
		}
	}

	rest := strings.TrimLeft(line[end:], " \t\f")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t\f")
	}

	key, err := unescape(line[:end])
	if err != nil {
		return "", "", fmt.Errorf("key: %w", err)
	}
	value, err := unescape(rest)
	if err != nil {
		return "", "", fmt.Errorf("value of %q: %w", key, err)
	}
	return key, value, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+5 > len(s) {
				return "", fmt.Errorf("malformed \\u escape")
			}
			r, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				return "", fmt.Errorf("malformed \\u escape %q", s[i-1:i+5])
			}
			b.WriteRune(rune(r))
			i += 4
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
