package tunnel

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for a secret.  It receives the prompt text and
// returns the reply without the trailing newline.
type Prompter func(prompt string) (string, error)

// TerminalPrompt reads a secret from the terminal attached to stdin
// with echo disabled.  The prompt goes to stderr so stdout stays clean
// for program output.
func TerminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	what := strings.TrimSuffix(strings.TrimSpace(prompt), ":")
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot read %s: stdin is not a terminal", what)
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", what, err)
	}
	return string(secret), nil
}
