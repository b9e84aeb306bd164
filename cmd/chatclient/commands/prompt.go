package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter asks the user for missing values.
type prompter struct {
	in  *bufio.Reader
	out io.Writer

	// readSecret reads without echo; nil falls back to a plain line.
	readSecret func() ([]byte, error)
}

func newTerminalPrompter() *prompter {
	p := &prompter{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.readSecret = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return p
}

// line prompts for a value, returning def on an empty answer.
func (p *prompter) line(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return s, nil
}

// secret prompts for a value without echo where the terminal allows it.
func (p *prompter) secret(label string) ([]byte, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if p.readSecret != nil {
		b, err := p.readSecret()
		fmt.Fprintln(p.out)
		return b, err
	}
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return nil, err
	}
	return []byte(strings.TrimRight(s, "\r\n")), nil
}
