package terminal

import (
	"bufio"
	"fmt"
	"io"
)

// Scanner is a LineReader over a plain reader, for input() when stdin is
// not a terminal.
type Scanner struct {
	s   *bufio.Scanner
	out io.Writer
}

// NewScanner returns a Scanner that writes prompts to out and reads lines
// from r.
func NewScanner(r io.Reader, out io.Writer) *Scanner {
	return &Scanner{s: bufio.NewScanner(r), out: out}
}

// Prompt writes prompt and reads the next line. It returns io.EOF at end of
// input.
func (s *Scanner) Prompt(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	if s.s.Scan() {
		return s.s.Text(), nil
	}
	if err := s.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
