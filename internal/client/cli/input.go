package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when a password is requested but stdin is not
// an interactive terminal.
var ErrNoTerminal = errors.New("password input requires a terminal")

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// GetSimpleText writes prompt to w and returns the next line from reader
// with surrounding whitespace removed. A final line without a newline is
// accepted; EOF with nothing read is returned as is.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprintf(w, "%s\n> ", prompt); err != nil {
		return "", err
	}

	line, err := reader.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && line != "":
	default:
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword writes prompt to w and reads a password from stdin without
// echo. The caller wipes the result with common.WipeByteArray.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return nil, ErrNoTerminal
	}

	if _, err := fmt.Fprintf(w, "%s: ", prompt); err != nil {
		return nil, err
	}
	defer fmt.Fprintln(w)

	return readPassword(fd)
}
