package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	errNoTask   = errors.New("no task given")
	errNoAPIKey = errors.New("no API key given")
)

// promptLine prints label and reads one trimmed line.
func promptLine(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	text, err := in.ReadString('\n')
	if err != nil && text == "" {
		fmt.Fprintln(out)
		return ""
	}
	return strings.TrimSpace(text)
}

// promptSecret reads a value without echoing it when stdin is a terminal.
func promptSecret(stdin io.Reader, in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	if f, ok := stdin.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			text, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err == nil {
				return strings.TrimSpace(string(text))
			}
		}
	}
	text, err := in.ReadString('\n')
	if err != nil && text == "" {
		fmt.Fprintln(out)
		return ""
	}
	return strings.TrimSpace(text)
}
