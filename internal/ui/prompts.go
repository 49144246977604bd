package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirm writes question to w and reads one answer line from r. Only "y"
// and "yes" confirm; an empty answer or a read error is a no.
func Confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(w)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// ConfirmDestructive asks on the terminal before an irreversible change.
// Without a terminal nothing can be asked, so it refuses and names the flag
// that skips the question.
func ConfirmDestructive(question string) bool {
	if !IsTerminal() {
		fmt.Fprintf(os.Stderr, "%s refusing without a terminal; pass --yes to confirm\n", question)
		return false
	}
	return Confirm(os.Stdin, os.Stdout, question)
}
