// Package cli runs line oriented interactive commands.
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// MainLoop runs go-prompt on terminal, otherwise executes stdin lines until EOF.
// Empty lines are skipped.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) error {
	if IsTerminal(os.Stdin) {
		prompt.New(
			func(line string) {
				if line = strings.TrimSpace(line); line != "" {
					exec(line)
				}
			},
			complete,
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionTitle(tag),
		).Run()
		return nil
	}
	return ExecLines(os.Stdin, exec)
}

func ExecLines(r io.Reader, exec func(line string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			exec(line)
		}
	}
	return scanner.Err()
}

// Words suggests items starting with word before cursor.
func Words(d prompt.Document, items []prompt.Suggest) []prompt.Suggest {
	return prompt.FilterHasPrefix(items, d.GetWordBeforeCursor(), true)
}
