// Package interact prompts the user for decisions the tool cannot make on
// its own, such as confirming a force push.
package interact

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Interactor asks the user questions and reports their answers.
type Interactor interface {
	// PromptYesNo asks a yes/no question and returns the user's response.
	PromptYesNo(question string) bool
	// PromptChoice presents numbered options and returns the zero-based
	// index of the selection. ok is false when no answer could be read.
	PromptChoice(question string, options []string) (choice int, ok bool)
}

// DefaultInteractor reads answers line by line from a terminal or any
// other reader.
type DefaultInteractor struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewDefaultInteractor creates an Interactor reading from r and writing
// prompts to w.
func NewDefaultInteractor(r io.Reader, w io.Writer) *DefaultInteractor {
	return &DefaultInteractor{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// PromptYesNo asks question and interprets any answer starting with "y" as
// yes. Read failures count as no.
func (i *DefaultInteractor) PromptYesNo(question string) bool {
	fmt.Fprintf(i.writer, "%s (y/n): ", question)

	answer, err := i.reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
}

// PromptChoice prints the numbered options and reads until the user enters
// a valid selection. A read failure ends the prompt with ok set to false.
func (i *DefaultInteractor) PromptChoice(question string, options []string) (int, bool) {
	fmt.Fprintln(i.writer, question)
	for n, opt := range options {
		fmt.Fprintf(i.writer, "  [%d] %s\n", n+1, opt)
	}

	for {
		fmt.Fprintf(i.writer, "Select an option (1-%d): ", len(options))
		line, err := i.reader.ReadString('\n')
		if err != nil {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < 1 || n > len(options) {
			fmt.Fprintf(i.writer, "Invalid choice. Please enter a number between 1 and %d.\n", len(options))
			continue
		}
		return n - 1, true
	}
}

// NonInteractive answers every prompt with fixed values without consulting
// the user.
type NonInteractive struct {
	// YesNo is the canned answer for PromptYesNo.
	YesNo bool
}

// PromptYesNo returns the configured answer.
func (n NonInteractive) PromptYesNo(string) bool {
	return n.YesNo
}

// PromptChoice declines to choose, reporting that no answer was read.
func (n NonInteractive) PromptChoice(string, []string) (int, bool) {
	return 0, false
}
