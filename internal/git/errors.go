package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// credentialURL matches http(s) URLs carrying userinfo (tokens, passwords).
var credentialURL = regexp.MustCompile(`(?i)\b(https?://)[^/@\s]+@`)

// Redact strips embedded credentials from URLs inside s, so command output
// and remote URLs can be logged or shown to the user safely.
func Redact(s string) string {
	return credentialURL.ReplaceAllString(s, "${1}***@")
}

// CommandError describes a failed git invocation. The captured combined
// output lets callers classify the failure (push rejection vs network
// error) without re-running the command.
type CommandError struct {
	Op     string   // logical operation, e.g. "clone", "push"
	Args   []string // argv after "git"
	Output string   // combined stdout/stderr, trimmed
	Err    error    // underlying exec error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("git %s failed: %v: %s", e.Op, e.Err, Redact(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsPushRejected reports whether err is a push failure caused by the remote
// holding history the local branch does not have. Matches the wording git
// uses for both unrelated and diverged histories.
func IsPushRejected(err error) bool {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return false
	}
	if !strings.Contains(ce.Output, "rejected") {
		return false
	}
	return strings.Contains(ce.Output, "fetch first") ||
		strings.Contains(ce.Output, "non-fast-forward")
}
