//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Harness builds the git-onboard binary once and provides repository
// fixtures for end-to-end scenarios. Every git invocation, the binary's
// included, runs against a scratch global config so the host's identity
// and hooks never leak into a test.
type Harness struct {
	t    *testing.T
	bin  string
	home string
}

// NewHarness compiles the binary under test and prepares an isolated
// git environment.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	root, err := findProjectRoot()
	if err != nil {
		t.Fatalf("failed to locate project root: %v", err)
	}

	bin := filepath.Join(t.TempDir(), "git-onboard")
	build := exec.Command("go", "build", "-o", bin, "./cmd/git-onboard")
	build.Dir = root
	build.Stdout = &testWriter{t: t, prefix: "[build] "}
	build.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build binary: %v", err)
	}

	home := t.TempDir()
	gitconfig := `[user]
	name = Integration Test
	email = integration@example.com
[init]
	defaultBranch = main
`
	if err := os.WriteFile(filepath.Join(home, "gitconfig"), []byte(gitconfig), 0644); err != nil {
		t.Fatalf("failed to write git config: %v", err)
	}

	return &Harness{t: t, bin: bin, home: home}
}

func (h *Harness) env() []string {
	return append(os.Environ(),
		"HOME="+h.home,
		"GIT_CONFIG_GLOBAL="+filepath.Join(h.home, "gitconfig"),
		"GIT_CONFIG_NOSYSTEM=1",
	)
}

// Run executes the binary under test and returns its combined output
// and exit code.
func (h *Harness) Run(ctx context.Context, args ...string) (string, int) {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, h.bin, args...)
	cmd.Env = h.env()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			h.t.Fatalf("failed to run binary: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}
	return out.String(), exitCode
}

// MustRun fails the test when the binary exits non-zero.
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	out, code := h.Run(ctx, args...)
	if code != 0 {
		h.t.Fatalf("command failed with exit code %d\nargs: %v\noutput: %s", code, args, out)
	}
	return out
}

// Git runs a git command for fixture setup and assertions, failing the
// test on any error.
func (h *Harness) Git(args ...string) string {
	h.t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Env = h.env()
	out, err := cmd.CombinedOutput()
	if err != nil {
		h.t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// NewProject creates a project directory holding the given files and no
// repository metadata.
func (h *Harness) NewProject(files map[string]string) string {
	h.t.Helper()
	dir := h.t.TempDir()
	h.WriteFiles(dir, files)
	return dir
}

// WriteFiles writes files relative to dir, creating parent directories
// as needed.
func (h *Harness) WriteFiles(dir string, files map[string]string) {
	h.t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			h.t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			h.t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}

// NewBareRemote creates an empty bare repository and returns its file URL.
func (h *Harness) NewBareRemote() string {
	h.t.Helper()
	dir := h.t.TempDir()
	h.Git("init", "--bare", "-b", "main", dir)
	return "file://" + dir
}

// SeedRemote pushes the given files as a commit on the remote's main
// branch through a scratch clone.
func (h *Harness) SeedRemote(remoteURL string, files map[string]string) {
	h.t.Helper()
	work := h.t.TempDir()
	h.Git("clone", remoteURL, work)
	h.WriteFiles(work, files)
	h.Git("-C", work, "add", "-A")
	h.Git("-C", work, "commit", "-m", "Seed remote")
	h.Git("-C", work, "push", "origin", "HEAD:main")
}

// RemoteFiles lists the paths tracked at the tip of the remote branch.
func (h *Harness) RemoteFiles(remoteURL, branch string) []string {
	h.t.Helper()
	work := h.t.TempDir()
	h.Git("clone", "--branch", branch, remoteURL, work)
	out := h.Git("-C", work, "ls-files")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// RemoteFileContent returns the content of name at the tip of the
// remote branch.
func (h *Harness) RemoteFileContent(remoteURL, branch, name string) string {
	h.t.Helper()
	work := h.t.TempDir()
	h.Git("clone", "--branch", branch, remoteURL, work)
	data, err := os.ReadFile(filepath.Join(work, name))
	if err != nil {
		h.t.Fatalf("failed to read %s from remote clone: %v", name, err)
	}
	return string(data)
}

// RemoteHasBranch reports whether the remote advertises the branch.
func (h *Harness) RemoteHasBranch(remoteURL, branch string) bool {
	h.t.Helper()
	return h.Git("ls-remote", "--heads", remoteURL, branch) != ""
}

// TrackedFiles lists the paths in the project's index.
func (h *Harness) TrackedFiles(dir string) []string {
	h.t.Helper()
	out := h.Git("-C", dir, "ls-files")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// CommitCount returns the number of commits reachable from HEAD.
func (h *Harness) CommitCount(dir string) int {
	h.t.Helper()
	out := h.Git("-C", dir, "rev-list", "--count", "HEAD")
	n, err := strconv.Atoi(out)
	if err != nil {
		h.t.Fatalf("unexpected rev-list output %q: %v", out, err)
	}
	return n
}

// LastMessage returns the subject of the tip commit.
func (h *Harness) LastMessage(dir string) string {
	h.t.Helper()
	return h.Git("-C", dir, "log", "-1", "--format=%s")
}

// MessageLog returns every commit subject reachable from HEAD.
func (h *Harness) MessageLog(dir string) string {
	h.t.Helper()
	return h.Git("-C", dir, "log", "--format=%s")
}

// FileExists reports whether path exists on disk.
func (h *Harness) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteConfig renders a config file for a run and returns its path.
func (h *Harness) WriteConfig(project, remoteURL, branch, message string) string {
	h.t.Helper()
	content := fmt.Sprintf(`project:
  path: %s
remote:
  url: %s
  branch: %s
commit:
  message: %s
`, project, remoteURL, branch, message)

	path := filepath.Join(h.t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// testWriter forwards command output to the test log.
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

// findProjectRoot walks up from this source file until it finds go.mod.
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
