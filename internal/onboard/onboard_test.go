package onboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1BitCode-Com/git-onboard/internal/config"
	"github.com/1BitCode-Com/git-onboard/internal/git"
	"github.com/1BitCode-Com/git-onboard/internal/interact"
	"github.com/1BitCode-Com/git-onboard/internal/recovery"
)

type fakePush struct {
	remote string
	branch string
	force  bool
}

// fakeGit implements git.Client for engine tests. hasChanges models the
// working tree state; pushQueue holds the error for each successive Push
// call, an exhausted queue meaning success.
type fakeGit struct {
	hasChanges     bool
	nothingToStage bool
	headErr        error
	currentBranch  string
	switchErr      error
	pushQueue      []error
	pullErr        error

	stagedAll bool
	commits   []string
	remotes   []string
	switched  []string
	pushes    []fakePush
	pulls     int
}

func (f *fakeGit) IsAvailable(_ context.Context) (bool, error) { return true, nil }

func (f *fakeGit) Init(_ context.Context, _, _ string) error { return nil }

func (f *fakeGit) CurrentBranch(_ context.Context, _ string) (string, error) {
	return f.currentBranch, nil
}

func (f *fakeGit) SwitchBranch(_ context.Context, _, branch string) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.switched = append(f.switched, branch)
	f.currentBranch = branch
	return nil
}

func (f *fakeGit) HeadCommit(_ context.Context, _ string) (string, error) {
	if f.headErr != nil {
		return "", f.headErr
	}
	return "0000000000000000000000000000000000000000", nil
}

func (f *fakeGit) HasChanges(_ context.Context, _ string) (bool, error) {
	return f.hasChanges, nil
}

func (f *fakeGit) Stage(_ context.Context, _ string, _ ...string) error { return nil }

func (f *fakeGit) StageAll(_ context.Context, _ string) error {
	f.stagedAll = true
	return nil
}

func (f *fakeGit) HasStagedChanges(_ context.Context, _ string) (bool, error) {
	return f.stagedAll && !f.nothingToStage, nil
}

func (f *fakeGit) Commit(_ context.Context, _, message string) error {
	f.commits = append(f.commits, message)
	return nil
}

func (f *fakeGit) EnsureRemote(_ context.Context, _, name, url string) error {
	f.remotes = append(f.remotes, name+" "+url)
	return nil
}

func (f *fakeGit) RemoteURL(_ context.Context, _, _ string) (string, error) { return "", nil }

func (f *fakeGit) RemoteHead(_ context.Context, _ string) (string, error) { return "main", nil }

func (f *fakeGit) CloneShallow(_ context.Context, _, _ string, _ int) error { return nil }

func (f *fakeGit) Push(_ context.Context, _, remote, branch string, force bool) error {
	f.pushes = append(f.pushes, fakePush{remote: remote, branch: branch, force: force})
	if len(f.pushQueue) == 0 {
		return nil
	}
	err := f.pushQueue[0]
	f.pushQueue = f.pushQueue[1:]
	return err
}

func (f *fakeGit) Pull(_ context.Context, _, _, _ string, _ bool) error {
	f.pulls++
	return f.pullErr
}

// recordingInteractor answers every yes/no question the same way and keeps
// what was asked.
type recordingInteractor struct {
	asked  []string
	answer bool
}

func (r *recordingInteractor) PromptYesNo(question string) bool {
	r.asked = append(r.asked, question)
	return r.answer
}

func (r *recordingInteractor) PromptChoice(string, []string) (int, bool) {
	return 0, false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(dir, remoteURL string) *config.Config {
	cfg := config.Default()
	cfg.Project.Path = dir
	cfg.Remote.URL = remoteURL
	return cfg
}

func pushRejectedErr() error {
	return &git.CommandError{
		Op:     "push",
		Output: "! [rejected] main -> main (fetch first)\nerror: failed to push some refs",
		Err:    fmt.Errorf("exit status 1"),
	}
}

func noCommitsErr() error {
	return &git.CommandError{
		Op:     "rev-parse",
		Output: "fatal: ambiguous argument 'HEAD': unknown revision",
		Err:    fmt.Errorf("exit status 128"),
	}
}

func TestRun_CreatesIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{headErr: noCommitsErr()}
	e := NewEngine(testConfig(dir, ""), fake, nil, nil, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.IgnoreFileCreated {
		t.Error("expected the default ignore file to be created")
	}
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "node_modules/") {
		t.Errorf("ignore file is missing default patterns:\n%s", data)
	}
	if res.Outcome != OutcomeUpToDate {
		t.Errorf("outcome = %s, want up-to-date", res.Outcome)
	}
}

func TestRun_KeepsExistingIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	existing := "*.secret\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	fake := &fakeGit{headErr: noCommitsErr()}
	e := NewEngine(testConfig(dir, ""), fake, nil, nil, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.IgnoreFileCreated {
		t.Error("an existing ignore file must not be replaced")
	}
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != existing {
		t.Errorf("ignore file content changed: %q", data)
	}
}

func TestRun_CleanTreeWithoutRemote(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{headErr: noCommitsErr()}
	e := NewEngine(testConfig(dir, ""), fake, nil, nil, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeUpToDate {
		t.Errorf("outcome = %s, want up-to-date", res.Outcome)
	}
	if fake.stagedAll || len(fake.commits) != 0 {
		t.Error("a clean tree must not be staged or committed")
	}
}

func TestRun_CommitsWithoutRemote(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true, headErr: noCommitsErr()}
	e := NewEngine(testConfig(dir, ""), fake, nil, nil, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCommitted {
		t.Errorf("outcome = %s, want committed", res.Outcome)
	}
	if !fake.stagedAll {
		t.Error("expected all changes to be staged")
	}
	if len(fake.commits) != 1 || fake.commits[0] != "Initial commit" {
		t.Errorf("commits = %v, want one with the default message", fake.commits)
	}
}

func TestRun_ConfiguredMessageWins(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true, headErr: noCommitsErr()}
	cfg := testConfig(dir, "")
	cfg.Commit.Message = "Import legacy project"
	e := NewEngine(cfg, fake, nil, nil, testLogger(), false)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fake.commits) != 1 || fake.commits[0] != "Import legacy project" {
		t.Errorf("commits = %v, want the configured message", fake.commits)
	}
}

func TestRun_IgnoredOnlyChangesAreUpToDate(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true, nothingToStage: true, headErr: noCommitsErr()}
	e := NewEngine(testConfig(dir, ""), fake, nil, nil, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeUpToDate {
		t.Errorf("outcome = %s, want up-to-date when only ignored files changed", res.Outcome)
	}
	if len(fake.commits) != 0 {
		t.Errorf("commits = %v, want none", fake.commits)
	}
}

func TestRun_ExistingCommitsNeedConfirmation(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true}
	asker := &recordingInteractor{answer: false}
	e := NewEngine(testConfig(dir, ""), fake, nil, asker, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", res.Outcome)
	}
	if len(asker.asked) != 1 {
		t.Errorf("asked = %v, want exactly one confirmation", asker.asked)
	}
	if fake.stagedAll || len(fake.commits) != 0 {
		t.Error("a declined run must not touch the repository")
	}
}

func TestRun_ConfirmationAcceptedProceeds(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true}
	asker := &recordingInteractor{answer: true}
	e := NewEngine(testConfig(dir, ""), fake, nil, asker, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCommitted {
		t.Errorf("outcome = %s, want committed", res.Outcome)
	}
	if len(asker.asked) != 1 {
		t.Errorf("asked = %v, want exactly one confirmation", asker.asked)
	}
}

func TestRun_NoConfirmationWithoutCommits(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{headErr: noCommitsErr()}
	asker := &recordingInteractor{answer: false}
	e := NewEngine(testConfig(dir, ""), fake, nil, asker, testLogger(), false)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(asker.asked) != 0 {
		t.Errorf("asked = %v, want no confirmation for a repository without commits", asker.asked)
	}
}

func TestRun_PushesToRemote(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true, currentBranch: "main"}
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, nil,
		interact.NonInteractive{YesNo: true}, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePushed {
		t.Errorf("outcome = %s, want pushed", res.Outcome)
	}
	if res.Branch != "main" {
		t.Errorf("branch = %q, want main", res.Branch)
	}
	if len(fake.remotes) != 1 || fake.remotes[0] != "origin https://example.com/repo.git" {
		t.Errorf("remotes = %v", fake.remotes)
	}
	if len(fake.pushes) != 1 || fake.pushes[0] != (fakePush{remote: "origin", branch: "main"}) {
		t.Errorf("pushes = %v", fake.pushes)
	}
	if len(fake.switched) != 0 {
		t.Errorf("switched = %v, want no switch when already on the target", fake.switched)
	}
}

func TestRun_SwitchesToTargetBranch(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true, currentBranch: "master"}
	cfg := testConfig(dir, "https://example.com/repo.git")
	cfg.Remote.Branch = "main"
	e := NewEngine(cfg, fake, nil, interact.NonInteractive{YesNo: true}, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.switched) != 1 || fake.switched[0] != "main" {
		t.Errorf("switched = %v, want a switch to main", fake.switched)
	}
	if res.Branch != "main" || fake.pushes[0].branch != "main" {
		t.Errorf("pushed %v as %q, want main", fake.pushes, res.Branch)
	}
}

func TestRun_SwitchFailureKeepsCurrentBranch(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{
		hasChanges:    true,
		currentBranch: "master",
		switchErr:     fmt.Errorf("worktree is dirty"),
	}
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, nil,
		interact.NonInteractive{YesNo: true}, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Branch != "master" {
		t.Errorf("branch = %q, want the current branch kept", res.Branch)
	}
	if len(fake.pushes) != 1 || fake.pushes[0].branch != "master" {
		t.Errorf("pushes = %v, want the current branch pushed", fake.pushes)
	}
}

func TestRun_NothingToPushWithoutCommits(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{headErr: noCommitsErr()}
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, nil, nil, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeUpToDate {
		t.Errorf("outcome = %s, want up-to-date", res.Outcome)
	}
	// The remote is still registered so a later run can push.
	if len(fake.remotes) != 1 {
		t.Errorf("remotes = %v, want the remote registered", fake.remotes)
	}
	if len(fake.pushes) != 0 {
		t.Errorf("pushes = %v, want none without commits", fake.pushes)
	}
}

func TestRun_PushConflictForce(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{
		hasChanges:    true,
		currentBranch: "main",
		pushQueue:     []error{pushRejectedErr()},
	}
	resolver := recovery.ResolverFunc(func(string) recovery.Resolution { return recovery.ResolutionForce })
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, resolver,
		interact.NonInteractive{YesNo: true}, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePushed {
		t.Errorf("outcome = %s, want pushed", res.Outcome)
	}
	if !res.ForcedPush {
		t.Error("forced resolution must be reported on the result")
	}
	if len(fake.pushes) != 2 || !fake.pushes[1].force {
		t.Errorf("pushes = %v, want a forced second push", fake.pushes)
	}
}

func TestRun_PushConflictUnresolved(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{
		hasChanges:    true,
		currentBranch: "main",
		pushQueue:     []error{pushRejectedErr()},
	}
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, nil,
		interact.NonInteractive{YesNo: true}, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeConflictUnresolved {
		t.Errorf("outcome = %s, want conflict-unresolved without a resolver", res.Outcome)
	}
}

func TestRun_PushHardFailure(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{
		hasChanges:    true,
		currentBranch: "main",
		pushQueue: []error{&git.CommandError{
			Op:     "push",
			Output: "fatal: unable to access remote: 403",
			Err:    fmt.Errorf("exit status 128"),
		}},
	}
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, nil,
		interact.NonInteractive{YesNo: true}, testLogger(), false)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePushFailed {
		t.Errorf("outcome = %s, want push-failed", res.Outcome)
	}
}

func TestRun_DryRunLeavesEverythingAlone(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGit{hasChanges: true, currentBranch: "main"}
	e := NewEngine(testConfig(dir, "https://example.com/repo.git"), fake, nil,
		interact.NonInteractive{YesNo: true}, testLogger(), true)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePushed {
		t.Errorf("outcome = %s, want the planned outcome", res.Outcome)
	}
	if fake.stagedAll || len(fake.commits) != 0 || len(fake.remotes) != 0 || len(fake.pushes) != 0 {
		t.Errorf("dry run must not mutate anything: %+v", fake)
	}
	if _, err := os.Stat(filepath.Join(dir, ".gitignore")); !os.IsNotExist(err) {
		t.Error("dry run must not create the ignore file")
	}
}
