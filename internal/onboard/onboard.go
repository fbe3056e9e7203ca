// Package onboard drives normal onboarding for projects that still have
// their version-control metadata: ensure an ignore file, stage and commit
// outstanding work, register the remote and push. Projects whose metadata
// is gone are the recovery package's job.
package onboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/1BitCode-Com/git-onboard/internal/config"
	"github.com/1BitCode-Com/git-onboard/internal/git"
	"github.com/1BitCode-Com/git-onboard/internal/interact"
	"github.com/1BitCode-Com/git-onboard/internal/recovery"
	"github.com/1BitCode-Com/git-onboard/internal/scan"
)

// Outcome classifies how an onboarding run ended.
type Outcome int

const (
	// OutcomeUpToDate means nothing needed committing or pushing.
	OutcomeUpToDate Outcome = iota
	// OutcomeCancelled means the user declined to onboard a repository
	// that already has commits.
	OutcomeCancelled
	// OutcomeCommitted means changes were committed but no remote is
	// configured to push them to.
	OutcomeCommitted
	// OutcomePushed means the branch reached the remote.
	OutcomePushed
	// OutcomeConflictUnresolved means a push conflict remained after the
	// resolution attempts.
	OutcomeConflictUnresolved
	// OutcomePushFailed means the push failed for reasons other than
	// diverged history.
	OutcomePushFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeCommitted:
		return "committed"
	case OutcomePushed:
		return "pushed"
	case OutcomeConflictUnresolved:
		return "conflict-unresolved"
	case OutcomePushFailed:
		return "push-failed"
	default:
		return "invalid"
	}
}

// Result reports what an onboarding run did.
type Result struct {
	Outcome Outcome
	Branch  string
	// ForcedPush is set when conflict resolution overwrote remote history.
	ForcedPush bool
	// IgnoreFileCreated is set when the default ignore file was written.
	IgnoreFileCreated bool
}

// Engine runs the onboarding flow for one project.
type Engine struct {
	cfg        *config.Config
	client     git.Client
	resolver   recovery.ConflictResolver
	interactor interact.Interactor
	logger     *slog.Logger
	dryRun     bool
}

// NewEngine creates an onboarding engine. resolver may be nil, in which case
// push conflicts are left unresolved; interactor may be nil, in which case
// confirmation gates are answered with no.
func NewEngine(cfg *config.Config, client git.Client, resolver recovery.ConflictResolver, interactor interact.Interactor, logger *slog.Logger, dryRun bool) *Engine {
	if interactor == nil {
		interactor = interact.NonInteractive{}
	}
	return &Engine{
		cfg:        cfg,
		client:     client,
		resolver:   resolver,
		interactor: interactor,
		logger:     logger,
		dryRun:     dryRun,
	}
}

// Run executes one onboarding pass. Push problems surface as outcome values;
// the returned error is reserved for failing local operations.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	dir, err := e.cfg.AbsProjectPath()
	if err != nil {
		return nil, err
	}

	result := &Result{Branch: e.targetBranch()}
	e.logger.Info("starting onboarding",
		"project", dir,
		"remote", git.Redact(e.cfg.Remote.URL),
		"dry_run", e.dryRun)

	created, err := e.ensureIgnoreFile(dir)
	if err != nil {
		return nil, err
	}
	result.IgnoreFileCreated = created

	// A repository with history was onboarded before; overwriting its
	// state unprompted would surprise the owner.
	if _, err := e.client.HeadCommit(ctx, dir); err == nil {
		if !e.interactor.PromptYesNo("Repository already has commits. Continue with onboarding?") {
			e.logger.Info("onboarding cancelled, repository already has commits")
			result.Outcome = OutcomeCancelled
			return result, nil
		}
	}

	committed, err := e.stageAndCommit(ctx, dir)
	if err != nil {
		return nil, err
	}

	if !e.cfg.HasRemote() {
		if committed {
			e.logger.Info("changes committed; configure a remote to push them")
			result.Outcome = OutcomeCommitted
		} else {
			e.logger.Info("nothing to do, project is up to date")
			result.Outcome = OutcomeUpToDate
		}
		return result, nil
	}

	return result, e.push(ctx, dir, result)
}

// ensureIgnoreFile writes the default ignore file when the project has none.
func (e *Engine) ensureIgnoreFile(dir string) (bool, error) {
	path := filepath.Join(dir, e.cfg.Ignore.File)
	if e.dryRun {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			e.logger.Info("[dry-run] would create default ignore file", "path", path)
		}
		return false, nil
	}

	created, err := scan.EnsureIgnoreFile(dir, e.cfg.Ignore.File, e.cfg.Ignore.Patterns)
	if err != nil {
		return false, fmt.Errorf("failed to ensure ignore file: %w", err)
	}
	if created {
		e.logger.Info("created default ignore file", "path", path)
	}
	return created, nil
}

// stageAndCommit stages all outstanding changes and commits them. It reports
// whether a commit was created.
func (e *Engine) stageAndCommit(ctx context.Context, dir string) (bool, error) {
	changed, err := e.client.HasChanges(ctx, dir)
	if err != nil {
		return false, fmt.Errorf("failed to query working tree state: %w", err)
	}
	if !changed {
		e.logger.Info("working tree is clean, nothing to commit")
		return false, nil
	}

	if e.dryRun {
		e.logger.Info("[dry-run] would stage and commit all changes")
		return false, nil
	}

	if err := e.client.StageAll(ctx, dir); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}
	staged, err := e.client.HasStagedChanges(ctx, dir)
	if err != nil {
		return false, fmt.Errorf("failed to query staged changes: %w", err)
	}
	if !staged {
		// Everything that changed is ignored; the index stayed empty.
		e.logger.Info("no stageable changes, nothing to commit")
		return false, nil
	}

	message := e.commitMessage()
	if err := e.client.Commit(ctx, dir, message); err != nil {
		return false, fmt.Errorf("failed to commit changes: %w", err)
	}
	e.logger.Info("created commit", "message", message)
	return true, nil
}

// push registers the remote, moves onto the target branch and uploads it,
// sharing the recovery package's conflict handling so the two flows cannot
// drift apart.
func (e *Engine) push(ctx context.Context, dir string, result *Result) error {
	if e.dryRun {
		e.logger.Info("[dry-run] would register remote and push",
			"remote", e.cfg.Remote.Name,
			"branch", result.Branch)
		result.Outcome = OutcomePushed
		return nil
	}

	if err := e.client.EnsureRemote(ctx, dir, e.cfg.Remote.Name, e.cfg.Remote.URL); err != nil {
		return fmt.Errorf("failed to configure remote: %w", err)
	}

	if _, err := e.client.HeadCommit(ctx, dir); err != nil {
		e.logger.Warn("no commits yet, nothing to push")
		result.Outcome = OutcomeUpToDate
		return nil
	}

	branch := e.ensureBranch(ctx, dir, result.Branch)
	result.Branch = branch

	e.logger.Info("pushing branch", "remote", e.cfg.Remote.Name, "branch", branch)
	status, err := recovery.PushWithResolution(ctx, e.client, e.logger, dir, e.cfg.Remote.Name, branch, e.resolver)
	switch status {
	case recovery.PushOK:
		e.logger.Info("branch pushed", "branch", branch)
		result.Outcome = OutcomePushed
	case recovery.PushForced:
		e.logger.Info("branch pushed by force", "branch", branch)
		result.Outcome = OutcomePushed
		result.ForcedPush = true
	case recovery.PushFailed:
		e.logger.Warn("push failed", "error", err)
		result.Outcome = OutcomePushFailed
	default:
		if err != nil {
			e.logger.Warn("conflict resolution failed", "error", err)
		}
		result.Outcome = OutcomeConflictUnresolved
	}
	return nil
}

// ensureBranch moves the repository onto the target branch when it is not
// already there. A failed switch keeps the current branch rather than
// aborting the push.
func (e *Engine) ensureBranch(ctx context.Context, dir, target string) string {
	current, err := e.client.CurrentBranch(ctx, dir)
	if err != nil || current == "" || current == target {
		return target
	}

	e.logger.Info("switching branch", "from", current, "to", target)
	if err := e.client.SwitchBranch(ctx, dir, target); err != nil {
		e.logger.Warn("failed to switch branch, pushing the current one",
			"branch", current, "error", err)
		return current
	}
	return target
}

// commitMessage resolves the configured commit message.
func (e *Engine) commitMessage() string {
	if e.cfg.Commit.Message != "" {
		return e.cfg.Commit.Message
	}
	return config.DefaultCommitMessage
}

// targetBranch resolves the branch onboarding pushes to.
func (e *Engine) targetBranch() string {
	if e.cfg.Remote.Branch != "" {
		return e.cfg.Remote.Branch
	}
	return "main"
}
