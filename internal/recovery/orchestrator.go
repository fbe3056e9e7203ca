package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/1BitCode-Com/git-onboard/internal/config"
	"github.com/1BitCode-Com/git-onboard/internal/git"
	"github.com/1BitCode-Com/git-onboard/internal/scan"
)

// defaultBranch is used when neither the caller nor the remote names one.
const defaultBranch = "main"

// RemoteRecoveryMessage is the commit message for recovered changes pushed
// to an existing remote when the caller does not configure one.
const RemoteRecoveryMessage = "Recover and push local changes"

// step is one node of the recovery state machine.
type step int

const (
	stepStart step = iota
	stepStateCheck
	stepRemotePath
	stepLocalOnlyPath
	stepStage
	stepCommit
	stepPush
	stepConflict
	stepDone
)

func (s step) String() string {
	switch s {
	case stepStart:
		return "start"
	case stepStateCheck:
		return "state-check"
	case stepRemotePath:
		return "remote-path"
	case stepLocalOnlyPath:
		return "local-only-path"
	case stepStage:
		return "stage"
	case stepCommit:
		return "commit"
	case stepPush:
		return "push"
	case stepConflict:
		return "conflict"
	case stepDone:
		return "done"
	default:
		return "invalid"
	}
}

// pathKind tags which recovery path a run took. Both variants feed the same
// stage/commit steps; only the push tail differs.
type pathKind int

const (
	pathLocalOnly pathKind = iota
	pathRemote
)

// runState accumulates everything one pass through the state machine needs.
// It is discarded when the run completes.
type runState struct {
	step    step
	dir     string
	rules   *scan.RuleSet
	path    pathKind
	plan    *Plan
	result  *Result
	message string
	toStage []string
}

// Orchestrator drives the recovery state machine for one project.
type Orchestrator struct {
	cfg        *config.Config
	client     git.Client
	inspector  *Inspector
	reconciler *Reconciler
	resolver   ConflictResolver
	logger     *slog.Logger
	dryRun     bool
}

// NewOrchestrator creates a recovery orchestrator. resolver may be nil, in
// which case push conflicts are left unresolved.
func NewOrchestrator(cfg *config.Config, client git.Client, resolver ConflictResolver, logger *slog.Logger, dryRun bool) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		client:     client,
		inspector:  NewInspector(client, cfg.Network.Timeout.Std(), logger),
		reconciler: NewReconciler(client, cfg.Network.FetchDepth, cfg.Network.Timeout.Std(), logger),
		resolver:   resolver,
		logger:     logger,
		dryRun:     dryRun,
	}
}

// Run executes one recovery pass. Remote problems surface as outcome
// values, never as errors; the returned error is reserved for an unusable
// project root and failing local git operations.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	dir, err := o.cfg.AbsProjectPath()
	if err != nil {
		return nil, err
	}

	run := &runState{
		step:   stepStart,
		dir:    dir,
		result: &Result{Outcome: OutcomeNotApplicable},
	}

	for run.step != stepDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := o.advance(ctx, run)
		if err != nil {
			return nil, err
		}
		o.logger.Debug("recovery step", "from", run.step.String(), "to", next.String())
		run.step = next
	}
	return run.result, nil
}

// advance performs the work of the current step and returns the next one.
func (o *Orchestrator) advance(ctx context.Context, run *runState) (step, error) {
	switch run.step {
	case stepStart:
		o.logger.Info("starting recovery",
			"project", run.dir,
			"remote", git.Redact(o.cfg.Remote.URL),
			"dry_run", o.dryRun)
		return stepStateCheck, nil

	case stepStateCheck:
		return o.stateCheck(ctx, run)

	case stepRemotePath:
		return o.remotePath(ctx, run)

	case stepLocalOnlyPath:
		return o.localOnlyPath(ctx, run)

	case stepStage:
		return o.stage(ctx, run)

	case stepCommit:
		return o.commit(ctx, run)

	case stepPush:
		return o.push(ctx, run)

	case stepConflict:
		return o.conflict(ctx, run)

	default:
		return stepDone, fmt.Errorf("recovery reached invalid step %d", run.step)
	}
}

// stateCheck inspects the project and probes the remote to select a path.
func (o *Orchestrator) stateCheck(ctx context.Context, run *runState) (step, error) {
	state, err := o.inspector.Inspect(run.dir)
	if err != nil {
		return stepDone, err
	}
	if state == StatePresent {
		o.logger.Info("version-control metadata present, nothing to recover", "project", run.dir)
		run.result.Outcome = OutcomeNotApplicable
		return stepDone, nil
	}
	o.logger.Info("version-control metadata missing, recovering", "project", run.dir)

	run.rules = o.loadRules(run.dir)

	status := o.inspector.ProbeRemote(ctx, o.cfg.Remote.URL)
	run.plan = &Plan{RemoteStatus: status}
	switch status {
	case RemoteStatusReachable:
		o.logger.Info("remote reachable, recovering against it", "url", git.Redact(o.cfg.Remote.URL))
		return stepRemotePath, nil
	case RemoteStatusNoneConfigured:
		o.logger.Info("no remote configured, recovering as local-only repository")
		return stepLocalOnlyPath, nil
	default:
		o.logger.Warn("remote unreachable, falling back to local-only recovery",
			"url", git.Redact(o.cfg.Remote.URL))
		return stepLocalOnlyPath, nil
	}
}

// remotePath reconciles against the remote and prepares the repository for
// staging the differences.
func (o *Orchestrator) remotePath(ctx context.Context, run *runState) (step, error) {
	run.path = pathRemote
	run.message = o.commitMessage(RemoteRecoveryMessage)

	branch := o.targetBranch(ctx)
	run.plan.TargetBranch = branch
	run.result.TargetBranch = branch

	changes, warnings, err := o.reconciler.Reconcile(ctx, run.dir, o.cfg.Remote.URL, run.rules)
	if err != nil {
		// The probe succeeded but the snapshot fetch did not; treat the
		// remote as gone and keep the files safe locally.
		var cmdErr *git.CommandError
		if errors.As(err, &cmdErr) {
			o.logger.Warn("remote snapshot failed, falling back to local-only recovery", "error", err)
			run.plan.RemoteStatus = RemoteStatusUnreachable
			return stepLocalOnlyPath, nil
		}
		return stepDone, err
	}
	o.recordWarnings(run, warnings)
	run.plan.Changes = changes
	run.toStage = changes.ChangedPaths()

	o.logger.Info("reconciled against remote",
		"to_add", len(changes.ToAdd),
		"to_modify", len(changes.ToModify),
		"unchanged", len(changes.Unchanged),
		"branch", branch)

	if o.dryRun {
		return o.finishDryRun(run), nil
	}

	if err := o.client.Init(ctx, run.dir, branch); err != nil {
		return stepDone, fmt.Errorf("failed to initialize repository: %w", err)
	}
	if err := o.client.EnsureRemote(ctx, run.dir, o.cfg.Remote.Name, o.cfg.Remote.URL); err != nil {
		return stepDone, fmt.Errorf("failed to configure remote: %w", err)
	}
	return stepStage, nil
}

// localOnlyPath enumerates the surviving files and prepares a repository
// that exists only on this machine.
func (o *Orchestrator) localOnlyPath(ctx context.Context, run *runState) (step, error) {
	run.path = pathLocalOnly
	run.message = o.commitMessage(config.DefaultCommitMessage)

	branch := o.cfg.Remote.Branch
	if branch == "" {
		branch = defaultBranch
	}
	run.plan.TargetBranch = branch
	run.result.TargetBranch = branch

	records, warnings, err := scan.Snapshot(run.dir, run.rules)
	if err != nil {
		return stepDone, err
	}
	o.recordWarnings(run, warnings)

	tracked := make([]scan.FileRecord, 0, len(records))
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Ignored {
			continue
		}
		tracked = append(tracked, rec)
		paths = append(paths, rec.RelPath)
	}
	run.toStage = paths
	if run.plan.RemoteStatus != RemoteStatusNoneConfigured {
		// The remote offered no comparison target, so every surviving
		// file counts as an addition.
		run.plan.Changes = &ChangeSet{ToAdd: tracked}
	}

	o.logger.Info("collected local files", "count", len(paths), "branch", branch)

	if o.dryRun {
		return o.finishDryRun(run), nil
	}

	if err := o.client.Init(ctx, run.dir, branch); err != nil {
		return stepDone, fmt.Errorf("failed to initialize repository: %w", err)
	}
	return stepStage, nil
}

// stage adds the prepared paths one by one so a single bad file cannot sink
// the whole run.
func (o *Orchestrator) stage(ctx context.Context, run *runState) (step, error) {
	if len(run.toStage) == 0 {
		o.logger.Info("nothing to stage, repository metadata rebuilt without a commit")
		run.result.Outcome = OutcomeNoOp
		return stepDone, nil
	}

	staged := 0
	for _, p := range run.toStage {
		if err := o.client.Stage(ctx, run.dir, p); err != nil {
			o.logger.Warn("failed to stage file", "path", p, "error", err)
			run.result.Warnings = append(run.result.Warnings, scan.Warning{Path: p, Err: err})
			continue
		}
		staged++
	}
	o.logger.Info("staged files", "staged", staged, "planned", len(run.toStage))
	return stepCommit, nil
}

// commit records the staged changes; an empty index downgrades the run to a
// no-op instead of failing.
func (o *Orchestrator) commit(ctx context.Context, run *runState) (step, error) {
	hasStaged, err := o.client.HasStagedChanges(ctx, run.dir)
	if err != nil {
		return stepDone, fmt.Errorf("failed to query staged changes: %w", err)
	}
	if !hasStaged {
		o.logger.Info("no staged changes, skipping commit")
		run.result.Outcome = OutcomeNoOp
		return stepDone, nil
	}

	if err := o.client.Commit(ctx, run.dir, run.message); err != nil {
		return stepDone, fmt.Errorf("failed to commit recovered files: %w", err)
	}
	o.logger.Info("created recovery commit", "message", run.message)

	if run.path == pathLocalOnly {
		o.logger.Info("local repository recovered; add a remote and push when one exists",
			"branch", run.result.TargetBranch)
		run.result.Outcome = OutcomeSuccess
		return stepDone, nil
	}

	// The repository, not the plan, is authoritative about the branch the
	// commit actually landed on.
	if cur, err := o.client.CurrentBranch(ctx, run.dir); err == nil && cur != "" {
		run.result.TargetBranch = cur
	}
	return stepPush, nil
}

// push uploads the recovered branch; a divergence rejection moves the run
// into the conflict step instead of ending it.
func (o *Orchestrator) push(ctx context.Context, run *runState) (step, error) {
	o.logger.Info("pushing recovered branch",
		"remote", o.cfg.Remote.Name,
		"branch", run.result.TargetBranch)

	err := o.client.Push(ctx, run.dir, o.cfg.Remote.Name, run.result.TargetBranch, false)
	if err == nil {
		o.logger.Info("recovered changes pushed", "branch", run.result.TargetBranch)
		run.result.Outcome = OutcomeSuccess
		return stepDone, nil
	}
	if git.IsPushRejected(err) {
		o.logger.Warn("push rejected, remote holds commits missing locally",
			"branch", run.result.TargetBranch)
		return stepConflict, nil
	}
	o.logger.Warn("push failed", "error", err)
	run.result.Outcome = OutcomeRemoteUnreachable
	return stepDone, nil
}

// conflict lets the caller's resolver settle a rejected push.
func (o *Orchestrator) conflict(ctx context.Context, run *runState) (step, error) {
	status, err := ResolveConflict(ctx, o.client, o.logger, run.dir, o.cfg.Remote.Name, run.result.TargetBranch, o.resolver)
	switch status {
	case PushOK:
		o.logger.Info("conflict resolved, recovered changes pushed", "branch", run.result.TargetBranch)
		run.result.Outcome = OutcomeSuccess
	case PushForced:
		o.logger.Info("conflict resolved by force push", "branch", run.result.TargetBranch)
		run.result.Outcome = OutcomeSuccess
		run.result.ForcedPush = true
	case PushFailed:
		o.logger.Warn("push failed during conflict resolution", "error", err)
		run.result.Outcome = OutcomeRemoteUnreachable
	default:
		if err != nil {
			o.logger.Warn("conflict resolution failed", "error", err)
		}
		run.result.Outcome = OutcomeConflictUnresolved
	}
	return stepDone, nil
}

// finishDryRun logs the staged plan without mutating anything.
func (o *Orchestrator) finishDryRun(run *runState) step {
	for _, p := range run.toStage {
		o.logger.Info("[dry-run] would stage", "path", p)
	}
	if len(run.toStage) == 0 {
		o.logger.Info("[dry-run] nothing to commit")
		run.result.Outcome = OutcomeNoOp
		return stepDone
	}
	if run.path == pathRemote {
		o.logger.Info("[dry-run] would commit and push",
			"files", len(run.toStage),
			"branch", run.result.TargetBranch)
	} else {
		o.logger.Info("[dry-run] would commit locally",
			"files", len(run.toStage),
			"branch", run.result.TargetBranch)
	}
	run.result.Outcome = OutcomeSuccess
	return stepDone
}

// commitMessage resolves the configured commit message, falling back to the
// path-appropriate default.
func (o *Orchestrator) commitMessage(fallback string) string {
	if o.cfg.Commit.Message != "" {
		return o.cfg.Commit.Message
	}
	return fallback
}

// targetBranch picks the branch recovered commits land on. An explicit
// configuration wins; otherwise the remote's default branch is adopted,
// with "main" covering empty and undiscoverable remotes.
func (o *Orchestrator) targetBranch(ctx context.Context) string {
	if o.cfg.Remote.Branch != "" {
		return o.cfg.Remote.Branch
	}
	branch, err := o.inspector.RemoteDefaultBranch(ctx, o.cfg.Remote.URL)
	if err != nil || branch == "" {
		return defaultBranch
	}
	o.logger.Info("adopting remote default branch", "branch", branch)
	return branch
}

// recordWarnings logs every skipped file and keeps it on the result so
// callers can report a summary. A file excluded from recovery is never
// silent.
func (o *Orchestrator) recordWarnings(run *runState, warnings []scan.Warning) {
	for _, w := range warnings {
		o.logger.Warn("skipping unreadable file", "path", w.Path, "error", w.Err)
	}
	run.result.Warnings = append(run.result.Warnings, warnings...)
}

// loadRules reads the project ignore file. Projects without one get the
// default pattern set so scratch artifacts stay out of recovery commits.
func (o *Orchestrator) loadRules(dir string) *scan.RuleSet {
	path := filepath.Join(dir, o.cfg.Ignore.File)

	var rules *scan.RuleSet
	if _, err := os.Stat(path); os.IsNotExist(err) {
		rules = scan.NewRuleSet(scan.DefaultPatterns)
	} else {
		var loadErr error
		rules, loadErr = scan.LoadRuleSet(path)
		if loadErr != nil {
			o.logger.Warn("failed to read ignore file, using default patterns",
				"path", path, "error", loadErr)
			rules = scan.NewRuleSet(scan.DefaultPatterns)
		}
	}
	rules.Add(o.cfg.Ignore.Patterns...)
	return rules
}
