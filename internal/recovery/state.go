// Package recovery rebuilds version-control metadata for projects whose
// .git directory was lost while the working files survived. It inspects
// the local state, probes the configured remote, reconciles file content
// against a remote snapshot, and drives the stage/commit/push sequence,
// falling back to a local-only repository whenever the remote cannot help.
package recovery

import (
	"github.com/1BitCode-Com/git-onboard/internal/scan"
)

// RepoState describes whether version-control metadata exists locally.
type RepoState int

const (
	// StateAbsent means the project has no .git directory.
	StateAbsent RepoState = iota
	// StatePresent means version-control metadata exists.
	StatePresent
)

func (s RepoState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return "invalid"
	}
}

// RemoteStatus classifies the configured remote at probe time.
type RemoteStatus int

const (
	// RemoteStatusUnknown means the remote has not been probed.
	RemoteStatusUnknown RemoteStatus = iota
	// RemoteStatusNoneConfigured means no remote URL was supplied.
	RemoteStatusNoneConfigured
	// RemoteStatusReachable means the remote answered the probe. A
	// reachable remote may still be empty.
	RemoteStatusReachable
	// RemoteStatusUnreachable means the probe failed or timed out.
	RemoteStatusUnreachable
)

func (s RemoteStatus) String() string {
	switch s {
	case RemoteStatusNoneConfigured:
		return "none-configured"
	case RemoteStatusReachable:
		return "reachable"
	case RemoteStatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Outcome classifies how a recovery run ended.
type Outcome int

const (
	// OutcomeNotApplicable means metadata was already present; normal
	// onboarding handles the project instead.
	OutcomeNotApplicable Outcome = iota
	// OutcomeNoOp means metadata was rebuilt but nothing needed committing.
	OutcomeNoOp
	// OutcomeSuccess means changes were committed, and pushed when a
	// remote took part in the run.
	OutcomeSuccess
	// OutcomeConflictUnresolved means a push conflict remained after the
	// caller's resolution attempts.
	OutcomeConflictUnresolved
	// OutcomeRemoteUnreachable means the final push failed for reasons
	// other than diverged history.
	OutcomeRemoteUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotApplicable:
		return "not-applicable"
	case OutcomeNoOp:
		return "no-op"
	case OutcomeSuccess:
		return "success"
	case OutcomeConflictUnresolved:
		return "conflict-unresolved"
	case OutcomeRemoteUnreachable:
		return "remote-unreachable"
	default:
		return "invalid"
	}
}

// ChangeSet partitions the non-ignored local files against the remote
// snapshot. It is built once per reconciliation pass and never mutated
// afterwards.
type ChangeSet struct {
	// ToAdd holds files that exist locally but not remotely.
	ToAdd []scan.FileRecord
	// ToModify holds files present on both sides with differing content.
	ToModify []scan.FileRecord
	// Unchanged holds files whose content matches the remote exactly.
	Unchanged []scan.FileRecord
}

// HasChanges reports whether anything needs staging.
func (c *ChangeSet) HasChanges() bool {
	return len(c.ToAdd)+len(c.ToModify) > 0
}

// ChangedPaths returns the relative paths to stage: additions first, then
// modifications, each in snapshot order.
func (c *ChangeSet) ChangedPaths() []string {
	paths := make([]string, 0, len(c.ToAdd)+len(c.ToModify))
	for _, rec := range c.ToAdd {
		paths = append(paths, rec.RelPath)
	}
	for _, rec := range c.ToModify {
		paths = append(paths, rec.RelPath)
	}
	return paths
}

// Plan captures what a recovery run decided before mutating anything. It
// lives for exactly one run; nothing persists across runs except the log
// file and the repository metadata left on disk.
type Plan struct {
	RemoteStatus RemoteStatus
	TargetBranch string
	// Changes is nil exactly when no remote is configured; an unreachable
	// remote yields a vacuous set with every surviving file in ToAdd.
	Changes *ChangeSet
}

// Result reports how a recovery run ended.
type Result struct {
	Outcome      Outcome
	TargetBranch string
	// ForcedPush is set when conflict resolution overwrote remote history.
	ForcedPush bool
	// Warnings lists per-file problems that did not stop the run.
	Warnings []scan.Warning
}
