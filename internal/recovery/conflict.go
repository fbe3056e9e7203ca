package recovery

import (
	"context"
	"log/slog"

	"github.com/1BitCode-Com/git-onboard/internal/git"
)

// Resolution is a caller decision for a rejected push.
type Resolution int

const (
	// ResolutionAbort leaves the conflict standing.
	ResolutionAbort Resolution = iota
	// ResolutionMerge pulls the remote history into the local branch and
	// retries the push.
	ResolutionMerge
	// ResolutionForce overwrites the remote history.
	ResolutionForce
)

func (r Resolution) String() string {
	switch r {
	case ResolutionMerge:
		return "merge"
	case ResolutionForce:
		return "force"
	default:
		return "abort"
	}
}

// ConflictResolver decides how to proceed when a push is rejected because
// the remote holds commits the local history does not. Forcing is never
// chosen by this package on its own; it only happens when a resolver asks
// for it.
type ConflictResolver interface {
	Resolve(branch string) Resolution
}

// ResolverFunc adapts a function to the ConflictResolver interface.
type ResolverFunc func(branch string) Resolution

func (f ResolverFunc) Resolve(branch string) Resolution {
	return f(branch)
}

// PushStatus reports how a push with conflict resolution concluded.
type PushStatus int

const (
	// PushOK means the branch was pushed, possibly after a merge.
	PushOK PushStatus = iota
	// PushForced means the branch was pushed with --force on the
	// resolver's request.
	PushForced
	// PushAborted means the resolver chose to leave the conflict alone.
	PushAborted
	// PushUnresolved means every resolution attempt failed.
	PushUnresolved
	// PushFailed means the push failed for reasons other than divergence,
	// such as network or authentication problems.
	PushFailed
)

// conflictAttempts bounds the resolution rounds for one rejected push: a
// failed resolution is retried once, then the conflict stands.
const conflictAttempts = 2

// PushWithResolution pushes branch and, when the push is rejected because
// of diverged history, applies the resolver's decisions until one works or
// the attempts run out.
func PushWithResolution(ctx context.Context, client git.Client, logger *slog.Logger, dir, remote, branch string, resolver ConflictResolver) (PushStatus, error) {
	err := client.Push(ctx, dir, remote, branch, false)
	if err == nil {
		return PushOK, nil
	}
	if !git.IsPushRejected(err) {
		return PushFailed, err
	}
	logger.Warn("push rejected, remote holds commits missing locally", "branch", branch)
	return ResolveConflict(ctx, client, logger, dir, remote, branch, resolver)
}

// ResolveConflict drives the resolution loop for a push already known to be
// rejected. A nil resolver aborts immediately.
func ResolveConflict(ctx context.Context, client git.Client, logger *slog.Logger, dir, remote, branch string, resolver ConflictResolver) (PushStatus, error) {
	if resolver == nil {
		resolver = ResolverFunc(func(string) Resolution { return ResolutionAbort })
	}

	var lastErr error
	for attempt := 0; attempt < conflictAttempts; attempt++ {
		resolution := resolver.Resolve(branch)
		logger.Info("applying conflict resolution", "resolution", resolution.String(), "branch", branch)

		switch resolution {
		case ResolutionAbort:
			return PushAborted, nil

		case ResolutionMerge:
			if err := client.Pull(ctx, dir, remote, branch, true); err != nil {
				logger.Warn("failed to merge remote changes", "branch", branch, "error", err)
				lastErr = err
				continue
			}
			err := client.Push(ctx, dir, remote, branch, false)
			if err == nil {
				return PushOK, nil
			}
			if !git.IsPushRejected(err) {
				return PushFailed, err
			}
			logger.Warn("push rejected again after merge", "branch", branch)
			lastErr = err

		case ResolutionForce:
			logger.Warn("force pushing, remote history will be overwritten", "branch", branch)
			err := client.Push(ctx, dir, remote, branch, true)
			if err == nil {
				return PushForced, nil
			}
			if !git.IsPushRejected(err) {
				return PushFailed, err
			}
			lastErr = err
		}
	}
	return PushUnresolved, lastErr
}
