package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/1BitCode-Com/git-onboard/internal/git"
	"github.com/1BitCode-Com/git-onboard/internal/scan"
)

// Reconciler compares the local tree against a shallow snapshot of the
// remote and classifies every non-ignored local file.
type Reconciler struct {
	client  git.Client
	depth   int
	timeout time.Duration
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler fetching remote snapshots through
// client with the given history depth and per-fetch timeout.
func NewReconciler(client git.Client, depth int, timeout time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		client:  client,
		depth:   depth,
		timeout: timeout,
		logger:  logger,
	}
}

// Reconcile snapshots both trees with the same ignore rules and partitions
// the local files into additions, modifications and unchanged content.
// Files that exist only remotely are not part of the result; pushing never
// deletes. Per-file read problems become warnings, not errors. The remote
// snapshot lives in a temporary directory that is removed on every return
// path.
func (r *Reconciler) Reconcile(ctx context.Context, localRoot, remoteURL string, rules *scan.RuleSet) (*ChangeSet, []scan.Warning, error) {
	local, warnings, err := scan.Snapshot(localRoot, rules)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot local tree: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "onboard-clone-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temporary clone directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			r.logger.Warn("failed to remove temporary clone directory", "dir", tempDir, "error", err)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.CloneShallow(fetchCtx, remoteURL, tempDir, r.depth); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch remote snapshot: %w", err)
	}

	remote, remoteWarnings, err := scan.Snapshot(tempDir, rules)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot remote clone: %w", err)
	}
	warnings = append(warnings, remoteWarnings...)

	changes := classify(local, remote)
	r.logger.Debug("reconciliation finished",
		"local_files", len(local),
		"remote_files", len(remote),
		"to_add", len(changes.ToAdd),
		"to_modify", len(changes.ToModify),
		"unchanged", len(changes.Unchanged))
	return changes, warnings, nil
}

// classify partitions the local records by the remote's content hashes.
// Ignored records never enter the result on either side.
func classify(local, remote []scan.FileRecord) *ChangeSet {
	remoteHashes := make(map[string]string, len(remote))
	for _, rec := range remote {
		if rec.Ignored {
			continue
		}
		remoteHashes[rec.RelPath] = rec.Hash
	}

	changes := &ChangeSet{}
	for _, rec := range local {
		if rec.Ignored {
			continue
		}
		remoteHash, exists := remoteHashes[rec.RelPath]
		switch {
		case !exists:
			changes.ToAdd = append(changes.ToAdd, rec)
		case remoteHash != rec.Hash:
			changes.ToModify = append(changes.ToModify, rec)
		default:
			changes.Unchanged = append(changes.Unchanged, rec)
		}
	}
	return changes
}
