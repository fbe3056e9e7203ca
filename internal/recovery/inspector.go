package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/1BitCode-Com/git-onboard/internal/git"
)

// Inspector answers the two questions every recovery run starts with: does
// the project carry version-control metadata, and can the remote be reached.
type Inspector struct {
	client  git.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewInspector creates an Inspector probing remotes through client with the
// given per-probe timeout.
func NewInspector(client git.Client, timeout time.Duration, logger *slog.Logger) *Inspector {
	return &Inspector{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Inspect reports whether version-control metadata exists at projectPath.
// Only an unusable project root is an error; a missing .git directory is
// the StateAbsent answer, not a failure.
func (i *Inspector) Inspect(projectPath string) (RepoState, error) {
	info, err := os.Stat(projectPath)
	if err != nil {
		return StateAbsent, fmt.Errorf("failed to inspect project directory: %w", err)
	}
	if !info.IsDir() {
		return StateAbsent, fmt.Errorf("project path %s is not a directory", projectPath)
	}

	gitInfo, err := os.Stat(filepath.Join(projectPath, ".git"))
	if err != nil {
		if os.IsNotExist(err) {
			return StateAbsent, nil
		}
		return StateAbsent, fmt.Errorf("failed to inspect repository metadata: %w", err)
	}
	if !gitInfo.IsDir() {
		// A .git file (worktree or submodule pointer) is not metadata this
		// tool can rebuild from.
		return StateAbsent, nil
	}
	return StatePresent, nil
}

// ProbeRemote classifies the remote at url. Probe failures and timeouts map
// to RemoteStatusUnreachable; they are never raised as errors.
func (i *Inspector) ProbeRemote(ctx context.Context, url string) RemoteStatus {
	if url == "" {
		return RemoteStatusNoneConfigured
	}

	probeCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if _, err := i.client.RemoteHead(probeCtx, url); err != nil {
		i.logger.Debug("remote probe failed", "url", git.Redact(url), "error", err)
		return RemoteStatusUnreachable
	}
	return RemoteStatusReachable
}

// RemoteDefaultBranch returns the branch the remote's HEAD names, or ""
// for a reachable remote without commits.
func (i *Inspector) RemoteDefaultBranch(ctx context.Context, url string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	return i.client.RemoteHead(probeCtx, url)
}
