package broker

import (
	"context"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/google/uuid"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/design"
	v1 "github.com/kandev/conductor/pkg/api/v1"
	"go.uber.org/zap"
)

// LocalWorkspaces is the default WorkspaceProvider: a shallow (depth 1)
// clone of a block's declared git_repo into a fresh, uniquely-named
// directory, or the configured project root when no repo is declared.
// Acquisition and release are paired — release deletes the directory
// recursively on every exit path.
type LocalWorkspaces struct {
	ProjectRoot string
	BaseDir     string // parent directory for ephemeral clones; os.TempDir() if empty
	Log         *logger.Logger
}

var _ design.WorkspaceProvider = (*LocalWorkspaces)(nil)

// Acquire implements design.WorkspaceProvider.
func (w *LocalWorkspaces) Acquire(ctx context.Context, block v1.Block) (string, func(), error) {
	log := w.log()

	if block.GitRepo == "" {
		root := w.ProjectRoot
		if root == "" {
			root = "."
		}
		return root, func() {}, nil
	}

	base := w.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "conductor-workspace-"+uuid.NewString())

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   block.GitRepo,
		Depth: 1,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, apperrors.WorkspaceUnavailable(block.GitRepo, err)
	}

	release := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("workspace cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return dir, release, nil
}

func (w *LocalWorkspaces) log() *logger.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logger.Default().WithFields(zap.String("component", "broker.workspace"))
}
