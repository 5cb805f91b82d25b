package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/conductor/internal/common/config"
	apperrors "github.com/kandev/conductor/internal/common/errors"
	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/design"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Manager is the opt-in sandboxed design.WorkspaceProvider: each acquired
// block gets its own clone (or project root bind) on the host plus a
// short-lived container mounting that directory, so agent-driven shell
// access — when a backend exercises it — is confined to the container.
// Started containers are tracked in memory until released, so Shutdown can
// stop any still running when this process exits mid-run.
type Manager struct {
	docker      *Client
	projectRoot string
	baseDir     string
	image       string
	log         *logger.Logger

	mu         sync.Mutex
	containers map[string]string // workspace dir -> container id
}

var _ design.WorkspaceProvider = (*Manager)(nil)

// NewManager builds a sandboxed workspace provider from Docker settings.
func NewManager(cfg config.DockerConfig, projectRoot, baseDir string, log *logger.Logger) (*Manager, error) {
	docker, err := NewClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("building sandbox docker client: %w", err)
	}
	image := cfg.Image
	if image == "" {
		image = "conductor/sandbox:latest"
	}
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		docker:      docker,
		projectRoot: projectRoot,
		baseDir:     baseDir,
		image:       image,
		log:         log.WithFields(zap.String("component", "broker.sandbox.manager")),
		containers:  make(map[string]string),
	}, nil
}

// Acquire implements design.WorkspaceProvider: clone (or bind the project
// root) on the host, then start a container mounting that directory at a
// fixed in-container path, which is what's returned as cwd.
func (m *Manager) Acquire(ctx context.Context, block v1.Block) (string, func(), error) {
	const inContainerDir = "/workspace"

	hostDir, cleanupClone, err := m.hostDir(ctx, block)
	if err != nil {
		return "", nil, err
	}

	name := "conductor-sandbox-" + uuid.NewString()
	containerID, err := m.docker.StartSandbox(ctx, ContainerConfig{
		Name:       name,
		Image:      m.image,
		WorkingDir: inContainerDir,
		HostDir:    hostDir,
		Labels:     map[string]string{"conductor.block_id": block.ID},
	})
	if err != nil {
		cleanupClone()
		return "", nil, apperrors.WorkspaceUnavailable(block.GitRepo, err)
	}

	m.mu.Lock()
	m.containers[hostDir] = containerID
	m.mu.Unlock()

	release := func() {
		stopCtx := context.Background()
		if err := m.docker.StopSandbox(stopCtx, containerID); err != nil {
			m.log.Warn("sandbox container teardown failed", zap.String("container_id", containerID), zap.Error(err))
		}
		m.mu.Lock()
		delete(m.containers, hostDir)
		m.mu.Unlock()
		cleanupClone()
	}
	return inContainerDir, release, nil
}

// hostDir clones block.GitRepo into a fresh directory, or binds the
// configured project root when the block declares no repository.
func (m *Manager) hostDir(ctx context.Context, block v1.Block) (string, func(), error) {
	if block.GitRepo == "" {
		root := m.projectRoot
		if root == "" {
			root = "."
		}
		return root, func() {}, nil
	}

	base := m.baseDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "conductor-sandbox-src-"+uuid.NewString())

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   block.GitRepo,
		Depth: 1,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, apperrors.WorkspaceUnavailable(block.GitRepo, err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			m.log.Warn("sandbox source cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return dir, cleanup, nil
}

// Shutdown stops and removes every container this Manager still tracks
// (acquired workspaces whose release has not run). Containers started by an
// earlier process are not tracked and are not touched.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.containers))
	for _, id := range m.containers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.docker.StopSandbox(ctx, id); err != nil {
			m.log.Warn("sandbox shutdown: stop failed", zap.String("container_id", id), zap.Error(err))
		}
	}
}
