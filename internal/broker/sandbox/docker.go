// Package sandbox provides an optional per-block container isolation
// driver: a short-lived container bind-mounting the block's workspace for
// the duration of its agent calls.
package sandbox

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/kandev/conductor/internal/common/config"
	"github.com/kandev/conductor/internal/common/logger"
)

// ContainerConfig describes the sandbox container to create for one block.
type ContainerConfig struct {
	Name       string
	Image      string
	WorkingDir string
	HostDir    string // bind-mounted at WorkingDir
	Env        []string
	Labels     map[string]string
}

// Client wraps the Docker SDK for per-block sandbox container lifecycle:
// create, start, stop, remove — no exec/attach, since the agent call itself
// goes through agentclient.LLMBackend, not a process inside the container.
type Client struct {
	cli *client.Client
	log *logger.Logger
	cfg config.DockerConfig
}

// NewClient builds a sandbox Client.
func NewClient(cfg config.DockerConfig, log *logger.Logger) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	if log == nil {
		log = logger.Default()
	}
	return &Client{cli: cli, log: log.WithFields(zap.String("component", "broker.sandbox")), cfg: cfg}, nil
}

// Ping checks that the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// StartSandbox creates and starts a container bind-mounting cfg.HostDir at
// cfg.WorkingDir, and returns its container id.
func (c *Client) StartSandbox(ctx context.Context, cfg ContainerConfig) (string, error) {
	containerCfg := &container.Config{
		Image:      cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		Env:        cfg.Env,
		WorkingDir: cfg.WorkingDir,
		Labels:     cfg.Labels,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: cfg.HostDir,
			Target: cfg.WorkingDir,
		}},
		AutoRemove: false,
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("creating sandbox container %s: %w", cfg.Name, err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting sandbox container %s: %w", resp.ID, err)
	}

	c.log.Info("sandbox container started", zap.String("container_id", resp.ID), zap.String("name", cfg.Name))
	return resp.ID, nil
}

// StopSandbox stops and removes a sandbox container. Errors are returned,
// not swallowed — the caller (sandbox.Manager) logs and proceeds per the
// broker's release-failures-are-logged-not-propagated policy.
func (c *Client) StopSandbox(ctx context.Context, containerID string) error {
	timeout := 5
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stopping sandbox container %s: %w", containerID, err)
	}
	if err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("removing sandbox container %s: %w", containerID, err)
	}
	c.log.Info("sandbox container stopped", zap.String("container_id", containerID))
	return nil
}
