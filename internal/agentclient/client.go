// Package agentclient executes one agent's turn against an opaque LLM
// backend: streaming, cancellation and usage accounting are this package's
// contribution: the backend is solely responsible for what actually gets
// said.
package agentclient

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	"github.com/kandev/conductor/internal/common/logger"
	v1 "github.com/kandev/conductor/pkg/api/v1"
	"go.uber.org/zap"
)

// CredentialRestoreFunc materializes the currently selected credential
// profile at its conventional location. Called once before every agent
// call; implementations must be idempotent (see broker.Restore).
type CredentialRestoreFunc func(ctx context.Context) error

// Client wraps an LLMBackend with streaming, cancellation, timeout and
// usage accounting.
type Client struct {
	backend  LLMBackend
	registry *Registry
	restore  CredentialRestoreFunc
	timeout  time.Duration
	log      *logger.Logger

	// sem bounds in-flight agent calls across the process, independent of
	// any single execution's block-level parallelism cap. Nil means
	// unbounded.
	sem chan struct{}
}

// NewClient builds a Client. restore may be nil, in which case the
// credential-restore hook is skipped (tests only; production wiring always
// supplies one).
func NewClient(backend LLMBackend, registry *Registry, restore CredentialRestoreFunc, timeout time.Duration, log *logger.Logger) *Client {
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Client{backend: backend, registry: registry, restore: restore, timeout: timeout, log: log.WithFields(zap.String("component", "agentclient"))}
}

// SetMaxConcurrency bounds the number of agent calls in flight across the
// process at any one time. n <= 0 removes the bound.
func (c *Client) SetMaxConcurrency(n int) {
	if n <= 0 {
		c.sem = nil
		return
	}
	c.sem = make(chan struct{}, n)
}

// Stream is the lazy handle returned by Run: chunks arrive on Chunks() as
// they are produced, and Wait blocks until the stream is drained, returning
// the concatenated final text and usage.
type Stream struct {
	chunks    chan string
	done      chan struct{}
	finalText string
	usage     v1.Usage
	err       error
}

// Chunks returns the ordered channel of text fragments. The channel is
// closed when the stream terminates, successfully or not.
func (s *Stream) Chunks() <-chan string { return s.chunks }

// Wait blocks until the stream has been fully drained and returns the
// concatenation of all chunks, the accounted usage, and any terminal error.
// Callers that have not drained Chunks() will block here until the
// producer goroutine finishes pushing output — draining and waiting are
// meant to happen concurrently.
func (s *Stream) Wait() (string, v1.Usage, error) {
	<-s.done
	return s.finalText, s.usage, s.err
}

// Run executes one agent turn. The returned Stream must be drained (or
// Run's caller must stop reading and let the caller's ctx cancellation
// unblock the producer) — an undrained stream with a slow consumer stalls
// the underlying call rather than buffering without bound.
func (c *Client) Run(ctx context.Context, agent v1.Agent, task, agentContext, cwd string) (*Stream, error) {
	if c.restore != nil {
		if err := c.restore(ctx); err != nil {
			return nil, apperrors.AgentUnavailable(agent.Name, err)
		}
	}

	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, apperrors.AgentCancelled(agent.Name)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	model := c.registry.Get(agent.Model)

	backendChunks, err := c.backend.Stream(runCtx, BackendRequest{
		Model:        model.ID,
		SystemPrompt: agent.SystemPrompt,
		Task:         task,
		Context:      agentContext,
		Cwd:          cwd,
	})
	if err != nil {
		if cancel != nil {
			cancel()
		}
		c.release()
		return nil, apperrors.AgentUnavailable(agent.Name, err)
	}

	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.chunks)
		if cancel != nil {
			defer cancel()
		}
		defer close(s.done)
		defer c.release()

		var builder strings.Builder
		var streamErr error

	relay:
		for {
			select {
			case chunk, ok := <-backendChunks:
				if !ok {
					break relay
				}
				if chunk.Err != nil {
					streamErr = c.classify(agent.Name, runCtx, ctx, chunk.Err)
					break relay
				}
				builder.WriteString(chunk.Text)
				select {
				case s.chunks <- chunk.Text:
				case <-ctx.Done():
					streamErr = c.classify(agent.Name, runCtx, ctx, ctx.Err())
					break relay
				}
			case <-ctx.Done():
				streamErr = c.classify(agent.Name, runCtx, ctx, ctx.Err())
				break relay
			}
		}

		s.finalText = builder.String()
		s.err = streamErr
		s.usage = c.accountUsage(model, agent, task, agentContext, s.finalText)
	}()

	return s, nil
}

// classify turns a backend or context error into the agent client's error
// taxonomy. A cancellation originating from the caller's ctx (not just the
// per-call timeout) is reported as AgentCancelled; a backend sentinel
// (ErrAgentUnavailable, ErrAgentTimeout, ErrAgentCancelled) maps to its
// matching code; a timeout derived solely from the call's own deadline is
// AgentTimeout; anything else is a vendor protocol failure.
func (c *Client) classify(agentName string, runCtx, callerCtx context.Context, err error) error {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		return apperrors.AgentCancelled(agentName)
	}
	switch {
	case errors.Is(err, ErrAgentUnavailable):
		return apperrors.AgentUnavailable(agentName, err)
	case errors.Is(err, ErrAgentTimeout):
		return apperrors.AgentTimeout(agentName)
	case errors.Is(err, ErrAgentCancelled):
		return apperrors.AgentCancelled(agentName)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return apperrors.AgentTimeout(agentName)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.AgentCancelled(agentName)
	}
	return apperrors.AgentInternal(agentName, err)
}

func (c *Client) release() {
	if c.sem != nil {
		<-c.sem
	}
}

func (c *Client) accountUsage(model *ModelConfig, agent v1.Agent, task, agentContext, output string) v1.Usage {
	input := estimator.Count(model.TiktokenEncoding, agent.SystemPrompt+"\n"+agentContext+"\n"+task)
	out := estimator.Count(model.TiktokenEncoding, output)
	return v1.Usage{
		Input:            input,
		Output:           out,
		TotalTokens:      input + out,
		EstimatedCostUSD: float64(input)*model.PricePerInputToken + float64(out)*model.PricePerOutputToken,
	}
}
