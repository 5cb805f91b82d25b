package agentclient

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func testAgent() v1.Agent {
	return v1.Agent{Name: "A", SystemPrompt: "Echo.", Role: v1.AgentRoleWorker, Model: "default"}
}

func drain(s *Stream) []string {
	var out []string
	for c := range s.Chunks() {
		out = append(out, c)
	}
	return out
}

func TestRunEchoesChunks(t *testing.T) {
	backend := &StubBackend{Reply: "hello world", ChunkSize: 5}
	c := NewClient(backend, nil, nil, 0, nil)

	s, err := c.Run(context.Background(), testAgent(), "hello world", "", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	chunks := drain(s)
	final, usage, err := s.Wait()
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if final != "hello world" {
		t.Errorf("final text = %q, want %q", final, "hello world")
	}
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}
	if usage.Output == 0 {
		t.Error("expected non-zero output token estimate")
	}
}

func TestRunBackendError(t *testing.T) {
	backend := &StubBackend{Reply: "partial", Err: errors.New("vendor exploded")}
	c := NewClient(backend, nil, nil, 0, nil)

	s, err := c.Run(context.Background(), testAgent(), "task", "", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	drain(s)
	_, _, err = s.Wait()

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAgentInternal {
		t.Fatalf("expected AgentInternal error, got %v", err)
	}
}

func TestRunCancellation(t *testing.T) {
	started := make(chan struct{})
	backend := &StubBackend{
		Reply:     "aaaaaaaaaa",
		ChunkSize: 1,
		Delay: func() {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(5 * time.Millisecond)
		},
	}
	c := NewClient(backend, nil, nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.Run(ctx, testAgent(), "task", "", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	go func() {
		<-started
		cancel()
	}()
	drain(s)
	_, _, err = s.Wait()

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAgentCancelled {
		t.Fatalf("expected AgentCancelled error, got %v", err)
	}
}

func TestRunCredentialRestoreFailure(t *testing.T) {
	restore := func(ctx context.Context) error { return errors.New("no profile selected") }
	c := NewClient(&StubBackend{}, nil, restore, 0, nil)

	_, err := c.Run(context.Background(), testAgent(), "task", "", "")
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAgentUnavailable {
		t.Fatalf("expected AgentUnavailable error, got %v", err)
	}
}
