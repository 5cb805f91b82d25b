package agentclient

import "context"

// BackendRequest is the vendor-agnostic shape of one agent turn.
type BackendRequest struct {
	Model        string
	SystemPrompt string
	Task         string
	Context      string
	Cwd          string
}

// BackendChunk is one fragment of a streaming completion. A non-nil Err
// terminates the stream; the backend must not send further chunks after it.
type BackendChunk struct {
	Text string
	Err  error
}

// LLMBackend is the opaque vendor capability the agent client wraps. The
// vendor's wire protocol is out of scope for this engine; only this
// interface is.
type LLMBackend interface {
	// Stream sends req to the backend and returns a channel of chunks. The
	// channel is closed once the completion (or a terminal error) has been
	// sent. Implementations must stop sending once ctx is done.
	Stream(ctx context.Context, req BackendRequest) (<-chan BackendChunk, error)
}

// StubBackend is a deterministic LLMBackend for tests: it echoes the task
// back, optionally split into multiple chunks, with a configurable per-call
// error and latency hook.
type StubBackend struct {
	// Reply, if set, is returned verbatim. Otherwise the task is echoed.
	Reply string
	// ChunkSize splits the reply into fragments of this size; 0 means one
	// chunk.
	ChunkSize int
	// Err, if set, is sent as the terminal chunk instead of completing.
	Err error
	// Delay, if non-nil, is invoked before each chunk is sent so tests can
	// synchronize with cancellation without sleeping arbitrarily.
	Delay func()
}

func (b *StubBackend) Stream(ctx context.Context, req BackendRequest) (<-chan BackendChunk, error) {
	out := make(chan BackendChunk, 4)
	reply := b.Reply
	if reply == "" {
		reply = req.Task
	}

	go func() {
		defer close(out)

		chunks := splitChunks(reply, b.ChunkSize)
		for _, c := range chunks {
			if b.Delay != nil {
				b.Delay()
			}
			select {
			case <-ctx.Done():
				out <- BackendChunk{Err: ctx.Err()}
				return
			case out <- BackendChunk{Text: c}:
			}
		}
		if b.Err != nil {
			out <- BackendChunk{Err: b.Err}
		}
	}()

	return out, nil
}

func splitChunks(text string, size int) []string {
	if size <= 0 || size >= len(text) {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var chunks []string
	for i := 0; i < len(text); i += size {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[i:end])
	}
	return chunks
}
