package eventlog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kandev/conductor/internal/common/logger"
	v1 "github.com/kandev/conductor/pkg/api/v1"
	"go.uber.org/zap"
)

const (
	sseKeepAlive = 15 * time.Second
	clientBuffer = 64
)

// SSEClient represents one connected Server-Sent-Events subscriber. Unlike
// the teacher's websocket Client, there is no ReadPump: SSE is
// server-to-client only, so the connection's only job is draining send
// until the request context is cancelled.
type SSEClient struct {
	executionID string
	send        chan v1.ExecutionEvent
	logger      *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// Send enqueues an event for delivery, dropping it if the client's buffer is
// full rather than blocking the publisher.
func (c *SSEClient) Send(event v1.ExecutionEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		c.logger.Warn("dropping SSE event, client buffer full", zap.String("execution_id", c.executionID))
		return false
	}
}

func (c *SSEClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub streams Bus events to HTTP clients over SSE, scoped per execution_id.
type Hub struct {
	bus *Bus
	log *logger.Logger
}

// NewHub builds an SSE hub over bus.
func NewHub(bus *Bus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{bus: bus, log: log.WithFields(zap.String("component", "eventlog.sse"))}
}

// ServeExecution streams executionID's events to w as SSE, replaying the
// in-memory backlog first, then every live event until the request context
// is done or a terminal event (complete/error) is delivered.
func (h *Hub) ServeExecution(w http.ResponseWriter, r *http.Request, executionID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &SSEClient{
		executionID: executionID,
		send:        make(chan v1.ExecutionEvent, clientBuffer),
		logger:      h.log,
	}
	// Subscribing and snapshotting the backlog must happen atomically: doing
	// them as two separate Bus calls would let an event published in between
	// land in both the backlog (replayed below) and the live feed (delivered
	// through client.send), double-delivering it to this client.
	backlog, unsubscribe := h.bus.SubscribeWithBacklog(executionID, func(e v1.ExecutionEvent) { client.Send(e) })
	defer unsubscribe()
	defer client.close()

	for _, e := range backlog {
		if err := writeSSE(w, e); err != nil {
			return err
		}
		if e.Kind == v1.EventComplete || e.Kind == v1.EventError {
			flusher.Flush()
			return nil
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case e, ok := <-client.send:
			if !ok {
				return nil
			}
			if err := writeSSE(w, e); err != nil {
				return err
			}
			flusher.Flush()
			if e.Kind == v1.EventComplete || e.Kind == v1.EventError {
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e v1.ExecutionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
	return err
}
