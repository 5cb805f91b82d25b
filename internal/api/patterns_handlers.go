package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// singleBlockDesign wraps one direct pattern request in a one-block Design
// so the same deployment.Executor that drives full designs also drives
// direct pattern calls: one trigger/poll/stream lifecycle for both.
func singleBlockDesign(pattern v1.Pattern, req PatternRequest) *v1.Design {
	block := req.toBlock(pattern)
	return &v1.Design{ID: "direct-" + string(pattern), Blocks: []v1.Block{block}}
}

func (s *Server) executePattern(patternName string) gin.HandlerFunc {
	pattern := v1.Pattern(patternName)
	return func(c *gin.Context) {
		var req PatternRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.BadRequest(err.Error()))
			return
		}

		d := singleBlockDesign(pattern, req)
		start := time.Now()
		executionID := s.Executor.Trigger(c.Request.Context(), d, req.Task, nil)

		exec, err := s.awaitTerminal(c.Request.Context(), executionID)
		if err != nil {
			c.Error(apperrors.ExecutionFailed(executionID, err))
			return
		}

		result := exec.ResultData.Results[d.Blocks[0].ID]
		c.JSON(http.StatusOK, PatternResponse{
			Pattern:     pattern,
			ExecutionID: executionID,
			Status:      string(exec.Status),
			Result:      result,
			DurationMS:  time.Since(start).Milliseconds(),
			CreatedAt:   exec.StartedAt.UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) streamPattern(patternName string) gin.HandlerFunc {
	pattern := v1.Pattern(patternName)
	return func(c *gin.Context) {
		var req PatternRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.BadRequest(err.Error()))
			return
		}

		d := singleBlockDesign(pattern, req)
		executionID := s.Executor.Trigger(c.Request.Context(), d, req.Task, nil)

		if err := s.Hub.ServeExecution(c.Writer, c.Request, executionID); err != nil {
			s.Log.Warn("sse stream ended with error", zap.String("execution_id", executionID), zap.Error(err))
		}
	}
}

// awaitTerminal polls the event log store for a terminal execution record.
// Non-streaming pattern endpoints are synchronous by contract (spec.md
// §6), so the HTTP call blocks until the single block finishes.
func (s *Server) awaitTerminal(ctx context.Context, executionID string) (*v1.Execution, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		exec, err := s.Executor.Status(ctx, executionID)
		if err == nil && exec.Status.Terminal() {
			return exec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
