package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/kandev/conductor/internal/common/errors"
)

// executeDesign handles POST /designs/{id}/execute.
func (s *Server) executeDesign(c *gin.Context) {
	id := c.Param("id")

	d, err := s.Designs.Get(id)
	if err != nil {
		c.Error(apperrors.NotFound("design", id))
		return
	}

	var req ExecuteDesignRequest
	// The body is optional: a design may be triggered with no override task.
	_ = c.ShouldBindJSON(&req)

	executionID := s.Executor.Trigger(c.Request.Context(), d, req.Task, nil)

	c.JSON(http.StatusOK, ExecuteDesignResponse{
		ExecutionID: executionID,
		StatusURL:   fmt.Sprintf("/executions/%s", executionID),
	})
}

// getExecution handles GET /executions/{execution_id}.
func (s *Server) getExecution(c *gin.Context) {
	executionID := c.Param("execution_id")

	exec, err := s.Executor.Status(c.Request.Context(), executionID)
	if err != nil {
		c.Error(apperrors.NotFound("execution", executionID))
		return
	}

	c.JSON(http.StatusOK, exec)
}

// streamExecution handles GET /executions/{execution_id}/stream, replaying
// backlog then tailing live events via server-sent events.
func (s *Server) streamExecution(c *gin.Context) {
	executionID := c.Param("execution_id")
	if err := s.Hub.ServeExecution(c.Writer, c.Request, executionID); err != nil {
		s.Log.Warn("sse stream ended with error", zap.String("execution_id", executionID), zap.Error(err))
	}
}

// cancelExecution handles POST /executions/{execution_id}/cancel.
func (s *Server) cancelExecution(c *gin.Context) {
	executionID := c.Param("execution_id")

	if err := s.Executor.Cancel(c.Request.Context(), executionID); err != nil {
		c.Error(apperrors.NotFound("execution", executionID))
		return
	}

	c.Status(http.StatusAccepted)
}
