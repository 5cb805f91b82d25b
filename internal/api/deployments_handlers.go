package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kandev/conductor/internal/common/errors"
)

// triggerDeployment handles GET|POST /deployed/{path}. The path is matched
// against a Deployment registered by its mount path, and the trigger is
// asynchronous per spec.md §4.6: the handler returns as soon as the
// execution id exists, not when it finishes.
func (s *Server) triggerDeployment(c *gin.Context) {
	path := c.Param("path")

	d, err := s.Tracker.ByPath(path)
	if err != nil {
		c.Error(apperrors.NotFound("deployment", path))
		return
	}

	result, err := s.Deployments.Trigger(c.Request.Context(), d.ID)
	if err != nil {
		c.Error(apperrors.InternalError("failed to trigger deployment", err))
		return
	}

	c.JSON(http.StatusOK, TriggerResponse{
		ExecutionID: result.ExecutionID,
		LogID:       result.LogID,
		StatusURL:   result.StatusURL,
		AllLogsURL:  result.AllLogsURL,
	})
}

// getDeploymentLog handles GET /deployments/{id}/logs/{log_id}, returning
// the execution snapshot a log id resolves to (including partial results
// while in_progress).
func (s *Server) getDeploymentLog(c *gin.Context) {
	deploymentID := c.Param("id")
	logID := c.Param("log_id")

	executionID, err := s.Tracker.LogExecutionID(deploymentID, logID)
	if err != nil {
		c.Error(apperrors.NotFound("deployment log", logID))
		return
	}

	exec, err := s.Store.GetExecution(c.Request.Context(), executionID)
	if err != nil {
		c.Error(apperrors.NotFound("execution", executionID))
		return
	}

	c.JSON(http.StatusOK, exec)
}

// listDeploymentLogs handles GET /deployments/{id}/logs?limit=N.
func (s *Server) listDeploymentLogs(c *gin.Context) {
	deploymentID := c.Param("id")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	logIDs := s.Tracker.RecentLogIDs(deploymentID, limit)
	c.JSON(http.StatusOK, gin.H{"log_ids": logIDs})
}
