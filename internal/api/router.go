package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/deployment"
	"github.com/kandev/conductor/internal/design"
	"github.com/kandev/conductor/internal/eventlog"
)

// Server bundles every dependency the HTTP handlers need. Constructed once
// in cmd/conductor/main.go and wired into a gin.Engine via NewRouter.
type Server struct {
	Executor    *deployment.Executor
	Designs     *design.Store
	Deployments *deployment.Service
	Tracker     *deployment.Tracker
	Store       eventlog.Store
	Hub         *eventlog.Hub
	Log         *logger.Logger
}

// NewRouter builds the gin.Engine serving every endpoint in spec.md §6.
func NewRouter(s *Server) *gin.Engine {
	log := s.Log
	if log == nil {
		log = logger.Default()
	}

	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log), CORS(), ErrorHandler(log))

	patterns := r.Group("/patterns")
	{
		patterns.POST("/sequential", s.executePattern("sequential"))
		patterns.POST("/sequential/stream", s.streamPattern("sequential"))
		patterns.POST("/parallel", s.executePattern("parallel"))
		patterns.POST("/parallel/stream", s.streamPattern("parallel"))
		patterns.POST("/hierarchical", s.executePattern("hierarchical"))
		patterns.POST("/hierarchical/stream", s.streamPattern("hierarchical"))
		patterns.POST("/debate", s.executePattern("debate"))
		patterns.POST("/debate/stream", s.streamPattern("debate"))
		patterns.POST("/routing", s.executePattern("routing"))
		patterns.POST("/routing/stream", s.streamPattern("routing"))
	}

	designs := r.Group("/designs")
	{
		designs.POST("/:id/execute", s.executeDesign)
	}

	r.GET("/executions/:execution_id", s.getExecution)
	r.GET("/executions/:execution_id/stream", s.streamExecution)
	r.POST("/executions/:execution_id/cancel", s.cancelExecution)

	r.Any("/deployed/*path", s.triggerDeployment)

	deployments := r.Group("/deployments")
	{
		deployments.GET("/:id/logs/:log_id", s.getDeploymentLog)
		deployments.GET("/:id/logs", s.listDeploymentLogs)
	}

	return r
}
