// Package api wires the conductor's HTTP surface: direct pattern execution,
// design graph execution, and the deployment trigger/poll/logs endpoints.
package api

import (
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/conductor/internal/common/errors"
	"github.com/kandev/conductor/internal/common/logger"
)

// RequestLogger logs all incoming requests with a per-request id.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		duration := time.Since(start)
		log.Info("request completed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("request_id", requestID),
		)
	}
}

// respondError writes appErr in the conductor's {"error": {"code",
// "message"}} response shape, tagging it with the request id RequestLogger
// assigned so a client can correlate a failure with server-side logs.
func respondError(c *gin.Context, appErr *errors.AppError) {
	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if requestID, ok := c.Get("request_id"); ok {
		body["request_id"] = requestID
	}
	c.JSON(appErr.HTTPStatus, gin.H{"error": body})
}

// ErrorHandler translates the last gin error into the conductor's
// {"error": {"code", "message"}} response shape. Handlers report failures
// as *errors.AppError (agent/workspace/block/execution/store errors all
// construct one); anything else is treated as an unclassified internal
// error and wrapped so the response shape never depends on the handler
// that produced it.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) {
			appErr = errors.Wrap(err, "request failed")
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error("request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
				zap.Error(appErr.Unwrap()),
			)
		} else {
			log.Warn("request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
			)
		}
		respondError(c, appErr)
	}
}

// Recovery recovers from panics in handlers, logs them, and responds 500
// instead of taking down the listener.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				panicErr, ok := r.(error)
				if !ok {
					panicErr = stderrors.New("handler panic")
				}
				respondError(c, errors.InternalError("an internal server error occurred", panicErr))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// CORS adds permissive CORS headers, including the SSE-relevant
// Access-Control-Expose-Headers.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit is a process-local token bucket middleware admitting
// requestsPerSecond requests per second, with bursts of up to the same
// number, and answering 429 beyond that. NewRouter does not install it.
// Placeholder implementation - a multi-replica deployment needs a shared
// limiter instead.
func RateLimit(requestsPerSecond int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		tokens   = float64(requestsPerSecond)
		lastTime = time.Now()
	)

	limitErr := errors.RateLimited(requestsPerSecond)

	return func(c *gin.Context) {
		mu.Lock()

		now := time.Now()
		elapsed := now.Sub(lastTime).Seconds()
		lastTime = now

		tokens += elapsed * float64(requestsPerSecond)
		if tokens > float64(requestsPerSecond) {
			tokens = float64(requestsPerSecond)
		}

		if tokens < 1 {
			mu.Unlock()
			respondError(c, limitErr)
			c.Abort()
			return
		}

		tokens--
		mu.Unlock()
		c.Next()
	}
}
