package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

func (s *Server) newGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.CustomRecovery(s.recoverPanic))
	r.Use(s.requestLogger())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/version", s.handleAPIVersion)
		api.GET("/events", s.handleAPIEvents)

		api.GET("/tasks", s.handleAPITasksList)
		api.POST("/tasks", s.handleAPITaskAdd)
		api.GET("/tasks/:id", s.handleAPITaskGet)
		api.DELETE("/tasks/:id", s.handleAPITaskRemove)
		api.POST("/tasks/:id/cancel", s.handleAPITaskCancel)
		api.POST("/tasks/:id/retry", s.handleAPITaskRetry)
		api.PUT("/tasks/:id/priority", s.handleAPITaskPriority)
		api.PUT("/tasks/:id/position", s.handleAPITaskPosition)
		api.GET("/tasks/:id/output", s.handleAPITaskOutput)

		api.GET("/queue/status", s.handleAPIQueueStatus)
		api.POST("/queue/start", s.handleAPIQueueStart)
		api.POST("/queue/pause", s.handleAPIQueuePause)
		api.PUT("/queue/concurrency", s.handleAPIQueueConcurrency)
		api.POST("/queue/clear", s.handleAPIQueueClear)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found"})
	})

	return r
}

// recoverPanic keeps a handler panic from taking the queue down with it.
func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	s.logger.Error("panic in HTTP handler", "path", c.Request.URL.Path, "panic", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := log.DebugLevel
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = log.ErrorLevel
		}
		s.logger.Log(level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
