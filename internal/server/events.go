package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleAPIEvents streams queue notifications as Server-Sent Events. The
// event name is the notification type and the data its JSON encoding.
func (s *Server) handleAPIEvents(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "event stream not available"})
		return
	}

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"queue": s.queue.Status()})
	c.Writer.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}
