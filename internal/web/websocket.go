package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const pingInterval = 30 * time.Second

// handleWebSocket streams job status changes until the job finishes or the
// client goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	jobID := c.Param("id")
	job, err := s.jobMgr.GetJob(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// Subscribe before sending the initial state so no update is lost
	// in between.
	updates := s.jobMgr.Subscribe(jobID)
	defer s.jobMgr.Unsubscribe(jobID, updates)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if job, err = s.jobMgr.GetJob(jobID); err != nil {
		return
	}
	if err := conn.WriteJSON(jobToResponse(job)); err != nil || job.Status.Finished() {
		return
	}

	// Drain client frames so close and pong are handled.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(jobToResponse(job)); err != nil {
				s.logger.Error("Failed to write WebSocket message: %v", err)
				return
			}
			if job.Status.Finished() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}

		case <-gone:
			return

		case <-s.ctx.Done():
			return
		}
	}
}
