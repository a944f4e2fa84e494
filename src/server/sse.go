package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deribit-gateway/src/rpc"
)

// -----------------------------------------------------------------------------
// SSE transport
// -----------------------------------------------------------------------------

const defaultKeepalive = 15 * time.Second

// keepaliveInterval honors the configured keepalive seconds, falling
// back to 15s when the config carries none.
func (s *GatewayServer) keepaliveInterval() time.Duration {
	if s.Config != nil && s.Config.Keepalive > 0 {
		return time.Duration(s.Config.Keepalive) * time.Second
	}
	return defaultKeepalive
}

// handleSSE opens the event stream. A fresh session is announced with an
// endpoint event carrying its message-post URL; responses pushed by the
// session then flow out as message events until the client goes away.
func (s *GatewayServer) handleSSE(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(500, gin.H{"error": "streaming unsupported"})
		return
	}

	sess := rpc.NewSession(s.rootCtx, s.registry, s.Logger, s.info)
	sess.AttachStream()
	s.addSession(sess)
	defer s.removeSession(sess.ID())

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(200)

	fmt.Fprintf(c.Writer, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.ID())
	flusher.Flush()

	s.Logger.Info("SSE session %s connected from %s", sess.ID(), c.ClientIP())

	keepalive := time.NewTicker(s.keepaliveInterval())
	defer keepalive.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			s.Logger.Info("SSE session %s disconnected", sess.ID())
			return

		case <-s.rootCtx.Done():
			return

		case payload, open := <-sess.Stream():
			if !open {
				return
			}
			fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()

		case <-keepalive.C:
			// Comment frame, ignored by clients
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// -----------------------------------------------------------------------------

// handleMessages accepts one RPC request for an SSE session. The response
// goes back on this HTTP exchange and, best effort, on the event stream.
func (s *GatewayServer) handleMessages(c *gin.Context) {
	id := c.Query("session_id")
	if id == "" {
		c.JSON(400, gin.H{"error": "session_id query parameter is required"})
		return
	}

	sess := s.lookupSession(id)
	if sess == nil {
		c.JSON(404, gin.H{"error": "unknown session: " + id})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(400, gin.H{"error": "reading request body failed"})
		return
	}

	resp := sess.HandleMessage(body)
	if resp == nil {
		// Notification, acknowledged without a payload
		c.Status(202)
		return
	}
	c.Data(200, "application/json", resp)
}

// -----------------------------------------------------------------------------

func asErr[T error](err error, target *T) bool {
	return errors.As(err, target)
}
