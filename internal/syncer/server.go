package syncer

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nervosys/chasm/internal/logging"
	"github.com/nervosys/chasm/internal/store"
)

// Server is the HTTP surface over the sync engine.
type Server struct {
	engine    *Engine
	heartbeat time.Duration
}

// NewServer wraps an engine. heartbeat paces keep-alive comments on the
// subscribe stream.
func NewServer(engine *Engine, heartbeat time.Duration) *Server {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Server{engine: engine, heartbeat: heartbeat}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.GET("/version", s.handleVersion)
		v1.GET("/delta", s.handleDelta)
		v1.GET("/snapshot", s.handleSnapshot)
		v1.POST("/events", s.handlePublish)
		v1.GET("/subscribe", s.handleSubscribe)
	}
	return r
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	logging.L().Infow("sync server listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": s.engine.Version()})
}

// handleDelta returns events after ?from=N. A stale cursor is a terminal
// 410: the client must re-snapshot, not retry.
func (s *Server) handleDelta(c *gin.Context) {
	from, err := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, false, fmt.Errorf("invalid cursor: %w", err))
		return
	}

	events, err := s.engine.Delta(c.Request.Context(), from)
	if err != nil {
		var stale *StaleCursorError
		if errors.As(err, &stale) {
			writeError(c, http.StatusGone, false, err)
			return
		}
		writeError(c, http.StatusInternalServerError, true, err)
		return
	}

	if events == nil {
		events = []store.Event{}
	}
	// toVersion is the last event actually in the batch, not the engine's
	// current version: a commit landing after the read must not widen the
	// range the client believes it has applied.
	to := from
	if len(events) > 0 {
		to = events[len(events)-1].Version
	}
	c.JSON(http.StatusOK, gin.H{
		"fromVersion": from,
		"toVersion":   to,
		"events":      events,
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snap, err := s.engine.TakeSnapshot(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, true, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type publishRequest struct {
	EventType  string `json:"event_type" binding:"required"`
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
	Actor      string `json:"actor"`
	Data       any    `json:"data"`
}

func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, false, err)
		return
	}

	version, err := s.engine.Publish(c.Request.Context(),
		req.EventType, req.EntityType, req.EntityID, req.Actor, req.Data)
	if err != nil {
		var te *store.TransactionError
		if errors.As(err, &te) && te.Retryable {
			writeError(c, http.StatusServiceUnavailable, true, err)
			return
		}
		writeError(c, http.StatusInternalServerError, false, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"version": version})
}

// handleSubscribe streams committed events as server-sent events. Heartbeat
// comments keep intermediaries from closing the idle connection.
func (s *Server) handleSubscribe(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, http.StatusInternalServerError, false, errors.New("streaming unsupported"))
		return
	}

	events, cancel := s.engine.Subscribe()
	defer cancel()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Writer, ": connected version=%d\n\n", s.engine.Version())
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				// Dropped for lagging; the client reconnects and catches up
				// with a delta from its last seen version.
				fmt.Fprint(c.Writer, "event: lagged\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			fmt.Fprintf(c.Writer, "event: change\nid: %d\ndata: %s\n\n", ev.Version, eventJSON(ev))
			flusher.Flush()
		}
	}
}

func eventJSON(ev store.Event) string {
	return fmt.Sprintf(`{"version":%d,"event_type":%q,"entity_type":%q,"entity_id":%q,"data":%s}`,
		ev.Version, ev.EventType, ev.EntityType, ev.EntityID, ev.Data)
}

// writeError emits the wire error shape. Retryable tells clients whether
// backing off and retrying can succeed.
func writeError(c *gin.Context, status int, retryable bool, err error) {
	c.JSON(status, gin.H{
		"error":     err.Error(),
		"retryable": retryable,
	})
}
