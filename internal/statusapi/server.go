// Package statusapi exposes a small read-only HTTP+WebSocket surface over a
// running crawl: health, a point-in-time endpoint-table snapshot, and a
// best-effort progress event stream. None of this participates in
// admission or rate-limit decisions; it only observes them.
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sprintleague/riftwalker/internal/clockutil"
	"github.com/sprintleague/riftwalker/internal/endpointtable"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

// Server is the status HTTP+WS surface. It never touches the endpoint
// table's mutex directly; all reads go through Table.Snapshot, which holds
// the lock only long enough to copy the map out.
type Server struct {
	engine *gin.Engine
	bcast  *broadcaster
	clock  clockutil.Clock
	log    *zap.Logger
}

// New constructs a Server reading from table and publishing crawl events
// received via Publish.
func New(table *endpointtable.Table, clock clockutil.Clock, log *zap.Logger) *Server {
	if clock == nil {
		clock = clockutil.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		bcast:  newBroadcaster(),
		clock:  clock,
		log:    log,
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/status", func(c *gin.Context) { s.handleStatus(c, table) })
	engine.GET("/ws/events", s.handleEvents)

	return s
}

// Publish broadcasts a crawl-progress event to every connected websocket
// client. Safe to call concurrently from any number of walkers.
func (s *Server) Publish(ev Event) {
	s.bcast.publish(ev)
}

// Run serves the status API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context, table *endpointtable.Table) {
	c.JSON(http.StatusOK, gin.H{"endpoints": table.Snapshot()})
}

func (s *Server) handleEvents(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin:      func(r *http.Request) bool { return true },
		HandshakeTimeout: 10 * time.Second,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("status api: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
	conn.SetPingHandler(func(string) error {
		conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
		return conn.WriteControl(websocket.PongMessage, []byte{}, s.clock.Now().Add(writeDeadline))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
		}
	}()

	sub := s.bcast.subscribe()
	defer s.bcast.unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("status api: write failed", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
