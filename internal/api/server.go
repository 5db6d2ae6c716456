package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/dooshek/murmur/internal/session"
	"github.com/dooshek/murmur/internal/stats"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Controller is the part of session.Controller the API drives.
type Controller interface {
	Start() error
	Stop() error
	Toggle() (session.State, error)
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

type StatsSource interface {
	GetStats() stats.Stats
}

// Server is the local control API.
type Server struct {
	ctrl        Controller
	stats       StatsSource
	metrics     http.Handler
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewServer creates the API. stats and metrics may be nil.
func NewServer(ctrl Controller, stats StatsSource, metrics http.Handler) *Server {
	return &Server{
		ctrl:        ctrl,
		stats:       stats,
		metrics:     metrics,
		broadcaster: NewBroadcaster(),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkLocalOrigin,
		},
	}
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/api/session", s.handleSession)
	engine.POST("/api/session/start", s.handleStart)
	engine.POST("/api/session/stop", s.handleStop)
	engine.POST("/api/session/toggle", s.handleToggle)
	engine.GET("/api/session/stream", s.handleStream)
	engine.GET("/api/stats", s.handleStats)
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics))
	}
	return engine
}

// Watch streams controller snapshots to websocket clients until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()
	s.broadcaster.Run(ctx, updates)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.httpServer, s.cancel, s.done = srv, cancel, done
	s.mu.Unlock()

	go s.Watch(ctx)
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server stopped", err)
		}
	}()

	logger.Infof("🌐 API listening on http://%s", ln.Addr())
	return nil
}

// Shutdown stops the stream and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel, done := s.httpServer, s.cancel, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	cancel()
	err := srv.Shutdown(ctx)
	<-done
	return err
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.ctrl.Start(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.ctrl.Stop(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleToggle(c *gin.Context) {
	if _, err := s.ctrl.Toggle(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleStats(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stats disabled"})
		return
	}
	c.JSON(http.StatusOK, s.stats.GetStats())
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("Stream upgrade failed: %v", err)
		return
	}

	logger.Debugf("Stream client connected: %s", c.Request.RemoteAddr)
	cl := s.broadcaster.AddClient(conn, s.ctrl.Snapshot())

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(cl)
			logger.Debugf("Stream client disconnected: %s", c.Request.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := session.Classify(err)
	c.JSON(statusFor(kind), gin.H{
		"error":   err.Error(),
		"kind":    kind.String(),
		"session": s.ctrl.Snapshot(),
	})
}

func statusFor(kind session.FailureKind) int {
	switch kind {
	case session.FailurePermissionDenied:
		return http.StatusForbidden
	case session.FailureResource:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// checkLocalOrigin accepts non-browser clients and pages served from the
// loopback interface.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("API %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
