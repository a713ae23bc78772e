// Package apiserver exposes the running sideload session's progress and
// cancellation over a small local HTTP surface, following the same
// gin.New()/gin.Recovery()/route-group/graceful-shutdown shape the
// teacher's hasher-host orchestrator uses for its own REST API. It lets a
// separate front-end process (or a curl one-liner) observe and cancel a
// transfer the CLI or TUI started.
package apiserver

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"miassistant/internal/deviceinfo"
)

// Status is the JSON body served by GET /status.
type Status struct {
	Sent       uint64              `json:"sent"`
	Total      uint64              `json:"total"`
	Cancelled  bool                `json:"cancelled"`
	Device     *deviceinfo.DeviceInfo `json:"device,omitempty"`
	LastUpdate time.Time           `json:"last_update"`
}

// Server serves /status and /cancel against a shared cancel flag and an
// in-memory progress snapshot updated by the sideload session it backs.
type Server struct {
	mu     sync.RWMutex
	status Status
	cancel *atomic.Bool

	httpServer *http.Server
}

// New builds a Server reporting progress to, and accepting cancellation
// requests against, cancel. cancel is the same flag passed to
// sideload.Run.
func New(cancel *atomic.Bool) *Server {
	return &Server{cancel: cancel}
}

// UpdateProgress records the latest sideload progress; it is safe to call
// from the goroutine driving sideload.Run while the server runs
// concurrently.
func (s *Server) UpdateProgress(sent, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Sent = sent
	s.status.Total = total
	s.status.LastUpdate = time.Now()
}

// SetDeviceInfo records the probed device identity for GET /status to
// report alongside progress.
func (s *Server) SetDeviceInfo(info deviceinfo.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Device = &info
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/cancel", s.handleCancel)
	}
	return router
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	status := s.status
	status.Cancelled = s.cancel != nil && s.cancel.Load()
	s.mu.RUnlock()
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCancel(c *gin.Context) {
	if s.cancel == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active session"})
		return
	}
	s.cancel.Store(true)
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// Start listens on addr in the background. Call Shutdown to stop it.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router()}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return nil
}

// Shutdown gracefully stops the server, following the same
// context.WithTimeout pattern the teacher's main.go uses on SIGTERM.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
