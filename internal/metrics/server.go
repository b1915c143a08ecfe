// Package metrics implements metrics server.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"firestige.xyz/avbstream/internal/log"
)

// StatusFunc reports the state of the running stream for the status endpoint.
type StatusFunc func() map[string]any

// Server is the HTTP server for Prometheus metrics and stream status.
type Server struct {
	addr   string
	path   string
	status StatusFunc
	server *http.Server
	ln     net.Listener
}

// NewServer creates a new metrics server.
func NewServer(addr, path string, status StatusFunc) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		addr:   addr,
		path:   path,
		status: status,
	}
}

// Handler builds the routes: the Prometheus scrape path and GET /status.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(s.path, gin.WrapH(promhttp.Handler()))
	r.GET("/status", func(c *gin.Context) {
		if s.status == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, s.status())
	})
	return r
}

// Start starts the metrics HTTP server.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.GetLogger().WithFields(map[string]interface{}{"addr": ln.Addr().String(), "path": s.path}).
		Info("starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	log.GetLogger().Info("metrics server stopped")
	return nil
}
