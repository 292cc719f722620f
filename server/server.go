// Package server exposes the launcher over a loopback HTTP API: status
// snapshot, configuration read/write, manual restart, and a websocket
// stream of status changes. The tray/settings UI is a client of this
// surface, not part of this program.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JPITSG/ChromeDevLauncher/config"
	"github.com/JPITSG/ChromeDevLauncher/launcher"
)

const DefaultAddress = "127.0.0.1:9221"

type Server struct {
	launcher *launcher.Launcher
	hub      *hub
	httpSrv  *http.Server
}

func New(l *launcher.Launcher, addr string) *Server {
	if addr == "" {
		addr = DefaultAddress
	}
	s := &Server{
		launcher: l,
		hub:      newHub(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/config", s.getConfig)
		api.PUT("/config", s.putConfig)
		api.POST("/restart", s.postRestart)
		api.GET("/status/ws", s.hub.handle)
	}

	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves the API and begins relaying status changes to websocket
// clients.
func (s *Server) Start() {
	go s.hub.relay(s.launcher.Subscribe())
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("api server: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   s.launcher.Snapshot(),
	})
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   s.launcher.Config(),
	})
}

func (s *Server) putConfig(c *gin.Context) {
	var cfg config.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request body"})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := s.launcher.SetConfig(cfg); err != nil {
		// Saved but the (re)launch failed; the caller fixes the path
		// and tries again.
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": s.launcher.Config()})
}

func (s *Server) postRestart(c *gin.Context) {
	if !s.launcher.Config().Configured() {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "Not configured"})
		return
	}
	if err := s.launcher.Restart(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": s.launcher.Snapshot()})
}
