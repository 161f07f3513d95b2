package rest

import (
	"net/http"

	"github.com/KevinKickass/HaptiKnitConsole/internal/monitor"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/console
func (s *Server) getConsole(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Console().Snapshot())
}

// GET /api/v1/connection
func (s *Server) getConnection(c *gin.Context) {
	st := s.lm.Console().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state":   st.Connection,
		"session": st.Session,
	})
}

// POST /api/v1/connection/connect
func (s *Server) connect(c *gin.Context) {
	info, err := s.lm.Console().Connect(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to connect", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// POST /api/v1/connection/disconnect
func (s *Server) disconnect(c *gin.Context) {
	s.lm.Console().Disconnect()
	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}

// GET /api/v1/battery serves the latest sample without touching the device.
func (s *Server) getBattery(c *gin.Context) {
	last, ok := s.lm.Battery().Last()
	if !ok {
		respondError(c, "No battery sample yet", monitor.ErrNoSample)
		return
	}
	c.JSON(http.StatusOK, last)
}

// POST /api/v1/battery/read
func (s *Server) readBattery(c *gin.Context) {
	sample, err := s.lm.Battery().Read(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to read battery level", err)
		return
	}
	c.JSON(http.StatusOK, sample)
}
