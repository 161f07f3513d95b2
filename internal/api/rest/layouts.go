package rest

import (
	"net/http"

	"github.com/KevinKickass/HaptiKnitConsole/internal/layout"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/layouts
func (s *Server) listLayouts(c *gin.Context) {
	names, err := s.lm.Layouts().List()
	if err != nil {
		respondError(c, "Failed to list layouts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layouts": names})
}

// POST /api/v1/layouts/:name/apply
func (s *Server) applyLayout(c *gin.Context) {
	name := c.Param("name")

	preset, err := s.lm.Layouts().Load(name)
	if err != nil {
		respondError(c, "Failed to load layout", err)
		return
	}

	if err := s.lm.Console().ApplyLayout(preset); err != nil {
		respondError(c, "Failed to apply layout", err)
		return
	}

	c.JSON(http.StatusOK, s.lm.Console().Placement())
}

// GET /api/v1/layouts/export?name=my-sleeve
func (s *Server) exportLayout(c *gin.Context) {
	name := c.DefaultQuery("name", "exported")
	preset := layout.FromSnapshot(name, s.lm.Console().Placement())

	data, err := preset.YAML()
	if err != nil {
		respondError(c, "Failed to export layout", err)
		return
	}
	c.Data(http.StatusOK, "application/yaml", data)
}
