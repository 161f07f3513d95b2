package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/HaptiKnitConsole/internal/console"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CountRequest struct {
	Count int `json:"count" binding:"required"`
}

type DragRequest struct {
	ActuatorID *int        `json:"actuator_id" binding:"required"`
	Origin     *types.Cell `json:"origin"`
}

type DropRequest struct {
	DragID string `json:"drag_id" binding:"required"`
	Row    *int   `json:"row" binding:"required"`
	Col    *int   `json:"col" binding:"required"`
}

// PressureRequest carries the raw operator input; an empty value unsets the slot.
type PressureRequest struct {
	Value string `json:"value"`
}

func (s *Server) listActuators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actuators": s.lm.Console().Roster()})
}

func (s *Server) listAvailable(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actuators": s.lm.Console().Placement().Available})
}

func (s *Server) getPlacement(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Console().Placement())
}

// POST /api/v1/placement/count
func (s *Server) selectCount(c *gin.Context) {
	var req CountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := s.lm.Console().SelectCount(req.Count); err != nil {
		respondError(c, userMessage(err, "Failed to select actuator count"), err)
		return
	}
	c.JSON(http.StatusOK, s.lm.Console().Placement())
}

// POST /api/v1/placement/reset
func (s *Server) resetPlacement(c *gin.Context) {
	s.lm.Console().Reset()
	c.JSON(http.StatusOK, s.lm.Console().Placement())
}

// POST /api/v1/placement/drags
func (s *Server) beginDrag(c *gin.Context) {
	var req DragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	id, drag, err := s.lm.Console().BeginDrag(*req.ActuatorID, req.Origin)
	if err != nil {
		respondError(c, "Failed to start drag", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"drag_id": id, "drag": drag})
}

// POST /api/v1/placement/drops
func (s *Server) drop(c *gin.Context) {
	var req DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	dragID, err := uuid.Parse(req.DragID)
	if err != nil {
		badRequest(c, "Invalid drag id", err)
		return
	}

	res, err := s.lm.Console().Drop(dragID, types.Cell{Row: *req.Row, Col: *req.Col})
	if err != nil {
		respondError(c, "Failed to drop actuator", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "placement": s.lm.Console().Placement()})
}

func (s *Server) getPressures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"slots": s.lm.Console().Pressures()})
}

// PUT /api/v1/pressures/:index
func (s *Server) setPressure(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "Invalid slot index", err)
		return
	}

	var req PressureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	slots, err := s.lm.Console().SetPressure(index, req.Value)
	if err != nil {
		respondError(c, userMessage(err, "Invalid pressure value"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// POST /api/v1/pressures/submit
func (s *Server) submitPressures(c *gin.Context) {
	outcomes, err := s.lm.Console().SubmitPressures(c.Request.Context())
	if err != nil {
		status, code := errorStatus(err)
		c.JSON(status, gin.H{
			"outcomes": outcomes,
			"error":    types.NewErrorResponse(code, "Pressure submission incomplete", err.Error()).Error,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

// POST /api/v1/commands/actuators/:id
func (s *Server) dispatchAction(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid actuator id", err)
		return
	}

	outcome, err := s.lm.Console().DispatchAction(c.Request.Context(), id)
	s.respondOutcome(c, "Failed to fire actuator", outcome, err)
}

// POST /api/v1/commands/stop
func (s *Server) dispatchStop(c *gin.Context) {
	outcome, err := s.lm.Console().DispatchAllStop(c.Request.Context())
	s.respondOutcome(c, "Failed to stop all actuators", outcome, err)
}

// POST /api/v1/commands/start
func (s *Server) dispatchStart(c *gin.Context) {
	outcome, err := s.lm.Console().DispatchAllStart(c.Request.Context())
	s.respondOutcome(c, "Failed to inflate all actuators", outcome, err)
}

func (s *Server) respondOutcome(c *gin.Context, message string, outcome console.Outcome, err error) {
	if err == nil {
		c.JSON(http.StatusOK, outcome)
		return
	}

	status, code := errorStatus(err)
	body := gin.H{"error": types.NewErrorResponse(code, message, err.Error()).Error}
	// Outcome is zero when the request was rejected before anything was written.
	if outcome.Kind != "" {
		body["outcome"] = outcome
	}
	c.JSON(status, body)
}
