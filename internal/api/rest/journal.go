package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// GET /api/v1/journal?limit=N
func (s *Server) getJournal(c *gin.Context) {
	limit := defaultJournalLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "Invalid limit", strconv.ErrSyntax)
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := s.lm.Console().Journal().Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "Failed to read journal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
