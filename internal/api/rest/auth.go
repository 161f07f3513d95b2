package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/auth"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"` // seconds
	Role        auth.Role `json:"role"`
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	session, err := s.authService.Login(req.Username, req.Password, c.ClientIP())
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		c.JSON(http.StatusLocked, types.NewErrorResponse(types.CodeLocked, "Account locked", err.Error()))
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthorized, "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(session.ExpiresAt).Seconds()),
		Role:        session.Role,
	})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	permissions, _ := c.Get(auth.ContextPermissions)
	c.JSON(http.StatusOK, gin.H{
		"username":    c.GetString(auth.ContextUsername),
		"role":        c.MustGet(auth.ContextRole),
		"permissions": permissions,
	})
}
