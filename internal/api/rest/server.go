package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/api/websocket"
	"github.com/KevinKickass/HaptiKnitConsole/internal/auth"
	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}
	s.router.Use(gin.Recovery())

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/login", s.login)

		// WebSocket authenticates with its first message
		v1.GET("/ws/live", s.wsLiveConnection)

		api := v1.Group("")
		api.Use(s.authService.AuthMiddleware())

		// ==================== READ (OBSERVER+) ====================
		read := api.Group("")
		read.Use(auth.RequirePermission(auth.PermRead))
		{
			read.GET("/auth/me", s.getCurrentUser)
			read.GET("/system/status", s.getSystemStatus)
			read.GET("/console", s.getConsole)
			read.GET("/connection", s.getConnection)
			read.GET("/actuators", s.listActuators)
			read.GET("/actuators/available", s.listAvailable)
			read.GET("/placement", s.getPlacement)
			read.GET("/pressures", s.getPressures)
			read.GET("/battery", s.getBattery)
			read.GET("/layouts", s.listLayouts)
			read.GET("/layouts/export", s.exportLayout)
			read.GET("/journal", s.getJournal)
			read.GET("/ws/status", s.wsStatus)
		}

		// ==================== OPERATE (OPERATOR) ====================
		operate := api.Group("")
		operate.Use(auth.RequirePermission(auth.PermOperate))
		{
			operate.POST("/connection/connect", s.connect)
			operate.POST("/connection/disconnect", s.disconnect)
			operate.POST("/battery/read", s.readBattery)

			operate.POST("/placement/count", s.selectCount)
			operate.POST("/placement/reset", s.resetPlacement)
			operate.POST("/placement/drags", s.beginDrag)
			operate.POST("/placement/drops", s.drop)

			operate.PUT("/pressures/:index", s.setPressure)
			operate.POST("/pressures/submit", s.submitPressures)

			operate.POST("/commands/actuators/:id", s.dispatchAction)
			operate.POST("/commands/stop", s.dispatchStop)
			operate.POST("/commands/start", s.dispatchStart)

			operate.POST("/layouts/:name/apply", s.applyLayout)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connection": s.lm.Console().Snapshot().Connection,
		"timestamp":  time.Now().Unix(),
	})
}
