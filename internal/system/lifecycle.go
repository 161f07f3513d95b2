// Package system wires the console together and owns its start and
// shutdown order.
package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/api/rest"
	"github.com/KevinKickass/HaptiKnitConsole/internal/api/websocket"
	"github.com/KevinKickass/HaptiKnitConsole/internal/auth"
	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/console"
	"github.com/KevinKickass/HaptiKnitConsole/internal/interfaces"
	"github.com/KevinKickass/HaptiKnitConsole/internal/journal"
	"github.com/KevinKickass/HaptiKnitConsole/internal/layout"
	"github.com/KevinKickass/HaptiKnitConsole/internal/monitor"
	"github.com/KevinKickass/HaptiKnitConsole/internal/placement"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport/ble"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport/serialbridge"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport/sim"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TransportHealthService is the grpc health service name that follows the
// device connection. The empty service name reports the process itself.
const TransportHealthService = "haptiknit.Transport"

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	session     *transport.Session
	console     *console.Console
	journal     journal.Journal
	layouts     *layout.Loader
	battery     *monitor.BatteryMonitor
	authService *auth.AuthService

	wsHub     *websocket.Hub
	hubCancel context.CancelFunc

	restServer   *rest.Server
	grpcServer   *grpc.Server
	grpcAddr     net.Addr
	healthServer *health.Server

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownOnce sync.Once
}

// NewDriver builds the transport driver named by cfg.Transport.Driver.
func NewDriver(cfg *config.Config, logger *zap.Logger) (transport.Driver, error) {
	switch cfg.Transport.Driver {
	case "ble":
		profile, err := ble.ParseProfile(cfg.Transport.BLE)
		if err != nil {
			return nil, err
		}
		return ble.NewDriver(profile, cfg.Transport.ConnectTimeout, logger), nil
	case "serial":
		return serialbridge.NewDriver(cfg.Transport.Serial), nil
	case "sim":
		return sim.NewDriver(sim.NewDevice(cfg.Transport.SimDeviceName)), nil
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Transport.Driver)
	}
}

func NewLifecycleManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	driver, err := NewDriver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport driver: %w", err)
	}
	return NewLifecycleManagerWithDriver(ctx, cfg, driver, logger)
}

// NewLifecycleManagerWithDriver is NewLifecycleManager with an explicit
// driver, for tests and embedding.
func NewLifecycleManagerWithDriver(ctx context.Context, cfg *config.Config, driver transport.Driver, logger *zap.Logger) (*LifecycleManager, error) {
	settings, err := console.SettingsFromConfig(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	model, err := placement.NewModel(
		types.NewRoster(cfg.Placement.RosterSize),
		cfg.Placement.Rows,
		cfg.Placement.Cols,
		placement.Policy(cfg.Placement.OccupiedPolicy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create placement model: %w", err)
	}

	layouts, err := layout.NewLoader(cfg.Layouts.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create layout loader: %w", err)
	}

	authService, err := auth.NewAuthService(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	j, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	session := transport.NewSession(driver, logger)
	wsHub := websocket.NewHub(logger, authService)
	c := console.New(session, model, settings, j, wsHub, logger)
	wsHub.SetStateProvider(c)

	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		session:      session,
		console:      c,
		journal:      j,
		layouts:      layouts,
		battery:      monitor.NewBatteryMonitor(c, session, cfg.Monitor.BatteryInterval, logger),
		authService:  authService,
		wsHub:        wsHub,
		healthServer: health.NewServer(),
		currentState: StateInitializing,
	}

	session.OnStateChange(wsHub.ConnectionStateChanged)
	session.OnStateChange(lm.onConnectionState)
	lm.healthServer.SetServingStatus(TransportHealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	return lm, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting HaptiKnit console",
		zap.String("driver", lm.config.Transport.Driver),
		zap.String("journal", lm.config.Journal.Driver))

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.wsHub.Run(hubCtx)

	if err := lm.startGRPCServer(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	if err := lm.restServer.Start(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.battery.Start()

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Duration("battery_interval", lm.config.Monitor.BatteryInterval))

	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr()

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)
	lm.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) onConnectionState(previous, current transport.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if current == transport.StateConnected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	lm.healthServer.SetServingStatus(TransportHealthService, status)

	lm.logger.Info("Connection state changed",
		zap.String("from", string(previous)),
		zap.String("to", string(current)))
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	// No new battery reads while the link goes down.
	lm.battery.Stop()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.healthServer.Shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}
	close(errChan)
	for e := range errChan {
		err = errors.Join(err, e)
	}

	lm.console.Disconnect()
	if lm.hubCancel != nil {
		lm.hubCancel()
	}

	if cerr := lm.journal.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("journal close failed: %w", cerr))
	}

	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	status := interfaces.SystemStatus{
		State:           lm.State().String(),
		Driver:          lm.config.Transport.Driver,
		ConnectionState: lm.session.State(),
		LiveClients:     lm.wsHub.GetClientCount(),
		BatteryMonitor:  lm.battery.IsRunning(),
	}
	if info, ok := lm.session.Info(); ok {
		status.Device = info.Device
	}
	return status
}

// GRPCAddr is the address the health service listens on, nil before Start.
func (lm *LifecycleManager) GRPCAddr() net.Addr { return lm.grpcAddr }

func (lm *LifecycleManager) Config() *config.Config { return lm.config }

func (lm *LifecycleManager) Console() *console.Console { return lm.console }

func (lm *LifecycleManager) Layouts() *layout.Loader { return lm.layouts }

func (lm *LifecycleManager) Battery() *monitor.BatteryMonitor { return lm.battery }

// Auth returns the operator auth service
func (lm *LifecycleManager) Auth() *auth.AuthService { return lm.authService }

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
