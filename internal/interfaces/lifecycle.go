package interfaces

import (
	"context"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/console"
	"github.com/KevinKickass/HaptiKnitConsole/internal/layout"
	"github.com/KevinKickass/HaptiKnitConsole/internal/monitor"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State           string          `json:"state"`
	Driver          string          `json:"driver"`
	ConnectionState transport.State `json:"connection_state"`
	Device          string          `json:"device,omitempty"`
	LiveClients     int             `json:"live_clients"`
	BatteryMonitor  bool            `json:"battery_monitor"`
}

// LifecycleManager is what the API layer needs from the running system.
type LifecycleManager interface {
	Config() *config.Config
	Console() *console.Console
	Layouts() *layout.Loader
	Battery() *monitor.BatteryMonitor
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
