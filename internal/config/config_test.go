package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Transport.Driver != "ble" {
		t.Fatalf("driver = %q, want ble", cfg.Transport.Driver)
	}
	if cfg.Placement.Rows != 4 || cfg.Placement.Cols != 5 || cfg.Placement.RosterSize != 8 {
		t.Fatalf("placement = %+v", cfg.Placement)
	}
	if cfg.Protocol.StopAllCommand != 100 || cfg.Protocol.InflateAllCommand != 11 {
		t.Fatalf("protocol = %+v", cfg.Protocol)
	}
	if cfg.Protocol.IncludeFirstSlot {
		t.Fatalf("include_first_slot should default to false")
	}
	if cfg.Protocol.Encoding.Actuator != "offset" || cfg.Protocol.Encoding.Pressure != "direct" {
		t.Fatalf("encoding = %+v", cfg.Protocol.Encoding)
	}
	if cfg.Placement.OccupiedPolicy != "overwrite" {
		t.Fatalf("policy = %q", cfg.Placement.OccupiedPolicy)
	}
	if cfg.Transport.BLE.Characteristics["command"] != "00002a6b-0000-1000-8000-00805f9b34fb" {
		t.Fatalf("characteristics = %v", cfg.Transport.BLE.Characteristics)
	}
	if cfg.Monitor.BatteryInterval != 0 {
		t.Fatalf("battery monitor enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
transport:
  driver: serial
  connect_timeout: 5s
  serial:
    device: /dev/ttyACM0
protocol:
  include_first_slot: true
  encoding:
    pressure: offset
placement:
  occupied_policy: evict
monitor:
  battery_interval: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Transport.Driver != "serial" || cfg.Transport.Serial.Device != "/dev/ttyACM0" {
		t.Fatalf("transport = %+v", cfg.Transport)
	}
	if cfg.Transport.ConnectTimeout != 5*time.Second {
		t.Fatalf("connect_timeout = %v", cfg.Transport.ConnectTimeout)
	}
	if cfg.Transport.Serial.Baud != 115200 {
		t.Fatalf("baud default lost: %d", cfg.Transport.Serial.Baud)
	}
	if !cfg.Protocol.IncludeFirstSlot || cfg.Protocol.Encoding.Pressure != "offset" {
		t.Fatalf("protocol = %+v", cfg.Protocol)
	}
	if cfg.Placement.OccupiedPolicy != "evict" {
		t.Fatalf("policy = %q", cfg.Placement.OccupiedPolicy)
	}
	if cfg.Monitor.BatteryInterval != 30*time.Second {
		t.Fatalf("battery_interval = %v", cfg.Monitor.BatteryInterval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"driver":   "transport:\n  driver: usb\n",
		"serial":   "transport:\n  driver: serial\n",
		"encoding": "protocol:\n  encoding:\n    actuator: plus-two\n",
		"policy":   "placement:\n  occupied_policy: stack\n",
		"grid":     "placement:\n  rows: 0\n",
		"journal":  "journal:\n  driver: mongo\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("Load error = %v, want invalid config", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load of missing file succeeded")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HAPTIKNIT_TRANSPORT_DRIVER", "sim")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Driver != "sim" {
		t.Fatalf("driver = %q, want sim from env", cfg.Transport.Driver)
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, Database: "haptiknit", User: "u", Password: "p"}
	if got := db.DSN(); got != "postgres://u:p@db:5432/haptiknit?sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
}
