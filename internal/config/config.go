package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/encoder"
	"github.com/KevinKickass/HaptiKnitConsole/internal/placement"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Transport TransportConfig `mapstructure:"transport"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Placement PlacementConfig `mapstructure:"placement"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Layouts   LayoutsConfig   `mapstructure:"layouts"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string           `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration    `mapstructure:"access_token_ttl"`
	Operators      []OperatorConfig `mapstructure:"operators"`
}

// OperatorConfig is one console account. PasswordHash is an argon2id
// encoded hash as produced by auth.PasswordHasher.
type OperatorConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type TransportConfig struct {
	Driver         string        `mapstructure:"driver"` // ble, serial, sim
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	BLE            BLEConfig     `mapstructure:"ble"`
	Serial         SerialConfig  `mapstructure:"serial"`
	SimDeviceName  string        `mapstructure:"sim_device_name"`
}

type BLEConfig struct {
	DeviceName      string            `mapstructure:"device_name"`
	Address         string            `mapstructure:"address"`
	ServiceUUID     string            `mapstructure:"service_uuid"`
	Characteristics map[string]string `mapstructure:"characteristics"` // channel name -> UUID
}

type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type ProtocolConfig struct {
	StopAllCommand    int            `mapstructure:"stop_all_command"`
	InflateAllCommand int            `mapstructure:"inflate_all_command"`
	IncludeFirstSlot  bool           `mapstructure:"include_first_slot"`
	Encoding          EncodingConfig `mapstructure:"encoding"`
}

// EncodingConfig selects the encoder mode per dispatch call site.
type EncodingConfig struct {
	Actuator   string `mapstructure:"actuator"`
	Pressure   string `mapstructure:"pressure"`
	StopAll    string `mapstructure:"stop_all"`
	InflateAll string `mapstructure:"inflate_all"`
}

type PlacementConfig struct {
	Rows           int    `mapstructure:"rows"`
	Cols           int    `mapstructure:"cols"`
	RosterSize     int    `mapstructure:"roster_size"`
	OccupiedPolicy string `mapstructure:"occupied_policy"`
}

type MonitorConfig struct {
	BatteryInterval time.Duration `mapstructure:"battery_interval"` // 0 disables
}

type JournalConfig struct {
	Driver     string         `mapstructure:"driver"` // none, sqlite, postgres
	SQLitePath string         `mapstructure:"sqlite_path"`
	Database   DatabaseConfig `mapstructure:"database"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LayoutsConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "12h")

	// Defaults match the PortFlow8 firmware
	v.SetDefault("transport.driver", "ble")
	v.SetDefault("transport.connect_timeout", "20s")
	v.SetDefault("transport.sim_device_name", "HaptiKnit-sim")
	v.SetDefault("transport.ble.service_uuid", "00002a6a-0000-1000-8000-00805f9b34fb")
	v.SetDefault("transport.ble.characteristics", map[string]string{
		"command": "00002a6b-0000-1000-8000-00805f9b34fb",
		"battery": "00002a6f-0000-1000-8000-00805f9b34fb",
	})
	v.SetDefault("transport.serial.baud", 115200)
	v.SetDefault("transport.serial.read_timeout", "500ms")

	v.SetDefault("protocol.stop_all_command", encoder.DefaultStopAllCommand)
	v.SetDefault("protocol.inflate_all_command", encoder.DefaultInflateAllCommand)
	v.SetDefault("protocol.include_first_slot", false)
	v.SetDefault("protocol.encoding.actuator", string(encoder.ModeOffset))
	v.SetDefault("protocol.encoding.pressure", string(encoder.ModeDirect))
	v.SetDefault("protocol.encoding.stop_all", string(encoder.ModeDirect))
	v.SetDefault("protocol.encoding.inflate_all", string(encoder.ModeDirect))

	v.SetDefault("placement.rows", 4)
	v.SetDefault("placement.cols", 5)
	v.SetDefault("placement.roster_size", 8)
	v.SetDefault("placement.occupied_policy", string(placement.PolicyOverwrite))

	v.SetDefault("monitor.battery_interval", "0s")

	v.SetDefault("journal.driver", "none")
	v.SetDefault("journal.sqlite_path", "haptiknit-journal.db")
	v.SetDefault("journal.database.port", 5432)
	v.SetDefault("journal.database.max_connections", 4)

	v.SetDefault("layouts.search_paths", []string{"layouts"})
}

// Load reads the YAML file at path. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment Variables automatisch binden, HAPTIKNIT_TRANSPORT_DRIVER etc.
	v.SetEnvPrefix("HAPTIKNIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate rejects values the console cannot run with.
func (c *Config) Validate() error {
	switch c.Transport.Driver {
	case "ble", "serial", "sim":
	default:
		return fmt.Errorf("unknown transport driver %q", c.Transport.Driver)
	}
	if c.Transport.Driver == "serial" && c.Transport.Serial.Device == "" {
		return fmt.Errorf("transport.serial.device is required for the serial driver")
	}

	for site, mode := range map[string]string{
		"actuator":    c.Protocol.Encoding.Actuator,
		"pressure":    c.Protocol.Encoding.Pressure,
		"stop_all":    c.Protocol.Encoding.StopAll,
		"inflate_all": c.Protocol.Encoding.InflateAll,
	} {
		if _, err := encoder.ParseMode(mode); err != nil {
			return fmt.Errorf("protocol.encoding.%s: %w", site, err)
		}
	}

	if _, err := placement.ParsePolicy(c.Placement.OccupiedPolicy); err != nil {
		return fmt.Errorf("placement.occupied_policy: %w", err)
	}
	if c.Placement.Rows <= 0 || c.Placement.Cols <= 0 {
		return fmt.Errorf("placement grid must be at least 1x1")
	}
	if c.Placement.RosterSize < 1 || c.Placement.RosterSize > 255 {
		return fmt.Errorf("placement.roster_size must be 1..255")
	}

	switch c.Journal.Driver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}

	if c.Monitor.BatteryInterval < 0 {
		return fmt.Errorf("monitor.battery_interval must not be negative")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != "dev-secret-change-in-production-min-32-chars" && len(secret) >= 32
}
