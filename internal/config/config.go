// Package config provides Viper-based configuration loading for the room server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROOMS_SERVER_PORT.
const EnvPrefix = "ROOMS"

// ServerConfig holds the public HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// ShutdownTimeout bounds graceful shutdown of connections and rooms.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminConfig holds the gRPC health endpoint settings.
type AdminConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// RoomConfig holds per-room limits and cadence.
type RoomConfig struct {
	// MaxClients caps the user records a room holds, connected or not.
	MaxClients int `mapstructure:"max_clients"`
	// ReconnectGrace is how long a dropped session may come back.
	ReconnectGrace     time.Duration `mapstructure:"reconnect_grace"`
	SimulationInterval time.Duration `mapstructure:"simulation_interval"`
	PatchInterval      time.Duration `mapstructure:"patch_interval"`
}

// ScriptingConfig holds Lua behavior module settings.
type ScriptingConfig struct {
	// ScriptDir holds *.lua modules; empty disables scripting.
	ScriptDir        string `mapstructure:"script_dir"`
	InstructionLimit int    `mapstructure:"instruction_limit"`
}

// DirectoryConfig selects and configures the room directory.
type DirectoryConfig struct {
	// Backend is "memory" or "redis".
	Backend      string        `mapstructure:"backend"`
	RedisURL     string        `mapstructure:"redis_url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// TransportConfig holds websocket framing settings.
type TransportConfig struct {
	// Encoding is "json" or "msgpack" for outbound frames.
	Encoding         string        `mapstructure:"encoding"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output string `mapstructure:"output"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Room      RoomConfig      `mapstructure:"room"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Transport TransportConfig `mapstructure:"transport"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, check := range []func() []string{
		func() []string { return validatePort("server.port", c.Server.Port) },
		func() []string { return validatePort("admin.port", c.Admin.Port) },
		c.validateListeners,
		c.Room.validate,
		c.Scripting.validate,
		c.Directory.validate,
		c.Transport.validate,
		c.Logging.validate,
	} {
		errs = append(errs, check()...)
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(key string, port int) []string {
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("%s must be 1-65535, got %d", key, port)}
	}
	return nil
}

func (c Config) validateListeners() []string {
	if c.Server.Port == c.Admin.Port && c.Server.Host == c.Admin.Host {
		return []string{fmt.Sprintf("server and admin must not share %s", c.Server.Addr())}
	}
	return nil
}

func (r RoomConfig) validate() []string {
	var errs []string
	if r.MaxClients < 1 {
		errs = append(errs, fmt.Sprintf("room.max_clients must be >= 1, got %d", r.MaxClients))
	}
	if r.ReconnectGrace < 0 {
		errs = append(errs, "room.reconnect_grace must not be negative")
	}
	if r.SimulationInterval <= 0 {
		errs = append(errs, "room.simulation_interval must be positive")
	}
	if r.PatchInterval <= 0 {
		errs = append(errs, "room.patch_interval must be positive")
	}
	return errs
}

func (s ScriptingConfig) validate() []string {
	if s.InstructionLimit < 1 {
		return []string{fmt.Sprintf("scripting.instruction_limit must be >= 1, got %d", s.InstructionLimit)}
	}
	return nil
}

func (d DirectoryConfig) validate() []string {
	var errs []string
	switch d.Backend {
	case "memory":
	case "redis":
		if d.RedisURL == "" {
			errs = append(errs, "directory.redis_url must not be empty for the redis backend")
		}
		if d.TTL <= 0 {
			errs = append(errs, "directory.ttl must be positive for the redis backend")
		}
		if d.PoolSize < 1 {
			errs = append(errs, fmt.Sprintf("directory.pool_size must be >= 1, got %d", d.PoolSize))
		}
	default:
		errs = append(errs, fmt.Sprintf("directory.backend must be one of [memory, redis], got %q", d.Backend))
	}
	return errs
}

func (t TransportConfig) validate() []string {
	var errs []string
	if t.Encoding != "json" && t.Encoding != "msgpack" {
		errs = append(errs, fmt.Sprintf("transport.encoding must be one of [json, msgpack], got %q", t.Encoding))
	}
	if t.ReadTimeout < 0 || t.WriteTimeout < 0 || t.HandshakeTimeout < 0 {
		errs = append(errs, "transport timeouts must not be negative")
	}
	if t.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("transport.send_buffer must be >= 1, got %d", t.SendBuffer))
	}
	if t.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("transport.max_message_size must be >= 1, got %d", t.MaxMessageSize))
	}
	return errs
}

func (l LoggingConfig) validate() []string {
	var errs []string
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", l.Level))
	}
	if l.Format != "json" && l.Format != "console" {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", l.Format))
	}
	return errs
}

// Load reads configuration from path, applies ROOMS_ environment overrides
// and validates the result. An empty path uses defaults and the environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 2567)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 2568)

	v.SetDefault("room.max_clients", 25)
	v.SetDefault("room.reconnect_grace", "10s")
	v.SetDefault("room.simulation_interval", "50ms")
	v.SetDefault("room.patch_interval", "50ms")

	v.SetDefault("scripting.script_dir", "")
	v.SetDefault("scripting.instruction_limit", 100000)

	v.SetDefault("directory.backend", "memory")
	v.SetDefault("directory.redis_url", "redis://localhost:6379")
	v.SetDefault("directory.pool_size", 10)
	v.SetDefault("directory.min_idle_conns", 2)
	v.SetDefault("directory.ttl", "1m")

	v.SetDefault("transport.encoding", "json")
	v.SetDefault("transport.read_timeout", "60s")
	v.SetDefault("transport.write_timeout", "10s")
	v.SetDefault("transport.handshake_timeout", "5s")
	v.SetDefault("transport.send_buffer", 256)
	v.SetDefault("transport.max_message_size", 65536)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
}
