package config

import (
	"time"

	"github.com/pepeant/diceland-server/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server"`
	Hub     HubConfig      `json:"hub" yaml:"hub"`
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	IdleTimeout     Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// HubConfig represents relay hub configuration
type HubConfig struct {
	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	MaxNickname       int      `json:"max_nickname" yaml:"max_nickname"`
	MaxChatLen        int      `json:"max_chat_len" yaml:"max_chat_len"`
	DefaultRoom       string   `json:"default_room" yaml:"default_room"`
	SendBuffer        int      `json:"send_buffer" yaml:"send_buffer"`
	MaxMessageSize    int64    `json:"max_message_size" yaml:"max_message_size"`
	WriteTimeout      Duration `json:"write_timeout" yaml:"write_timeout"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Hub: HubConfig{
			HeartbeatInterval: Duration(30 * time.Second),
			MaxNickname:       12,
			MaxChatLen:        280,
			DefaultRoom:       "lobby",
			SendBuffer:        256,
			MaxMessageSize:    4096,
			WriteTimeout:      Duration(10 * time.Second),
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "timeout cannot be negative")
	}

	if c.Server.ShutdownTimeout < 0 {
		return NewConfigError("server.shutdown_timeout", "timeout cannot be negative")
	}

	if c.Hub.HeartbeatInterval <= 0 {
		return NewConfigError("hub.heartbeat_interval", "interval must be positive")
	}

	if c.Hub.MaxNickname < 1 {
		return NewConfigError("hub.max_nickname", "limit must be at least 1")
	}

	if c.Hub.MaxChatLen < 1 {
		return NewConfigError("hub.max_chat_len", "limit must be at least 1")
	}

	if c.Hub.DefaultRoom == "" {
		return NewConfigError("hub.default_room", "room label is required")
	}

	if c.Hub.SendBuffer < 1 {
		return NewConfigError("hub.send_buffer", "buffer must hold at least one frame")
	}

	return nil
}
