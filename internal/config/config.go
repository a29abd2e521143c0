package config

import "time"

// RelayConfig is the root configuration for a relay daemon instance.
type RelayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Listen   ListenConfig   `yaml:"listen"`
	Database DBConfig       `yaml:"database"`
	Relay    HubConfig      `yaml:"relay"`
	History  HistoryConfig  `yaml:"history"`
}

// InstanceConfig identifies this relay instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ListenConfig holds the network listeners.
type ListenConfig struct {
	WSAddr   string `yaml:"ws_addr"`   // websocket endpoint (relay)
	HTTPAddr string `yaml:"http_addr"` // history REST endpoint
}

// DBConfig holds the message store connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HubConfig holds relay hub settings.
type HubConfig struct {
	SessionQueueSize int           `yaml:"session_queue_size"` // per-session outbound queue
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"` // liveness window before a session is dropped
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// HistoryConfig holds history endpoint settings.
type HistoryConfig struct {
	PageSize    int `yaml:"page_size"`
	MaxPageSize int `yaml:"max_page_size"`
}

// ClientConfig is the root configuration for a feed client (feedtail and
// embedding applications).
type ClientConfig struct {
	RelayURL   string        `yaml:"relay_url"`   // ws:// or wss:// endpoint
	HistoryURL string        `yaml:"history_url"` // http:// or https:// endpoint

	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	LivenessTimeout      time.Duration `yaml:"liveness_timeout"`

	PollInterval time.Duration `yaml:"poll_interval"`
	PageSize     int           `yaml:"page_size"`
}
