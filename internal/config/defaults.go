package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSAddr   = ":8090"
	DefaultHTTPAddr = ":8091"

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultSessionQueueSize = 256
	DefaultPingInterval     = 25 * time.Second
	DefaultPongTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second

	DefaultPageSize    = 10
	DefaultMaxPageSize = 100

	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultReconnectMaxAttempts = 5
	DefaultLivenessTimeout      = 60 * time.Second
	DefaultPollInterval         = 1 * time.Second
)

func (c *RelayConfig) applyDefaults() {
	if c.Listen.WSAddr == "" {
		c.Listen.WSAddr = DefaultWSAddr
	}
	if c.Listen.HTTPAddr == "" {
		c.Listen.HTTPAddr = DefaultHTTPAddr
	}

	applyDBDefaults(&c.Database)

	if c.Relay.SessionQueueSize == 0 {
		c.Relay.SessionQueueSize = DefaultSessionQueueSize
	}
	if c.Relay.PingInterval == 0 {
		c.Relay.PingInterval = DefaultPingInterval
	}
	if c.Relay.PongTimeout == 0 {
		c.Relay.PongTimeout = DefaultPongTimeout
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = DefaultWriteTimeout
	}

	if c.History.PageSize == 0 {
		c.History.PageSize = DefaultPageSize
	}
	if c.History.MaxPageSize == 0 {
		c.History.MaxPageSize = DefaultMaxPageSize
	}
}

func (c *ClientConfig) applyDefaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.ReconnectMaxAttempts == 0 {
		c.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.LivenessTimeout == 0 {
		c.LivenessTimeout = DefaultLivenessTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
