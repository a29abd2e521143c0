package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Relay.SessionQueueSize < 1 {
		return errors.New("relay.session_queue_size must be >= 1")
	}
	if c.Relay.PongTimeout <= c.Relay.PingInterval {
		return fmt.Errorf("relay.pong_timeout (%s) must exceed relay.ping_interval (%s)",
			c.Relay.PongTimeout, c.Relay.PingInterval)
	}

	if c.History.PageSize < 1 {
		return errors.New("history.page_size must be >= 1")
	}
	if c.History.MaxPageSize < c.History.PageSize {
		return fmt.Errorf("history.max_page_size (%d) cannot be less than history.page_size (%d)",
			c.History.MaxPageSize, c.History.PageSize)
	}

	return nil
}

// Validate checks client configuration.
func (c *ClientConfig) Validate() error {
	if c.RelayURL == "" {
		return errors.New("relay_url is required")
	}
	if c.HistoryURL == "" {
		return errors.New("history_url is required")
	}
	if c.ReconnectMaxAttempts < 1 {
		return errors.New("reconnect_max_attempts must be >= 1")
	}
	if c.ReconnectBaseDelay > c.ReconnectMaxDelay {
		return fmt.Errorf("reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.ReconnectBaseDelay, c.ReconnectMaxDelay)
	}
	if c.PageSize < 1 {
		return errors.New("page_size must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
