package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Siddamnn/SpeakMind/metric"
)

// ClientOption configures a Client in NewClient. An option returning an
// error makes NewClient fail.
type ClientOption func(*Client) error

// WithMaxReconnects limits reconnect attempts after a drop; -1, the
// default, never gives up.
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait is the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval is how often the client pings the server to detect a
// dead link.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = d
		return nil
	}
}

// WithLogger sets the logger. nil keeps the default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection state and reconnects to the core metrics.
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = metrics
		return nil
	}
}

// WithCircuitBreakerThreshold is how many failed Connects in a row trip the
// breaker. Values below 1 mean the default of 5.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			threshold = 5
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps how long the breaker stays open. Values under a
// second mean the default of one minute.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			d = time.Minute
		}
		c.maxBackoff = d
		return nil
	}
}

// WithName is the connection name shown in the server's monitoring.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout is the dial timeout. It must be positive.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Close waits for buffered publishes.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithRetryOnFailedConnect keeps dialing in the background when the server
// is unreachable at Connect.
func WithRetryOnFailedConnect(enabled bool) ClientOption {
	return func(c *Client) error {
		c.retryOnFailure = enabled
		return nil
	}
}

// WithReconnectBuffer sets how many bytes of publishes are buffered while
// reconnecting. Negative disables buffering.
func WithReconnectBuffer(bytes int) ClientOption {
	return func(c *Client) error {
		c.reconnectBuffer = bytes
		return nil
	}
}
