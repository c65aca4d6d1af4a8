package ingest

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// MessageHandler processes one incoming stream message. Returning an error
// drops the connection; the client then reconnects with backoff.
type MessageHandler func(messageType int, payload []byte) error

// Client is a resilient WebSocket consumer for the content-value pipeline's
// signal stream. Disconnects are expected: the pipeline restarts on deploys,
// so the client reconnects forever with exponential backoff and jitter.
type Client struct {
	config  Config
	handler MessageHandler
	logger  *slog.Logger
	dialer  websocket.Dialer

	mu          sync.Mutex
	rng         *rand.Rand // protected by mu
	conn        *websocket.Conn
	isConnected bool

	// reconnectCount tracks consecutive failed connection attempts (atomic).
	reconnectCount int64
}

// NewClient creates a signal stream client. The handler is called for every
// message received; a nil handler discards messages.
func NewClient(config Config, handler MessageHandler, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:  config,
		handler: handler,
		logger:  logger,
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run connects and consumes messages until the context is cancelled,
// reconnecting on any failure. It only ever returns the context's error.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("signal stream client stopping")
			c.close()
			return err
		}

		if err := c.connect(ctx); err != nil {
			if waitErr := c.waitBackoff(ctx, err); waitErr != nil {
				return waitErr
			}
			continue
		}

		atomic.StoreInt64(&c.reconnectCount, 0)
		c.readLoop(ctx)
	}
}

// waitBackoff logs the failure, sleeps for the next backoff delay, and
// escalates to error-level logging once the attempt budget is exhausted.
func (c *Client) waitBackoff(ctx context.Context, cause error) error {
	attempt := atomic.AddInt64(&c.reconnectCount, 1)
	delay := c.computeBackoff(attempt - 1)

	if c.config.MaxRetryAttempts > 0 && attempt > c.config.MaxRetryAttempts {
		c.logger.Error("signal stream still unreachable",
			slog.String("error", cause.Error()),
			slog.Int64("attempt", attempt),
			slog.Duration("next_delay", delay))
	} else {
		c.logger.Warn("signal stream connection failed, scheduling reconnect",
			slog.String("error", cause.Error()),
			slog.Int64("attempt", attempt),
			slog.Duration("next_delay", delay))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.logger.Info("connecting to signal stream", slog.String("url", c.config.URL))

	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Info("connected to signal stream")
	return nil
}

// readLoop consumes messages until the connection drops or the context is
// cancelled. Payload content is never logged.
func (c *Client) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		// Snapshot the connection under lock so close() can't race.
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("signal stream connection closed",
				slog.String("error", err.Error()))
			c.close()
			return
		}

		if c.handler == nil {
			continue
		}
		if err := c.handler(messageType, payload); err != nil {
			c.logger.Error("signal handler error, dropping connection",
				slog.String("error", err.Error()))
			c.close()
			return
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
}

// computeBackoff returns BaseDelay * 2^failures capped at MaxDelay, with
// JitterFactor randomization so a fleet of consumers doesn't reconnect in
// lockstep. The shift is capped at 30 to avoid overflow.
func (c *Client) computeBackoff(failures int64) time.Duration {
	shift := uint(failures)
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)
	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	if c.config.JitterFactor > 0 {
		c.mu.Lock()
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		c.mu.Unlock()
		backoff *= 1 + jitter
	}

	return time.Duration(backoff)
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}
