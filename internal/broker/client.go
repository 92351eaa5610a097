// internal/broker/client.go
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ReconnectDelay is the fixed pause between connection attempts.
const ReconnectDelay = 5 * time.Second

// SetupFunc declares topology or starts consumers on a fresh connection.
type SetupFunc func(ctx context.Context, conn *amqp.Connection, ch *amqp.Channel) error

// Client owns the process-wide broker connection. It dials in the
// background, retrying forever, and re-runs every registered SetupFunc after
// each successful (re)connect.
type Client struct {
	url    string
	logger *zap.Logger
	delay  time.Duration

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	setups  []SetupFunc

	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(url string, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		logger: logger,
		delay:  ReconnectDelay,
	}
}

// OnConnect registers fn to run on every new connection. Register before Open.
func (c *Client) OnConnect(fn SetupFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setups = append(c.setups, fn)
}

// Open starts the connection loop and returns immediately.
func (c *Client) Open(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Close stops the connection loop and closes the connection.
func (c *Client) Close() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.conn != nil && !c.conn.IsClosed() {
		err = c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	return err
}

// Connected reports whether a usable channel is available.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel != nil
}

func (c *Client) withChannel(fn func(ch *amqp.Channel) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return ErrNotConnected
	}
	return fn(c.channel)
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		conn, err := retryForever(ctx, c.delay, c.logger, func() (*amqp.Connection, error) {
			return amqp.Dial(c.url)
		})
		if err != nil {
			return
		}

		ch, err := c.setup(ctx, conn)
		if err != nil {
			c.logger.Error("broker setup failed, reconnecting", zap.Error(err), zap.Duration("delay", c.delay))
			conn.Close()
			if !sleep(ctx, c.delay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn, c.channel = conn, ch
		c.mu.Unlock()
		c.logger.Info("RabbitMQ connected")

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case amqpErr := <-connClosed:
			c.drop()
			c.logger.Warn("RabbitMQ connection lost", zap.Any("reason", amqpErr))
		case amqpErr := <-chanClosed:
			// A dead publish channel leaves the connection up; recycle it so
			// every setup runs again.
			c.drop()
			c.logger.Warn("RabbitMQ channel closed, reconnecting", zap.Any("reason", amqpErr))
			conn.Close()
		}
	}
}

func (c *Client) drop() {
	c.mu.Lock()
	c.conn, c.channel = nil, nil
	c.mu.Unlock()
}

// recycle closes conn when one of its consumer channels died while the
// connection stayed open, so the run loop reconnects and re-runs setups.
func (c *Client) recycle(conn *amqp.Connection) {
	if conn.IsClosed() {
		return
	}
	c.logger.Warn("RabbitMQ consumer channel closed, reconnecting")
	conn.Close()
}

func (c *Client) setup(ctx context.Context, conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c.mu.RLock()
	setups := append([]SetupFunc(nil), c.setups...)
	c.mu.RUnlock()

	for _, fn := range setups {
		if err := fn(ctx, conn, ch); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// retryForever calls attempt until it succeeds or ctx is done, pausing a
// fixed delay between failures.
func retryForever[T any](ctx context.Context, delay time.Duration, logger *zap.Logger, attempt func() (T, error)) (T, error) {
	for {
		v, err := attempt()
		if err == nil {
			return v, nil
		}
		logger.Error("failed to connect to RabbitMQ, retrying", zap.Error(err), zap.Duration("delay", delay))
		if !sleep(ctx, delay) {
			var zero T
			return zero, ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
