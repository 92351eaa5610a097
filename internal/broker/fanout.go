// internal/broker/fanout.go
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Fanout is the ephemeral pub/sub primitive: a non-durable fanout exchange
// whose subscribers each bind an exclusive, auto-deleted queue. A subscriber
// that is not connected when a fact is published never sees it.
type Fanout struct {
	client   *Client
	exchange string
	logger   *zap.Logger
}

func NewFanout(client *Client, exchange string, logger *zap.Logger) *Fanout {
	f := &Fanout{client: client, exchange: exchange, logger: logger}
	client.OnConnect(func(_ context.Context, _ *amqp.Connection, ch *amqp.Channel) error {
		return f.declare(ch)
	})
	return f
}

func (f *Fanout) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(f.exchange, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", f.exchange, err)
	}
	return nil
}

// Publish sends fact as a transient message.
func (f *Fanout) Publish(ctx context.Context, fact Fact) error {
	body, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}

	err = f.client.withChannel(func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, f.exchange, "", false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			MessageId:    newMessageID(),
			Type:         fact.Type,
			Timestamp:    time.Now(),
			Body:         body,
		})
	})
	if err != nil {
		f.logger.Error("failed to publish fact",
			zap.String("exchange", f.exchange),
			zap.String("type", fact.Type),
			zap.Error(err),
		)
		return err
	}

	f.logger.Info("fact published", zap.String("exchange", f.exchange), zap.String("type", fact.Type))
	return nil
}

// Subscribe consumes every fact published while connected. It must be called
// before the client is opened; the binding is recreated after reconnects,
// including the ones forced by a closed consumer channel.
func (f *Fanout) Subscribe(handler Handler) {
	f.client.OnConnect(func(ctx context.Context, conn *amqp.Connection, _ *amqp.Channel) error {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		if err := f.declare(ch); err != nil {
			return err
		}

		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return fmt.Errorf("declare subscriber queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, "", f.exchange, false, nil); err != nil {
			return fmt.Errorf("bind subscriber queue: %w", err)
		}

		msgs, err := ch.Consume(q.Name, "", false, true, false, false, nil)
		if err != nil {
			return fmt.Errorf("start consuming: %w", err)
		}

		f.logger.Info("subscribed to fanout", zap.String("exchange", f.exchange), zap.String("queue", q.Name))
		go consume(ctx, msgs, handler, f.logger, func() { f.client.recycle(conn) })
		return nil
	})
}

// acker is the part of amqp.Delivery the consume loop needs.
type acker interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
}

// consume handles msgs until the channel closes. If that happens before ctx
// is done the consumer channel died underneath it, and lost is called.
func consume(ctx context.Context, msgs <-chan amqp.Delivery, handler Handler, logger *zap.Logger, lost func()) {
	for msg := range msgs {
		handleMessage(ctx, msg.Body, &msg, handler, logger)
	}
	if ctx.Err() == nil {
		lost()
	}
}

// handleMessage decodes, hands off and acknowledges one message. Messages
// that cannot be decoded or handled are dropped.
func handleMessage(ctx context.Context, body []byte, ack acker, handler Handler, logger *zap.Logger) {
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		logger.Warn("dropping undecodable message", zap.Error(err))
		if err := ack.Reject(false); err != nil {
			logger.Error("failed to reject message", zap.Error(err))
		}
		return
	}

	if err := handler(ctx, d); err != nil {
		logger.Error("fact handler failed", zap.String("type", d.Type), zap.Error(err))
		if err := ack.Reject(false); err != nil {
			logger.Error("failed to reject message", zap.Error(err))
		}
		return
	}

	if err := ack.Ack(false); err != nil {
		logger.Error("failed to acknowledge message", zap.String("type", d.Type), zap.Error(err))
	}
}
