// internal/broker/durable.go
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DurableQueue is the durable point-to-point primitive: a named durable queue
// fed with persistent messages through the default exchange. Messages survive
// broker restarts until some consumer acknowledges them.
//
// Nothing in bookswap consumes the user-created queue yet. A consumer would
// Consume the queue with manual acks, the same way Fanout.Subscribe does.
type DurableQueue struct {
	client *Client
	queue  string
	logger *zap.Logger
}

func NewDurableQueue(client *Client, queue string, logger *zap.Logger) *DurableQueue {
	q := &DurableQueue{client: client, queue: queue, logger: logger}
	client.OnConnect(func(_ context.Context, _ *amqp.Connection, ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		return nil
	})
	return q
}

// Publish sends fact as a persistent message.
func (q *DurableQueue) Publish(ctx context.Context, fact Fact) error {
	body, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}

	messageID := newMessageID()
	err = q.client.withChannel(func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Type:         fact.Type,
			Timestamp:    time.Now(),
			Body:         body,
		})
	})
	if err != nil {
		q.logger.Error("failed to publish fact",
			zap.String("queue", q.queue),
			zap.String("type", fact.Type),
			zap.Error(err),
		)
		return err
	}

	q.logger.Info("fact queued",
		zap.String("queue", q.queue),
		zap.String("type", fact.Type),
		zap.String("message_id", messageID),
	)
	return nil
}

func newMessageID() string {
	return uuid.NewString()
}
