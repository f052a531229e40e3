// Package rabbitmq carries policy events from the ingestion endpoints to
// the alert worker.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/boscod/trackwatch/internal/services"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName        = "trackwatch.events"
	ProcessingQueueName = "alerts.process"
	RetryQueueName      = "alerts.retry"
	RoutingKeyProcess   = "process"
	RoutingKeyRetry     = "retry"
	ReconnectDelay      = 5 * time.Second

	// HeaderAttempt counts deliveries of an event, starting at 1.
	HeaderAttempt = "x-attempt"
)

type Client struct {
	url    string
	logger *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// Dial connects to url and declares the exchange and queues. The client
// reconnects on its own when the connection drops.
func Dial(url string, logger *zap.Logger) (*Client, error) {
	c := &Client{url: url, logger: logger.Named("rabbitmq")}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.logger.Info("connecting to RabbitMQ")
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	go c.watchConnection(conn)

	c.logger.Info("RabbitMQ connected")
	return nil
}

// declareTopology sets up a direct exchange with a processing queue and a
// retry queue whose expired messages dead-letter back into processing.
func declareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		ProcessingQueueName, // name
		true,                // durable
		false,               // delete when unused
		false,               // exclusive
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare processing queue: %w", err)
	}
	if err := ch.QueueBind(ProcessingQueueName, RoutingKeyProcess, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind processing queue: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": RoutingKeyProcess,
	}
	_, err = ch.QueueDeclare(
		RetryQueueName, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		args,           // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}
	if err := ch.QueueBind(RetryQueueName, RoutingKeyRetry, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind retry queue: %w", err)
	}
	return nil
}

func (c *Client) watchConnection(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	c.logger.Warn("RabbitMQ connection closed, reconnecting", zap.Error(err))
	for {
		time.Sleep(ReconnectDelay)
		if err := c.connect(); err != nil {
			c.logger.Warn("failed to reconnect to RabbitMQ", zap.Error(err), zap.Duration("retry_in", ReconnectDelay))
			continue
		}
		return
	}
}

// Channel returns the current channel, or an error while disconnected.
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ client not (yet) connected")
	}
	return c.channel, nil
}

// Close closes the connection and channel
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish sends a policy event to the processing queue. It satisfies
// services.EventPublisher.
func (c *Client) Publish(ctx context.Context, event services.PolicyEvent) error {
	return c.publish(ctx, RoutingKeyProcess, event, 1, 0)
}

// Retry schedules event for another delivery after delay.
func (c *Client) Retry(ctx context.Context, event services.PolicyEvent, attempt int, delay time.Duration) error {
	return c.publish(ctx, RoutingKeyRetry, event, attempt, delay)
}

func (c *Client) publish(ctx context.Context, routingKey string, event services.PolicyEvent, attempt int, delay time.Duration) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.Kind,
		Timestamp:    event.OccurredAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{HeaderAttempt: int32(attempt)},
	}
	if delay > 0 {
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := ch.PublishWithContext(ctx, ExchangeName, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Attempt reads the delivery counter of a message, defaulting to 1.
func Attempt(headers amqp.Table) int {
	switch v := headers[HeaderAttempt].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}
