package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/rabbitmq"
	"github.com/boscod/trackwatch/internal/services"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	consumerTag   = "alert-worker-1"
	prefetchCount = 10

	// MaxAttempts bounds the deliveries of one event before it is dropped.
	MaxAttempts = 5
	RetryDelay  = 30 * time.Second
)

// EventHandler processes one policy event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event services.PolicyEvent) error
}

// Retrier schedules a failed event for another attempt.
type Retrier interface {
	Retry(ctx context.Context, event services.PolicyEvent, attempt int, delay time.Duration) error
}

type AlertWorker struct {
	client  *rabbitmq.Client
	handler EventHandler
	retrier Retrier
	logger  *zap.Logger
}

func NewAlertWorker(client *rabbitmq.Client, handler EventHandler, logger *zap.Logger) *AlertWorker {
	return &AlertWorker{
		client:  client,
		handler: handler,
		retrier: client,
		logger:  logger.Named("alert-worker"),
	}
}

// StartWorker consumes policy events until ctx is cancelled. When the
// broker connection drops it subscribes again once the client has
// reconnected.
func (w *AlertWorker) StartWorker(ctx context.Context) error {
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			w.logger.Info("worker exiting")
			return nil
		}
		w.logger.Warn("consumer stopped, resubscribing",
			zap.Error(err),
			zap.Duration("retry_in", rabbitmq.ReconnectDelay))

		select {
		case <-ctx.Done():
			w.logger.Info("worker exiting")
			return nil
		case <-time.After(rabbitmq.ReconnectDelay):
		}
	}
}

// consume runs one subscription. It returns nil after a shutdown signal,
// once the message in flight has been settled.
func (w *AlertWorker) consume(ctx context.Context) error {
	ch, err := w.client.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		rabbitmq.ProcessingQueueName, // queue
		consumerTag,                  // consumer tag
		false,                        // auto-ack
		false,                        // exclusive
		false,                        // no-local
		false,                        // no-wait
		nil,                          // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	w.logger.Info("worker started", zap.String("queue", rabbitmq.ProcessingQueueName))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range msgs {
			w.processMessage(ctx, d)
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("shutdown signal received, cancelling consumer")
		if err := ch.Cancel(consumerTag, false); err != nil {
			w.logger.Warn("failed to cancel consumer", zap.Error(err))
		}
		<-done
		return nil
	case <-done:
		return errors.New("delivery channel closed")
	}
}

func (w *AlertWorker) processMessage(ctx context.Context, d amqp.Delivery) {
	var event services.PolicyEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.logger.Warn("invalid event payload, rejecting", zap.String("message_id", d.MessageId), zap.Error(err))
		d.Reject(false)
		return
	}

	attempt := rabbitmq.Attempt(d.Headers)
	logger := w.logger.With(
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind),
		zap.Int("attempt", attempt))

	// Delivery outlives the shutdown signal so the event in flight is
	// settled instead of redelivered.
	handleCtx := logctx.WithLogger(context.WithoutCancel(ctx), logger)
	err := w.handler.HandleEvent(handleCtx, event)
	if err == nil {
		d.Ack(false)
		return
	}

	if attempt >= MaxAttempts {
		logger.Error("alert failed, dropping event", zap.Error(err))
		d.Ack(false)
		return
	}

	logger.Warn("alert failed, scheduling retry", zap.Error(err), zap.Duration("retry_in", RetryDelay))
	if rerr := w.retrier.Retry(handleCtx, event, attempt+1, RetryDelay); rerr != nil {
		logger.Warn("failed to schedule retry, requeueing", zap.Error(rerr))
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}
