package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"ms-orders/internal/config"
	"ms-orders/internal/logger"
	"ms-orders/internal/models"
	"ms-orders/internal/order"
	"ms-orders/internal/order/db"
)

// PaymentHandler is the slice of the order state machine the consumer needs.
type PaymentHandler interface {
	MarkOrderPaid(ctx context.Context, orderNo, transactionID string) (*models.Order, error)
	MarkOrderRefunded(ctx context.Context, orderNo, refundID string) (*models.Order, error)
}

// Consumer feeds normalized payment events from the gateway's topics into
// the order state machine. Delivery is at-least-once: a message is committed
// only once it reached a terminal outcome. Transient store failures are
// retried in place, because fetching past an uncommitted message would
// silently acknowledge its offset as soon as a later message commits.
// Business rejections are terminal and committed, so a poison message cannot
// wedge the partition.
type Consumer struct {
	success       *kafka.Reader
	refunded      *kafka.Reader
	handler       PaymentHandler
	logger        *logger.Logger
	retryInterval time.Duration
}

func NewConsumer(brokers []string, topics config.TopicConfig, groupID string, handler PaymentHandler, log *logger.Logger) *Consumer {
	newReader := func(topic string) *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		})
	}
	return &Consumer{
		success:       newReader(topics.PaymentSuccess),
		refunded:      newReader(topics.PaymentRefunded),
		handler:       handler,
		logger:        log,
		retryInterval: time.Second,
	}
}

// Start consumes both topics until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go c.consume(ctx, c.success, func(ctx context.Context, ev models.PaymentEvent) error {
		_, err := c.handler.MarkOrderPaid(ctx, ev.OrderNo, ev.TransactionID)
		return err
	})
	go c.consume(ctx, c.refunded, func(ctx context.Context, ev models.PaymentEvent) error {
		_, err := c.handler.MarkOrderRefunded(ctx, ev.OrderNo, ev.RefundID)
		return err
	})
}

func (c *Consumer) consume(ctx context.Context, reader *kafka.Reader, handle func(ctx context.Context, ev models.PaymentEvent) error) {
	c.logger.LogKafka("CONSUME", reader.Config().Topic, "consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			// io.EOF means the reader was closed.
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("fetch message: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryInterval):
			}
			continue
		}

		var ev models.PaymentEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("unmarshal payment event: %v", err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		if err := c.process(ctx, ev, handle); err != nil {
			// Only cancellation gets here; the message stays uncommitted
			// and the group redelivers it.
			return
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("commit message: %v", err))
		}
	}
}

// process drives one payment event to a terminal outcome. A transient store
// failure is retried in place with backoff; a business rejection is logged
// and treated as terminal. Returns an error only when ctx ends mid-retry.
func (c *Consumer) process(ctx context.Context, ev models.PaymentEvent, handle func(ctx context.Context, ev models.PaymentEvent) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until the store recovers or ctx ends

	operation := func() error {
		err := handle(ctx, ev)
		if err == nil {
			return nil
		}
		if errors.Is(err, db.ErrTxRetriesExhausted) {
			c.logger.Warn("KAFKA", fmt.Sprintf("transient failure for order %s, retrying in place: %v", ev.OrderNo, err))
			return err
		}
		if errors.Is(err, order.ErrInvalidTransition) || errors.Is(err, db.ErrOrderNotFound) {
			c.logger.Error("KAFKA", fmt.Sprintf("payment event for order %s rejected: %v", ev.OrderNo, err))
		} else {
			c.logger.Error("KAFKA", fmt.Sprintf("payment event for order %s failed: %v", ev.OrderNo, err))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func (c *Consumer) Close() error {
	if err := c.success.Close(); err != nil {
		return err
	}
	return c.refunded.Close()
}
