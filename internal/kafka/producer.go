package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-orders/internal/config"
	"ms-orders/internal/logger"
	"ms-orders/internal/models"
)

// OrderEventEnvelope is the message body for order lifecycle events. The
// type field distinguishes created/paid/cancelled/refunded on a single topic.
type OrderEventEnvelope struct {
	Type  string       `json:"type"`
	Order models.Order `json:"order"`
}

type InviteEventEnvelope struct {
	Type   string             `json:"type"`
	Invite models.OrderInvite `json:"invite"`
}

type Producer struct {
	writer *kafka.Writer
	topics config.TopicConfig
	logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer, topics: topics, logger: log}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))

	return p.writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) PublishOrderCreated(order models.Order) error {
	return p.publish(p.topics.OrderEvents, order.ID, OrderEventEnvelope{Type: "order.created", Order: order})
}

func (p *Producer) PublishOrderPaid(order models.Order) error {
	return p.publish(p.topics.OrderEvents, order.ID, OrderEventEnvelope{Type: "order.paid", Order: order})
}

func (p *Producer) PublishOrderCancelled(order models.Order) error {
	return p.publish(p.topics.OrderEvents, order.ID, OrderEventEnvelope{Type: "order.cancelled", Order: order})
}

func (p *Producer) PublishOrderRefunded(order models.Order) error {
	return p.publish(p.topics.OrderEvents, order.ID, OrderEventEnvelope{Type: "order.refunded", Order: order})
}

func (p *Producer) PublishInviteRedeemed(invite models.OrderInvite) error {
	return p.publish(p.topics.InviteEvents, invite.OrderID, InviteEventEnvelope{Type: "invite.redeemed", Invite: invite})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
