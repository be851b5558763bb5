package kafka

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-orders/internal/logger"
)

// EnsureTopicsExist creates the service's topics on the cluster controller.
// Missing brokers at boot are a deployment problem; an already existing topic
// is not.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("TOPIC", topic, "created")
		case strings.Contains(err.Error(), "already exists"):
			log.LogKafka("TOPIC", topic, "already exists")
		default:
			// Keep going; the producer fails loudly later if the topic is
			// really absent.
			log.Error("KAFKA", fmt.Sprintf("create topic %s: %v", topic, err))
		}
	}

	// Give the cluster a moment to propagate metadata.
	time.Sleep(1 * time.Second)
	return nil
}
