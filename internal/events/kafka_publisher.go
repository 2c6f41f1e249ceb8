// Package events publishes committed order events to Kafka for downstream
// consumers (analytics, the merchant back office).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/plateful/api/internal/services"
)

// orderEventMessage is the JSON payload written per event.
type orderEventMessage struct {
	Kind           string    `json:"kind"`
	OrderID        int64     `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	PreviousStatus int       `json:"previousStatus"`
	CurrentStatus  int       `json:"currentStatus"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// KafkaPublisher writes order events to a single topic, keyed by order number
// so one order's events land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher over the given brokers and topic.
// An empty broker list is a configuration error; callers that run without
// Kafka simply skip constructing the publisher.
func NewKafkaPublisher(brokersCSV, topic string) (*KafkaPublisher, error) {
	brokers := splitBrokers(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

// PublishOrderEvent writes one event. The lifecycle engine treats failures as
// best-effort, so this only reports them.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	data, err := json.Marshal(orderEventMessage{
		Kind:           string(event.Kind),
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		PreviousStatus: int(event.PreviousStatus),
		CurrentStatus:  int(event.CurrentStatus),
		OccurredAt:     event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderNumber),
		Value: data,
		Time:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
