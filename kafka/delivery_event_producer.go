package kafka

import (
	"context"
	"encoding/json"

	"plan-delivery-service/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DeliveryEventProducer publishes delivery lifecycle events keyed by
// transaction ID, so all events for one transaction land on one partition
// in order.
type DeliveryEventProducer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewDeliveryEventProducer(brokers []string, topic string, logger *zap.Logger) *DeliveryEventProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	logger.Info("Delivery event producer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
	)
	return &DeliveryEventProducer{writer: w, topic: topic, logger: logger}
}

func (p *DeliveryEventProducer) SendDeliveryEvent(event models.DeliveryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: data,
	}

	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.logger.Error("Failed to send delivery event",
			zap.String("event_type", event.Type),
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func (p *DeliveryEventProducer) Close() {
	_ = p.writer.Close()
	p.logger.Info("Delivery event producer closed")
}
