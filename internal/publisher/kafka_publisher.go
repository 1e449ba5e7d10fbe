package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sms-number-bot/internal/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher publishes domain events keyed by user id. Delivery reports
// are only logged; publishing is best effort.
type KafkaPublisher struct {
	producer producer
	topic    string
	done     chan struct{}
}

func NewKafkaPublisher(bootstrapServers, topic string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"client.id":         "sms-number-bot",
		"acks":              "1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.WithFields(log.Fields{"kafka_servers": bootstrapServers, "topic": topic}).Info("Connected Kafka producer")
	return newKafkaPublisher(p, topic), nil
}

func newKafkaPublisher(p producer, topic string) *KafkaPublisher {
	kp := &KafkaPublisher{producer: p, topic: topic, done: make(chan struct{})}
	go kp.watchDeliveries()
	return kp
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(strconv.FormatInt(event.UserID, 10)),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(event.Type)}},
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce event %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) watchDeliveries() {
	defer close(p.done)
	for ev := range p.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				log.WithError(e.TopicPartition.Error).Warn("Kafka delivery failed")
			}
		case kafka.Error:
			log.WithError(e).Error("Kafka error")
		}
	}
}

// Close flushes outstanding messages and closes the producer.
func (p *KafkaPublisher) Close() {
	if remaining := p.producer.Flush(5000); remaining > 0 {
		log.WithField("remaining", remaining).Warn("Kafka producer closed with undelivered messages")
	}
	p.producer.Close()
	<-p.done
}

// NopPublisher is used when no event stream is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event domain.Event) error { return nil }
