// Package events publishes stored analysis records to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trayaudit/internal/config"
	"trayaudit/internal/logger"
	"trayaudit/internal/model"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
)

// AnalysisEvent is the message value written for each new record.
type AnalysisEvent struct {
	EventID      string    `json:"event_id"`
	ImageURL     string    `json:"image_url"`
	FoodCategory string    `json:"food_category"`
	FoodType     string    `json:"food_type"`
	IsWaste      bool      `json:"is_waste"`
	PhotoDay     string    `json:"photo_day"`
	CreatedAt    time.Time `json:"created_at"`
	PublishedAt  time.Time `json:"published_at"`
}

// NewAnalysisEvent builds the event for a stored record.
func NewAnalysisEvent(rec *model.AnalysisRecord) AnalysisEvent {
	return AnalysisEvent{
		EventID:      uuid.NewString(),
		ImageURL:     rec.ImageURL,
		FoodCategory: rec.FoodCategory,
		FoodType:     rec.FoodType,
		IsWaste:      rec.IsWaste,
		PhotoDay:     rec.PhotoDay,
		CreatedAt:    rec.CreatedAt,
		PublishedAt:  time.Now().UTC(),
	}
}

// ToJSON serializes the event.
func (e AnalysisEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// KafkaPublisher writes analysis events to a topic. Delivery failures are
// logged and counted; messages are not retried.
type KafkaPublisher struct {
	producer     *kafka.Producer
	topic        string
	deliveryChan chan kafka.Event
	logger       *logger.Logger

	messagesSent   atomic.Int64
	messagesAcked  atomic.Int64
	messagesFailed atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewKafkaPublisher connects to config.KafkaBootstrapServers.
func NewKafkaPublisher(config *config.Config, logger *logger.Logger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   config.KafkaBootstrapServers,
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           5,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	kp := &KafkaPublisher{
		producer:     p,
		topic:        config.KafkaTopic,
		deliveryChan: make(chan kafka.Event, 1000),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}

	kp.wg.Add(1)
	go kp.handleDeliveryReports()

	logger.Info("Kafka publisher initialized - topic: %s, servers: %s", kp.topic, config.KafkaBootstrapServers)
	return kp, nil
}

// handleDeliveryReports processes delivery confirmations until Close.
func (kp *KafkaPublisher) handleDeliveryReports() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.ctx.Done():
			return
		case e := <-kp.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}

			if m.TopicPartition.Error != nil {
				kp.messagesFailed.Add(1)
				kp.logger.Warning("Analysis event delivery failed: %v", m.TopicPartition.Error)
			} else {
				kp.messagesAcked.Add(1)
			}
		}
	}
}

// Publish enqueues an event for rec.
func (kp *KafkaPublisher) Publish(ctx context.Context, rec *model.AnalysisRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := NewAnalysisEvent(rec)
	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize analysis event: %w", err)
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &kp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(rec.ImageURL),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "food_category", Value: []byte(rec.FoodCategory)},
			{Key: "photo_day", Value: []byte(rec.PhotoDay)},
		},
	}

	if err := kp.producer.Produce(message, kp.deliveryChan); err != nil {
		kp.messagesFailed.Add(1)
		return fmt.Errorf("failed to produce analysis event: %w", err)
	}
	kp.messagesSent.Add(1)
	return nil
}

// Stats returns sent, acknowledged and failed message counts.
func (kp *KafkaPublisher) Stats() (sent, acked, failed int64) {
	return kp.messagesSent.Load(), kp.messagesAcked.Load(), kp.messagesFailed.Load()
}

// Close flushes outstanding messages and shuts the producer down.
func (kp *KafkaPublisher) Close() {
	remaining := kp.producer.Flush(10000)
	if remaining > 0 {
		kp.logger.Warning("%d analysis events not delivered before shutdown", remaining)
	}
	kp.cancel()
	kp.wg.Wait()
	kp.producer.Close()
}
