package kafka

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

const producerClientID = "order-ingest"

// Producer публикует в Kafka события "заказ создан" и записи DLQ.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = producerClientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Compression = sarama.CompressionSnappy
	// идемпотентность требует одного in-flight запроса на соединение
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам и возвращает синхронный producer.
func NewProducer(brokers []string) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sync), nil
}

func newProducer(sync sarama.SyncProducer) *Producer {
	return &Producer{
		sync:   sync,
		logger: log.WithField("component", "kafka-producer"),
		now:    time.Now,
	}
}

// PublishOrderCreated кодирует событие в канонический JSON; ключ сообщения — номер заказа.
func (p *Producer) PublishOrderCreated(topic string, event domain.OrderCreatedEvent) error {
	payload, err := EncodeOrderCreated(event)
	if err != nil {
		return err
	}
	return p.Publish(topic, strconv.FormatInt(event.OrderID, 10), payload, nil)
}

// Publish отправляет готовый payload.
func (p *Producer) Publish(topic, key string, value []byte, headers map[string]string) error {
	msg := p.message(topic, key, value, headers)
	fields := log.Fields{"topic": topic, "key": key}

	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

// message собирает ProducerMessage; заголовки идут в порядке ключей.
func (p *Producer) message(topic, key string, value []byte, headers map[string]string) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: p.now(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte(name),
			Value: []byte(headers[name]),
		})
	}
	return msg
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
