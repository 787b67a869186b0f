package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/domain"
	"github.com/vladislavdragonenkov/ois/internal/metrics"
)

const (
	defaultMaxDeliveries = 3
	defaultRestartDelay  = time.Second
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// OrderCreatedHandler сохраняет разобранное событие о создании заказа.
type OrderCreatedHandler interface {
	Handle(ctx context.Context, event domain.OrderCreatedEvent) error
}

// NewOrderCreatedHandler адаптирует OrderCreatedHandler к MessageHandler:
// разбирает payload и передаёт событие дальше.
func NewOrderCreatedHandler(h OrderCreatedHandler) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseOrderCreated(message.Value)
		if err != nil {
			return err
		}
		return h.Handle(ctx, event)
	}
}

// ConsumerConfig описывает параметры consumer group.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// DLQTopic — topic для сообщений, которые не удалось обработать.
	DLQTopic string
	// MaxDeliveries — сколько раз сообщение доставляется до отправки в DLQ.
	MaxDeliveries int
	// RestartDelay — пауза перед повторным входом в группу после ошибки обработки.
	RestartDelay time.Duration
}

type deliveryKey struct {
	topic     string
	partition int32
	offset    int64
}

// Consumer читает события из consumer group. Offset помечается только после
// успешной обработки; при ошибке сессия перезапускается и сообщение доставляется снова.
type Consumer struct {
	client        sarama.Client
	consumer      sarama.ConsumerGroup
	topics        []string
	handler       MessageHandler
	logger        *log.Entry
	wg            sync.WaitGroup
	dlqProducer   *Producer
	dlqTopic      string
	maxDeliveries int
	restartDelay  time.Duration
	metrics       *metrics.IngestMetrics

	restartPending atomic.Bool

	mu         sync.Mutex
	deliveries map[deliveryKey]int
}

// NewConsumer создаёт consumer group. dlqProducer может быть nil.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, dlqProducer *Producer, m *metrics.IngestMetrics) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	c := newConsumer(group, cfg, handler, dlqProducer, m)
	c.client = client
	return c, nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, dlqProducer *Producer, m *metrics.IngestMetrics) *Consumer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = defaultMaxDeliveries
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.DLQTopic == "" {
		cfg.DLQTopic = TopicDeadLetterQueue
	}

	return &Consumer{
		consumer:      group,
		topics:        cfg.Topics,
		handler:       handler,
		logger:        log.WithField("component", "kafka-consumer"),
		dlqProducer:   dlqProducer,
		dlqTopic:      cfg.DLQTopic,
		maxDeliveries: cfg.MaxDeliveries,
		restartDelay:  cfg.RestartDelay,
		metrics:       m,
		deliveries:    make(map[deliveryKey]int),
	}
}

// Start запускает чтение в фоне. Остановка — через отмену ctx и Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance и при ошибке обработки.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
			if c.restartPending.Swap(false) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.restartDelay):
				}
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает consumer group и дожидается фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	// группа, созданная из клиента, клиент не закрывает
	if c.client != nil && !c.client.Closed() {
		if err := c.client.Close(); err != nil {
			return fmt.Errorf("failed to close kafka client: %w", err)
		}
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

var errClientClosed = errors.New("kafka client is not connected")

// Ping запрашивает метаданные topics у брокеров. Ошибка означает, что ни один
// брокер не ответил.
func (c *Consumer) Ping(ctx context.Context) error {
	if c.client == nil || c.client.Closed() {
		return errClientClosed
	}

	done := make(chan error, 1)
	go func() { done <- c.client.RefreshMetadata(c.topics...) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("refresh kafka metadata: %w", err)
		}
		return nil
	}
}

// Setup вызывается при старте consumer session. Счётчики доставок partition,
// которые после rebalance достались другому участнику группы, сбрасываются.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.retainClaims(session.Claims())
	return nil
}

// Cleanup вызывается при завершении consumer session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения одной partition последовательно.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Debug("message consumed")

			if err := c.process(session.Context(), message); err != nil {
				// Offset не помечаем: после перезапуска сессии сообщение придёт снова.
				c.restartPending.Store(true)
				return fmt.Errorf("process %s/%d@%d: %w", message.Topic, message.Partition, message.Offset, err)
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// process возвращает nil, если сообщение можно пометить обработанным:
// оно сохранено или отправлено в DLQ.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handler(ctx, message)
	if err == nil {
		c.forget(message)
		return nil
	}

	if domain.IsMalformedEvent(err) {
		c.forget(message)
		return c.deadLetter(message, err, metrics.ReasonMalformed, 1)
	}

	deliveries := c.recordDelivery(message)
	if deliveries < c.maxDeliveries {
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":          message.Topic,
			"partition":      message.Partition,
			"offset":         message.Offset,
			"deliveries":     deliveries,
			"max_deliveries": c.maxDeliveries,
		}).Warn("message processing failed, waiting for redelivery")
		return err
	}

	if c.dlqProducer == nil {
		// Без DLQ сообщение будет доставляться, пока запись не пройдёт.
		c.logger.WithError(err).WithField("deliveries", deliveries).Error("delivery limit reached and no DLQ configured")
		return err
	}

	if dlqErr := c.deadLetter(message, err, metrics.ReasonExhausted, deliveries); dlqErr != nil {
		return dlqErr
	}
	c.forget(message)
	return nil
}

func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, cause error, reason string, deliveries int) error {
	fields := log.Fields{
		"topic":      message.Topic,
		"partition":  message.Partition,
		"offset":     message.Offset,
		"reason":     reason,
		"deliveries": deliveries,
	}

	if c.dlqProducer == nil {
		// Некорректное сообщение не исправится повторной доставкой: пропускаем его.
		c.logger.WithError(cause).WithFields(fields).Error("dropping message: no DLQ configured")
		c.metrics.RecordDeadLetter(reason)
		return nil
	}

	if err := c.sendToDLQ(message, cause, reason, deliveries); err != nil {
		c.logger.WithError(err).WithFields(fields).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	c.metrics.RecordDeadLetter(reason)
	c.logger.WithError(cause).WithFields(fields).Warn("message sent to DLQ")
	return nil
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, cause error, reason string, deliveries int) error {
	failedAt := time.Now().UTC()
	letter := DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		Reason:            reason,
		ErrorMessage:      cause.Error(),
		Deliveries:        deliveries,
		FailedAt:          failedAt,
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	return c.dlqProducer.Publish(c.dlqTopic, string(message.Key), payload, map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderDeliveryCount: strconv.Itoa(deliveries),
		HeaderErrorMessage:  cause.Error(),
		HeaderFailedAt:      failedAt.Format(time.RFC3339),
	})
}

func (c *Consumer) recordDelivery(message *sarama.ConsumerMessage) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deliveries == nil {
		c.deliveries = make(map[deliveryKey]int)
	}
	key := deliveryKey{topic: message.Topic, partition: message.Partition, offset: message.Offset}
	c.deliveries[key]++
	return c.deliveries[key]
}

// retainClaims оставляет счётчики только для partitions из claims. Счётчики
// остальных partitions сессия больше не увидит.
func (c *Consumer) retainClaims(claims map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owned := make(map[string]map[int32]bool, len(claims))
	for topic, partitions := range claims {
		owned[topic] = make(map[int32]bool, len(partitions))
		for _, partition := range partitions {
			owned[topic][partition] = true
		}
	}
	for key := range c.deliveries {
		if !owned[key.topic][key.partition] {
			delete(c.deliveries, key)
		}
	}
}

func (c *Consumer) forget(message *sarama.ConsumerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.deliveries, deliveryKey{topic: message.Topic, partition: message.Partition, offset: message.Offset})
}
