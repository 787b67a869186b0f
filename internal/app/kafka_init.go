package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ois/internal/health"
	"github.com/vladislavdragonenkov/ois/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ois/internal/metrics"
)

// kafkaRuntime — consumer событий и producer для DLQ.
type kafkaRuntime struct {
	consumer *kafka.Consumer
	producer *kafka.Producer
}

// initKafka создаёт consumer group и DLQ producer. Если брокеры не заданы,
// возвращает nil, nil: сервис работает только на чтение.
func initKafka(cfg Config, handler kafka.OrderCreatedHandler, m *metrics.IngestMetrics, logger *log.Entry) (*kafkaRuntime, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("KAFKA_BROKERS is empty, order consumer disabled")
		return nil, nil
	}

	var producer *kafka.Producer
	if cfg.KafkaDLQEnabled {
		p, err := initKafkaProducer(brokers, logger)
		if err != nil {
			return nil, err
		}
		producer = p
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       brokers,
		GroupID:       cfg.KafkaGroupID,
		Topics:        []string{cfg.KafkaTopic},
		DLQTopic:      cfg.KafkaDLQTopic,
		MaxDeliveries: cfg.KafkaMaxDeliveries,
	}, kafka.NewOrderCreatedHandler(handler), producer, m)
	if err != nil {
		closeKafkaProducer(producer, logger)
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers":        brokers,
		"group":          cfg.KafkaGroupID,
		"topic":          cfg.KafkaTopic,
		"dlq_enabled":    producer != nil,
		"max_deliveries": cfg.KafkaMaxDeliveries,
	}).Info("kafka consumer initialized")

	return &kafkaRuntime{consumer: consumer, producer: producer}, nil
}

// initKafkaProducer создаёт producer для DLQ.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Error("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

func (k *kafkaRuntime) start(ctx context.Context) error {
	if k == nil {
		return nil
	}
	return k.consumer.Start(ctx)
}

// checker опрашивает брокеры через клиент consumer. Недоступная Kafka
// переводит сервис в degraded: чтение заказов продолжает работать.
func (k *kafkaRuntime) checker() healthcheck.Checker {
	if k == nil {
		return healthcheck.NewStaticChecker("kafka", healthcheck.StatusDegraded, "consumer disabled")
	}
	return healthcheck.NewPingChecker("kafka", k.consumer.Ping).WithFailureStatus(healthcheck.StatusDegraded)
}

func (k *kafkaRuntime) stop(logger *log.Entry) {
	if k == nil {
		return
	}
	if err := k.consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
	closeKafkaProducer(k.producer, logger)
}

// closeKafkaProducer закрывает producer, если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
