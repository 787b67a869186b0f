package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Поддерживаемые драйверы хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string
	MongoCollection     string

	// KafkaBrokers — список брокеров через запятую. Пустое значение отключает consumer.
	KafkaBrokers       string
	KafkaGroupID       string
	KafkaTopic         string
	KafkaDLQTopic      string
	KafkaDLQEnabled    bool
	KafkaMaxDeliveries int

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		MongoDatabase:       "ois",
		MongoCollection:     "tb_orders",
		KafkaGroupID:        "ois-order-ingest",
		KafkaTopic:          "orders.created",
		KafkaDLQTopic:       "orders.created.dlq",
		KafkaDLQEnabled:     true,
		KafkaMaxDeliveries:  3,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Brokers разбирает KafkaBrokers в список адресов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, errors.New("mongo uri is required for mongo storage driver"))
		}
		if strings.TrimSpace(c.MongoDatabase) == "" {
			errs = append(errs, errors.New("mongo database is required for mongo storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if len(c.Brokers()) > 0 {
		if c.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka topic is required"))
		}
		if c.KafkaGroupID == "" {
			errs = append(errs, errors.New("kafka group id is required"))
		}
		if c.KafkaMaxDeliveries <= 0 {
			errs = append(errs, errors.New("kafka max deliveries must be > 0"))
		}
	}

	return errors.Join(errs...)
}
