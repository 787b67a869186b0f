package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/app"
)

const (
	envHTTPAddr            = "OIS_HTTP_ADDR"
	envGRPCAddr            = "OIS_GRPC_ADDR"
	envMetricsAddr         = "OIS_METRICS_ADDR"
	envStorageDriver       = "OIS_STORAGE_DRIVER"
	envPostgresDSN         = "OIS_POSTGRES_DSN"
	envPostgresAutoMigrate = "OIS_POSTGRES_AUTO_MIGRATE"
	envMongoURI            = "OIS_MONGO_URI"
	envMongoDatabase       = "OIS_MONGO_DATABASE"
	envMongoCollection     = "OIS_MONGO_COLLECTION"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaGroup          = "OIS_KAFKA_GROUP"
	envKafkaTopic          = "OIS_KAFKA_TOPIC"
	envKafkaDLQTopic       = "OIS_KAFKA_DLQ_TOPIC"
	envKafkaDLQEnabled     = "OIS_KAFKA_DLQ_ENABLED"
	envKafkaMaxDeliveries  = "OIS_KAFKA_MAX_DELIVERIES"
	envShutdownTimeout     = "OIS_SHUTDOWN_TIMEOUT"
	envLogLevel            = "OIS_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а причина возвращается в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envMongoURI, &cfg.MongoURI)
	str(envMongoDatabase, &cfg.MongoDatabase)
	str(envMongoCollection, &cfg.MongoCollection)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaGroup, &cfg.KafkaGroupID)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	boolean := func(key string, target *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = parsed
	}
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolean(envKafkaDLQEnabled, &cfg.KafkaDLQEnabled)

	if v, ok := lookup(envKafkaMaxDeliveries); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envKafkaMaxDeliveries, err))
		} else {
			cfg.KafkaMaxDeliveries = parsed
		}
	}

	if v, ok := lookup(envShutdownTimeout); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envShutdownTimeout, err))
		} else {
			cfg.ShutdownTimeout = parsed
		}
	}

	return cfg, warnings
}

// readLogLevel возвращает уровень из OIS_LOG_LEVEL или info.
func readLogLevel(lookup envLookup) (log.Level, error) {
	v, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(v) == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(v))
	if err != nil {
		return log.InfoLevel, err
	}
	return level, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
