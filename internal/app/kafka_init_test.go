package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ois/internal/health"
	"github.com/vladislavdragonenkov/ois/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ois/internal/service/ingest"
	"github.com/vladislavdragonenkov/ois/internal/storage/memory"
)

func TestInitKafka_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")
	handler := ingest.NewService(memory.NewOrderRepository(), nil, logger)

	rt, err := initKafka(DefaultConfig(), handler, nil, logger)
	if err != nil {
		t.Fatalf("expected no error for empty brokers, got %v", err)
	}
	if rt != nil {
		t.Fatal("expected nil runtime for empty brokers")
	}

	// Методы nil runtime не должны паниковать.
	if err := rt.start(context.Background()); err != nil {
		t.Fatalf("start on nil runtime: %v", err)
	}
	rt.stop(logger)
	if check := rt.checker().Check(context.Background()); check.Status != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded kafka check, got %s", check.Status)
	}
}

func TestKafkaRuntimeChecker_BrokerUnavailable(t *testing.T) {
	rt := &kafkaRuntime{consumer: &kafka.Consumer{}}

	check := rt.checker().Check(context.Background())
	if check.Status != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded kafka check without a connected client, got %s", check.Status)
	}
	if check.Message == "" {
		t.Fatal("expected failure message in kafka check")
	}
}

func TestInitKafka_InvalidBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")
	handler := ingest.NewService(memory.NewOrderRepository(), nil, logger)

	for _, dlq := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.KafkaBrokers = "invalid-broker:9999"
		cfg.KafkaDLQEnabled = dlq

		rt, err := initKafka(cfg, handler, nil, logger)
		if err == nil {
			t.Fatalf("dlq=%v: expected error for invalid brokers", dlq)
		}
		if rt != nil {
			t.Fatalf("dlq=%v: expected nil runtime on error", dlq)
		}
	}
}

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(nil, log.WithField("test", "kafka"))
	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_MultipleInvalidBrokers(t *testing.T) {
	producer, err := initKafkaProducer([]string{"broker1:9092", "broker2:9092"}, log.WithField("test", "kafka"))
	if err == nil {
		t.Error("expected error for invalid brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestCloseKafkaProducer_Nil(_ *testing.T) {
	closeKafkaProducer(nil, log.WithField("test", "kafka"))
}
