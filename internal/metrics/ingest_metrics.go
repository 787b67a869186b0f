package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачной обработки события.
const (
	ReasonMalformed = "malformed"
	ReasonStore     = "store"
	ReasonExhausted = "exhausted"
)

// IngestMetrics содержит метрики приёма заказов и запросов на чтение.
// Все методы безопасно вызывать на nil-указателе.
type IngestMetrics struct {
	ordersIngested prometheus.Counter
	ingestFailures *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	queryDuration  *prometheus.HistogramVec
	deadLetters    *prometheus.CounterVec
}

// NewIngestMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewIngestMetrics() *IngestMetrics {
	return NewIngestMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewIngestMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewIngestMetricsWithRegisterer(registerer prometheus.Registerer) *IngestMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IngestMetrics{
		ordersIngested: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ois_orders_ingested_total",
			Help: "Total number of order created events persisted",
		})),
		ingestFailures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ois_order_ingest_failures_total",
			Help: "Total number of order created events that failed to persist",
		}, []string{"reason"})),
		ingestDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ois_order_ingest_duration_seconds",
			Help:    "Time spent translating and persisting one order created event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		})),
		queryDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ois_query_duration_seconds",
			Help:    "Duration of read queries by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"})),
		deadLetters: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ois_kafka_dlq_messages_total",
			Help: "Total number of messages routed to the dead letter topic",
		}, []string{"reason"})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordIngested фиксирует успешно сохранённый заказ.
func (m *IngestMetrics) RecordIngested(duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersIngested.Inc()
	m.ingestDuration.Observe(duration.Seconds())
}

// RecordIngestFailure фиксирует неудачную обработку события.
func (m *IngestMetrics) RecordIngestFailure(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(reason).Inc()
	m.ingestDuration.Observe(duration.Seconds())
}

// RecordQuery записывает длительность запроса на чтение.
func (m *IngestMetrics) RecordQuery(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDeadLetter фиксирует отправку сообщения в DLQ.
func (m *IngestMetrics) RecordDeadLetter(reason string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(reason).Inc()
}
