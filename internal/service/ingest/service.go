package ingest

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/domain"
	"github.com/vladislavdragonenkov/ois/internal/metrics"
)

// Service сохраняет заказы из событий order created.
type Service struct {
	orders  domain.OrderRepository
	metrics *metrics.IngestMetrics
	logger  *log.Entry
}

// NewService создаёт сервис приёма заказов. metrics может быть nil.
func NewService(orders domain.OrderRepository, m *metrics.IngestMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "ingest")
	}
	return &Service{
		orders:  orders,
		metrics: m,
		logger:  logger,
	}
}

// Handle переводит событие в запись и сохраняет её. Повторная доставка того же
// заказа перезаписывает запись. Ошибка хранилища возвращается без повторов:
// решение о повторной доставке принимает consumer.
func (s *Service) Handle(ctx context.Context, event domain.OrderCreatedEvent) error {
	start := time.Now()
	order := Translate(event)

	fields := log.Fields{
		"order_id":    order.OrderID,
		"customer_id": order.CustomerID,
		"items":       len(order.Items),
		"total":       order.Total.String(),
	}
	s.logger.WithFields(fields).Info("order created event consumed")

	if err := s.orders.Upsert(ctx, order); err != nil {
		reason := metrics.ReasonStore
		if domain.IsMalformedEvent(err) {
			reason = metrics.ReasonMalformed
		}
		s.metrics.RecordIngestFailure(reason, time.Since(start))
		s.logger.WithError(err).WithFields(fields).Error("failed to persist order")
		return fmt.Errorf("persist order %d: %w", order.OrderID, err)
	}

	s.metrics.RecordIngested(time.Since(start))
	s.logger.WithFields(fields).Debug("order persisted")
	return nil
}
