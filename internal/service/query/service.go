package query

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/domain"
	"github.com/vladislavdragonenkov/ois/internal/metrics"
)

// Названия операций для метрик.
const (
	OperationListByCustomer  = "list_by_customer"
	OperationTotalByCustomer = "total_by_customer"
)

// Summary — страница заказов клиента вместе с общей суммой по всем его заказам.
type Summary struct {
	Orders domain.Page[domain.OrderResponse]
	Total  decimal.Decimal
}

// Service выполняет запросы на чтение по клиенту.
type Service struct {
	orders  domain.OrderRepository
	metrics *metrics.IngestMetrics
	logger  *log.Entry
}

// NewService создаёт сервис чтения. metrics может быть nil.
func NewService(orders domain.OrderRepository, m *metrics.IngestMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "query")
	}
	return &Service{
		orders:  orders,
		metrics: m,
		logger:  logger,
	}
}

// ListByCustomer возвращает страницу заказов клиента по возрастанию orderId.
// Для клиента без заказов возвращается пустая страница.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64, req domain.PageRequest) (domain.Page[domain.OrderResponse], error) {
	if err := validateCustomerID(customerID); err != nil {
		return domain.Page[domain.OrderResponse]{}, err
	}
	req, err := req.Normalize()
	if err != nil {
		return domain.Page[domain.OrderResponse]{}, err
	}

	start := time.Now()
	defer func() { s.metrics.RecordQuery(OperationListByCustomer, time.Since(start)) }()

	page, err := s.orders.ListByCustomer(ctx, customerID, req)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to list orders")
		return domain.Page[domain.OrderResponse]{}, fmt.Errorf("list orders of customer %d: %w", customerID, err)
	}

	return domain.MapPage(page, domain.Order.ToResponse), nil
}

// TotalByCustomer считает сумму Total по всем заказам клиента. Для клиента
// без заказов результат — ноль.
func (s *Service) TotalByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if err := validateCustomerID(customerID); err != nil {
		return decimal.Zero, err
	}

	start := time.Now()
	defer func() { s.metrics.RecordQuery(OperationTotalByCustomer, time.Since(start)) }()

	total, err := s.orders.SumTotalByCustomer(ctx, customerID)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to sum order totals")
		return decimal.Zero, fmt.Errorf("sum totals of customer %d: %w", customerID, err)
	}
	return total, nil
}

// Summary возвращает страницу заказов и общую сумму одним вызовом.
func (s *Service) Summary(ctx context.Context, customerID int64, req domain.PageRequest) (Summary, error) {
	orders, err := s.ListByCustomer(ctx, customerID, req)
	if err != nil {
		return Summary{}, err
	}
	total, err := s.TotalByCustomer(ctx, customerID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Orders: orders, Total: total}, nil
}

func validateCustomerID(customerID int64) error {
	if customerID <= 0 {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidCustomerID, customerID)
	}
	return nil
}
