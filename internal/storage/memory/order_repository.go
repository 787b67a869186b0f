package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[int64]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[int64]domain.Order),
	}
}

// Upsert сохраняет заказ; запись с тем же OrderID перезаписывается.
func (r *orderRepositoryInMemory) Upsert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[order.OrderID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, orderID int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает страницу заказов клиента по возрастанию OrderID.
func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	r.mu.RLock()
	matched := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.CustomerID != customerID {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OrderID < matched[j].OrderID
	})

	total := int64(len(matched))
	start := min(max(page.Offset(), 0), total)
	end := start + int64(page.PageSize)
	if end > total {
		end = total
	}

	return domain.NewPage(matched[start:end], page, total), nil
}

// SumTotalByCustomer суммирует Total заказов клиента.
func (r *orderRepositoryInMemory) SumTotalByCustomer(_ context.Context, customerID int64) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	for _, order := range r.items {
		if order.CustomerID == customerID {
			sum = sum.Add(order.Total)
		}
	}
	return sum, nil
}

func (r *orderRepositoryInMemory) Ping(context.Context) error {
	return nil
}

// cloneOrder копирует позиции, чтобы внешние мутации не меняли сохранённое состояние.
func cloneOrder(order domain.Order) domain.Order {
	if order.Items != nil {
		items := make([]domain.LineItem, len(order.Items))
		copy(items, order.Items)
		order.Items = items
	}
	return order
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
