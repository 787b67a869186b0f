package ingest

import "github.com/vladislavdragonenkov/ois/internal/domain"

// Translate преобразует входящее событие в запись заказа и считает итог.
// Структура события проверяется при разборе, здесь валидации нет.
func Translate(event domain.OrderCreatedEvent) domain.Order {
	items := make([]domain.LineItem, 0, len(event.Items))
	for _, item := range event.Items {
		items = append(items, domain.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	return domain.Order{
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		Items:      items,
		Total:      domain.ComputeTotal(items),
	}
}
