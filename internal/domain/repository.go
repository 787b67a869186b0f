package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Upsert сохраняет заказ по OrderID. Повторная доставка того же заказа перезаписывает запись,
	// поэтому запись идемпотентна.
	Upsert(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound. Read API его не использует:
	// метод нужен для проверки сохранённых записей в тестах хранилищ и сервиса.
	Get(ctx context.Context, orderID int64) (Order, error)
	// ListByCustomer возвращает страницу заказов клиента, упорядоченных по OrderID по возрастанию.
	// Для клиента без заказов возвращается пустая страница.
	ListByCustomer(ctx context.Context, customerID int64, page PageRequest) (Page[Order], error)
	// SumTotalByCustomer считает сумму Total по всем заказам клиента на стороне хранилища.
	// Для клиента без заказов возвращается ноль.
	SumTotalByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}
