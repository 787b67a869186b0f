package domain

import "github.com/shopspring/decimal"

// OrderCreatedEvent — входящее событие о создании заказа.
type OrderCreatedEvent struct {
	OrderID    int64           `json:"orderId"`
	CustomerID int64           `json:"customerId"`
	Items      []EventLineItem `json:"items"`
}

// EventLineItem — позиция заказа в том виде, в каком она приходит в событии.
type EventLineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
