package domain

import "github.com/shopspring/decimal"

// LineItem представляет одну позицию заказа: товар, количество и цену за единицу.
type LineItem struct {
	// ProductID — внешний идентификатор товара.
	ProductID string
	// Quantity — количество единиц товара, не меньше нуля.
	Quantity int64
	// UnitPrice — цена за единицу, не меньше нуля.
	UnitPrice decimal.Decimal
}

// Subtotal возвращает стоимость позиции: UnitPrice × Quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Order — денормализованная запись заказа, сохраняемая один раз при обработке события.
type Order struct {
	OrderID    int64
	CustomerID int64
	Items      []LineItem
	// Total всегда равен ComputeTotal(Items).
	Total decimal.Decimal
}

// OrderResponse — проекция заказа для чтения, без позиций.
type OrderResponse struct {
	OrderID    int64           `json:"orderId"`
	CustomerID int64           `json:"customerId"`
	Total      decimal.Decimal `json:"total"`
}

// ToResponse строит проекцию для чтения.
func (o Order) ToResponse() OrderResponse {
	return OrderResponse{
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		Total:      o.Total,
	}
}

// ComputeTotal суммирует UnitPrice × Quantity по всем позициям.
// Для пустого списка возвращает ровно ноль.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
