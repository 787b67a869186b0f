package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

// Topics по умолчанию.
const (
	TopicOrderCreated    = "orders.created"
	TopicDeadLetterQueue = "orders.created.dlq"
)

// Kafka headers, которые проставляются при отправке в DLQ.
const (
	HeaderDeliveryCount = "x-delivery-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// DeadLetter — тело сообщения в DLQ. Исходный payload сохраняется как есть,
// чтобы его можно было переотправить утилитой dlq-reprocess.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	Reason            string    `json:"reason"`
	ErrorMessage      string    `json:"error_message"`
	Deliveries        int       `json:"deliveries"`
	FailedAt          time.Time `json:"failed_at"`
}

// lineItemPayload принимает и текущие имена полей, и исторические
// (produto, quantidade, preco).
type lineItemPayload struct {
	ProductID  string           `json:"productId"`
	Produto    string           `json:"produto"`
	Quantity   *int64           `json:"quantity"`
	Quantidade *int64           `json:"quantidade"`
	Price      *decimal.Decimal `json:"price"`
	Preco      *decimal.Decimal `json:"preco"`
}

type orderCreatedPayload struct {
	OrderID       *int64            `json:"orderId"`
	CodigoPedido  *int64            `json:"codigoPedido"`
	CustomerID    *int64            `json:"customerId"`
	CodigoCliente *int64            `json:"codigoCliente"`
	Items         []lineItemPayload `json:"items"`
	Itens         []lineItemPayload `json:"itens"`
}

// ParseOrderCreated разбирает событие о создании заказа. Любая ошибка оборачивает
// domain.ErrMalformedEvent: такое сообщение нельзя обработать повторной доставкой.
func ParseOrderCreated(value []byte) (domain.OrderCreatedEvent, error) {
	var payload orderCreatedPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		return domain.OrderCreatedEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	orderID := firstInt(payload.OrderID, payload.CodigoPedido)
	if orderID == nil || *orderID <= 0 {
		return domain.OrderCreatedEvent{}, fmt.Errorf("%w: orderId is required and must be positive", domain.ErrMalformedEvent)
	}
	customerID := firstInt(payload.CustomerID, payload.CodigoCliente)
	if customerID == nil || *customerID <= 0 {
		return domain.OrderCreatedEvent{}, fmt.Errorf("%w: customerId is required and must be positive", domain.ErrMalformedEvent)
	}

	rawItems := payload.Items
	if rawItems == nil {
		rawItems = payload.Itens
	}

	event := domain.OrderCreatedEvent{
		OrderID:    *orderID,
		CustomerID: *customerID,
		Items:      make([]domain.EventLineItem, 0, len(rawItems)),
	}
	for i, raw := range rawItems {
		item, err := raw.toEventItem()
		if err != nil {
			return domain.OrderCreatedEvent{}, fmt.Errorf("%w: item %d: %v", domain.ErrMalformedEvent, i, err)
		}
		event.Items = append(event.Items, item)
	}

	return event, nil
}

// EncodeOrderCreated сериализует событие в каноническом формате.
func EncodeOrderCreated(event domain.OrderCreatedEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal order created event: %w", err)
	}
	return data, nil
}

func (p lineItemPayload) toEventItem() (domain.EventLineItem, error) {
	productID := p.ProductID
	if productID == "" {
		productID = p.Produto
	}
	if productID == "" {
		return domain.EventLineItem{}, errors.New("productId is required")
	}

	quantity := firstInt(p.Quantity, p.Quantidade)
	if quantity == nil {
		return domain.EventLineItem{}, errors.New("quantity is required")
	}
	if *quantity < 0 {
		return domain.EventLineItem{}, fmt.Errorf("quantity must be >= 0, got %d", *quantity)
	}

	price := p.Price
	if price == nil {
		price = p.Preco
	}
	if price == nil {
		return domain.EventLineItem{}, errors.New("price is required")
	}
	if price.IsNegative() {
		return domain.EventLineItem{}, fmt.Errorf("price must be >= 0, got %s", price)
	}

	return domain.EventLineItem{
		ProductID: productID,
		Quantity:  *quantity,
		Price:     *price,
	}, nil
}

func firstInt(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
