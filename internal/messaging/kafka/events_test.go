package kafka

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

func TestParseOrderCreated(t *testing.T) {
	event, err := ParseOrderCreated([]byte(`{"orderId":1,"customerId":42,"items":[{"productId":"A","quantity":2,"price":10.00},{"productId":"B","quantity":1,"price":"5.50"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.OrderID != 1 || event.CustomerID != 42 {
		t.Fatalf("unexpected ids: %+v", event)
	}
	if len(event.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(event.Items))
	}
	if event.Items[0].ProductID != "A" || event.Items[0].Quantity != 2 || !event.Items[0].Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected first item: %+v", event.Items[0])
	}
	if !event.Items[1].Price.Equal(decimal.RequireFromString("5.5")) {
		t.Fatalf("unexpected second price: %s", event.Items[1].Price)
	}
}

func TestParseOrderCreated_LegacyFieldNames(t *testing.T) {
	event, err := ParseOrderCreated([]byte(`{"codigoPedido":1001,"codigoCliente":1,"itens":[{"produto":"lápis","quantidade":100,"preco":1.10}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.OrderID != 1001 || event.CustomerID != 1 {
		t.Fatalf("unexpected ids: %+v", event)
	}
	if len(event.Items) != 1 || event.Items[0].ProductID != "lápis" || event.Items[0].Quantity != 100 {
		t.Fatalf("unexpected items: %+v", event.Items)
	}
	if !event.Items[0].Price.Equal(decimal.RequireFromString("1.10")) {
		t.Fatalf("unexpected price: %s", event.Items[0].Price)
	}
}

func TestParseOrderCreated_EmptyItems(t *testing.T) {
	event, err := ParseOrderCreated([]byte(`{"orderId":3,"customerId":42}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Items == nil || len(event.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", event.Items)
	}
}

func TestParseOrderCreated_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{"orderId":`,
		"missing order id":  `{"customerId":42,"items":[]}`,
		"zero order id":     `{"orderId":0,"customerId":42}`,
		"missing customer":  `{"orderId":1,"items":[]}`,
		"negative customer": `{"orderId":1,"customerId":-5}`,
		"zero customer":     `{"orderId":1,"customerId":0}`,
		"negative order id": `{"orderId":-7,"customerId":42}`,
		"zero codigoPedido": `{"codigoPedido":0,"codigoCliente":42}`,
		"missing product":   `{"orderId":1,"customerId":42,"items":[{"quantity":1,"price":1}]}`,
		"missing quantity":  `{"orderId":1,"customerId":42,"items":[{"productId":"A","price":1}]}`,
		"negative quantity": `{"orderId":1,"customerId":42,"items":[{"productId":"A","quantity":-1,"price":1}]}`,
		"missing price":     `{"orderId":1,"customerId":42,"items":[{"productId":"A","quantity":1}]}`,
		"negative price":    `{"orderId":1,"customerId":42,"items":[{"productId":"A","quantity":1,"price":"-0.01"}]}`,
		"string quantity":   `{"orderId":1,"customerId":42,"items":[{"productId":"A","quantity":"two","price":1}]}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOrderCreated([]byte(payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestEncodeOrderCreated_RoundTrip(t *testing.T) {
	original := domain.OrderCreatedEvent{
		OrderID:    7,
		CustomerID: 9,
		Items: []domain.EventLineItem{
			{ProductID: "X", Quantity: 3, Price: decimal.RequireFromString("0.10")},
		},
	}

	data, err := EncodeOrderCreated(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	parsed, err := ParseOrderCreated(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.OrderID != original.OrderID || parsed.CustomerID != original.CustomerID {
		t.Fatalf("ids changed: %+v", parsed)
	}
	if !parsed.Items[0].Price.Equal(original.Items[0].Price) {
		t.Fatalf("price changed: %s", parsed.Items[0].Price)
	}
}
