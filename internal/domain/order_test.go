package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestComputeTotal(t *testing.T) {
	cases := []struct {
		name  string
		items []domain.LineItem
		want  string
	}{
		{name: "nil items", items: nil, want: "0"},
		{name: "empty items", items: []domain.LineItem{}, want: "0"},
		{
			name: "two items",
			items: []domain.LineItem{
				{ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
				{ProductID: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
			},
			want: "25.50",
		},
		{
			name: "zero quantity",
			items: []domain.LineItem{
				{ProductID: "A", Quantity: 0, UnitPrice: decimal.RequireFromString("99.99")},
			},
			want: "0",
		},
		{
			// 0.1 * 3 в float64 даёт 0.30000000000000004.
			name: "no float drift",
			items: []domain.LineItem{
				{ProductID: "A", Quantity: 3, UnitPrice: decimal.RequireFromString("0.1")},
				{ProductID: "B", Quantity: 7, UnitPrice: decimal.RequireFromString("0.01")},
			},
			want: "0.37",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.ComputeTotal(tc.items)
			if !got.Equal(dec(t, tc.want)) {
				t.Fatalf("expected total %s, got %s", tc.want, got)
			}
		})
	}
}

func TestComputeTotal_EmptyIsExactlyZero(t *testing.T) {
	got := domain.ComputeTotal(nil)
	if !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}
	if got.String() != "0" {
		t.Fatalf("expected \"0\", got %q", got.String())
	}
}

func TestLineItemSubtotal(t *testing.T) {
	item := domain.LineItem{ProductID: "A", Quantity: 4, UnitPrice: dec(t, "2.25")}
	if got := item.Subtotal(); !got.Equal(dec(t, "9")) {
		t.Fatalf("expected subtotal 9, got %s", got)
	}
}

func TestOrderToResponse(t *testing.T) {
	order := domain.Order{
		OrderID:    1,
		CustomerID: 42,
		Items:      []domain.LineItem{{ProductID: "A", Quantity: 1, UnitPrice: dec(t, "3")}},
		Total:      dec(t, "3"),
	}

	resp := order.ToResponse()
	if resp.OrderID != 1 || resp.CustomerID != 42 {
		t.Fatalf("unexpected ids in response: %+v", resp)
	}
	if !resp.Total.Equal(order.Total) {
		t.Fatalf("expected total %s, got %s", order.Total, resp.Total)
	}
}
