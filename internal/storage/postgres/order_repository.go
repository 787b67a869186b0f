package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	pgCheckViolation = "23514"
)

type orderRepository struct {
	db *sql.DB
}

// lineItemRow — представление позиции внутри JSONB-колонки items.
type lineItemRow struct {
	ProductID string          `json:"productId"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Upsert(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	items, err := encodeItems(order.Items)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, customer_id, items, total, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::numeric, NOW(), NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET customer_id = EXCLUDED.customer_id,
		    items = EXCLUDED.items,
		    total = EXCLUDED.total,
		    updated_at = NOW()
	`, order.OrderID, order.CustomerID, items, order.Total.String())
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: order %d rejected by schema: %v", domain.ErrMalformedEvent, order.OrderID, err)
		}
		return fmt.Errorf("upsert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT order_id, customer_id, items, total::text
		FROM orders
		WHERE order_id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID,
	).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return domain.NewPage[domain.Order](nil, page, 0), nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, customer_id, items, total::text
		FROM orders
		WHERE customer_id = $1
		ORDER BY order_id ASC
		LIMIT $2 OFFSET $3
	`, customerID, page.PageSize, page.Offset())
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, page.PageSize)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate order rows: %w", err)
	}

	return domain.NewPage(orders, page, total), nil
}

func (r *orderRepository) SumTotalByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var raw string
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)::text
		FROM orders
		WHERE customer_id = $1
	`, customerID).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("sum order totals: %w", err)
	}

	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse order totals sum %q: %w", raw, err)
	}
	return sum, nil
}

func (r *orderRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		rawItems []byte
		rawTotal string
	)
	if err := row.Scan(&order.OrderID, &order.CustomerID, &rawItems, &rawTotal); err != nil {
		return domain.Order{}, err
	}

	items, err := decodeItems(rawItems)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	total, err := decimal.NewFromString(rawTotal)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse order total %q: %w", rawTotal, err)
	}
	order.Total = total

	return order, nil
}

func encodeItems(items []domain.LineItem) (string, error) {
	rows := make([]lineItemRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, lineItemRow{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
		})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode order items: %w", err)
	}
	return string(data), nil
}

func decodeItems(data []byte) ([]domain.LineItem, error) {
	var rows []lineItemRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	items := make([]domain.LineItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.LineItem{
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			UnitPrice: row.Price,
		})
	}
	return items, nil
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCheckViolation
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
