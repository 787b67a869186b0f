package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

const opTimeout = 5 * time.Second

// orderDocument — документ заказа. _id совпадает с orderId.
type orderDocument struct {
	OrderID    int64                `bson:"_id"`
	CustomerID int64                `bson:"customerId"`
	Items      []lineItemDocument   `bson:"items"`
	Total      primitive.Decimal128 `bson:"total"`
}

type lineItemDocument struct {
	ProductID string               `bson:"productId"`
	Quantity  int64                `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
}

type totalResult struct {
	Total primitive.Decimal128 `bson:"total"`
}

type orderRepository struct {
	orders *mongo.Collection
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{orders: store.orders}
}

func (r *orderRepository) Upsert(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc, err := toDocument(order)
	if err != nil {
		return err
	}

	_, err = r.orders.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: order.OrderID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDocument
	err := r.orders.FindOne(ctx, bson.D{{Key: "_id", Value: orderID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("find order: %w", err)
	}
	return fromDocument(doc)
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.D{{Key: "customerId", Value: customerID}}

	total, err := r.orders.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return domain.NewPage[domain.Order](nil, page, 0), nil
	}

	cursor, err := r.orders.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(page.Offset()).
		SetLimit(int64(page.PageSize)))
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("find orders: %w", err)
	}

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := fromDocument(doc)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	return domain.NewPage(orders, page, total), nil
}

// SumTotalByCustomer выполняет $match + $group/$sum на стороне MongoDB.
func (r *orderRepository) SumTotalByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.orders.Aggregate(ctx, totalPipeline(customerID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate order totals: %w", err)
	}

	var results []totalResult
	if err := cursor.All(ctx, &results); err != nil {
		return decimal.Zero, fmt.Errorf("decode order totals: %w", err)
	}
	// $group по пустой выборке не возвращает ни одного документа.
	if len(results) == 0 {
		return decimal.Zero, nil
	}
	return fromDecimal128(results[0].Total)
}

func (r *orderRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.orders.Database().Client().Ping(ctx, nil)
}

func totalPipeline(customerID int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "customerId", Value: customerID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$total"}}},
		}}},
	}
}

func toDocument(order domain.Order) (orderDocument, error) {
	total, err := toDecimal128(order.Total)
	if err != nil {
		return orderDocument{}, fmt.Errorf("order %d total: %w", order.OrderID, err)
	}

	items := make([]lineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		price, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return orderDocument{}, fmt.Errorf("order %d item %s price: %w", order.OrderID, item.ProductID, err)
		}
		items = append(items, lineItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     price,
		})
	}

	return orderDocument{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Items:      items,
		Total:      total,
	}, nil
}

func fromDocument(doc orderDocument) (domain.Order, error) {
	total, err := fromDecimal128(doc.Total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %d total: %w", doc.OrderID, err)
	}

	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %d item %s price: %w", doc.OrderID, item.ProductID, err)
		}
		items = append(items, domain.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}

	return domain.Order{
		OrderID:    doc.OrderID,
		CustomerID: doc.CustomerID,
		Items:      items,
		Total:      total,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", v, err)
	}
	return d, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
