package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

func mustDecimal128(t *testing.T, s string) primitive.Decimal128 {
	t.Helper()
	v, err := primitive.ParseDecimal128(s)
	require.NoError(t, err)
	return v
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func orderDoc(t *testing.T, orderID, customerID int64, total string) bson.D {
	return bson.D{
		{Key: "_id", Value: orderID},
		{Key: "customerId", Value: customerID},
		{Key: "items", Value: bson.A{
			bson.D{
				{Key: "productId", Value: "A"},
				{Key: "quantity", Value: int64(1)},
				{Key: "price", Value: mustDecimal128(t, total)},
			},
		}},
		{Key: "total", Value: mustDecimal128(t, total)},
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}
	order := domain.Order{OrderID: 1, CustomerID: 42, Items: items, Total: domain.ComputeTotal(items)}

	doc, err := toDocument(order)
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.OrderID)
	require.Equal(t, "25.5", doc.Total.String())

	back, err := fromDocument(doc)
	require.NoError(t, err)
	require.Equal(t, order.OrderID, back.OrderID)
	require.Equal(t, order.CustomerID, back.CustomerID)
	require.True(t, back.Total.Equal(order.Total), "total %s != %s", back.Total, order.Total)
	require.Len(t, back.Items, 2)
	require.True(t, back.Items[1].UnitPrice.Equal(decimal.RequireFromString("5.5")))
}

func TestTotalPipeline(t *testing.T) {
	pipeline := totalPipeline(42)
	require.Len(t, pipeline, 2)
	require.Equal(t, "$match", pipeline[0][0].Key)
	require.Equal(t, "$group", pipeline[1][0].Key)
}

func TestOrderRepository_Mock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		order := domain.Order{OrderID: 1, CustomerID: 42, Total: decimal.Zero}
		require.NoError(mt, repo.Upsert(context.Background(), order))
	})

	mt.Run("upsert failure", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Message: "interrupted at shutdown",
			Name:    "InterruptedAtShutdown",
		}))

		err := repo.Upsert(context.Background(), domain.Order{OrderID: 1, CustomerID: 42})
		require.Error(mt, err)
	})

	mt.Run("get not found", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := repo.Get(context.Background(), 404)
		require.True(mt, errors.Is(err, domain.ErrOrderNotFound), "got %v", err)
	})

	mt.Run("get", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, orderDoc(t, 1, 42, "25.50")))

		order, err := repo.Get(context.Background(), 1)
		require.NoError(mt, err)
		require.Equal(mt, int64(42), order.CustomerID)
		require.True(mt, order.Total.Equal(decimal.RequireFromString("25.50")))
	})

	mt.Run("list by customer", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
				orderDoc(t, 1, 42, "1.00"),
				orderDoc(t, 2, 42, "2.00"),
			),
		)

		page, err := repo.ListByCustomer(context.Background(), 42, domain.PageRequest{Page: 0, PageSize: 2})
		require.NoError(mt, err)
		require.Equal(mt, int64(3), page.TotalElements)
		require.Equal(mt, 2, page.TotalPages)
		require.Len(mt, page.Items, 2)
		require.Equal(mt, int64(1), page.Items[0].OrderID)
	})

	mt.Run("list unknown customer", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		page, err := repo.ListByCustomer(context.Background(), 999, domain.PageRequest{PageSize: 10})
		require.NoError(mt, err)
		require.Empty(mt, page.Items)
		require.NotNil(mt, page.Items)
	})

	mt.Run("sum", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: nil}, {Key: "total", Value: mustDecimal128(t, "76.50")}},
		))

		sum, err := repo.SumTotalByCustomer(context.Background(), 42)
		require.NoError(mt, err)
		require.True(mt, sum.Equal(decimal.RequireFromString("76.5")), "got %s", sum)
	})

	mt.Run("sum without orders", func(mt *mtest.T) {
		repo := &orderRepository{orders: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		sum, err := repo.SumTotalByCustomer(context.Background(), 999)
		require.NoError(mt, err)
		require.True(mt, sum.IsZero())
	})
}
