package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnTimeout = 5 * time.Second
	// DefaultCollection совпадает с коллекцией, в которую исторически писал сервис.
	DefaultCollection = "tb_orders"
)

var errStoreNotInitialized = errors.New("mongodb store is not initialized")

// Store держит клиент MongoDB и коллекцию заказов.
type Store struct {
	client *mongo.Client
	orders *mongo.Collection
}

// Open подключается к MongoDB и проверяет доступность primary.
func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	store := &Store{
		client: client,
		orders: client.Database(database).Collection(collection),
	}
	if err := store.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return store, nil
}

// Ping проверяет доступность primary-узла.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// EnsureIndexes создаёт индекс для выборок и агрегаций по клиенту.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.orders == nil {
		return errStoreNotInitialized
	}
	_, err := s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "customerId", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("idx_customer_order"),
	})
	if err != nil {
		return fmt.Errorf("create customer index: %w", err)
	}
	return nil
}

// Close отключает клиент.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
