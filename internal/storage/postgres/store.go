package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

var errNoDatabase = errors.New("postgres: store has no open database")

// poolLimits — ограничения пула database/sql для хранилища заказов.
type poolLimits struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

var orderPool = poolLimits{
	maxOpen:     20,
	maxIdle:     10,
	maxLifetime: 30 * time.Minute,
	maxIdleTime: 5 * time.Minute,
}

func (l poolLimits) apply(db *sql.DB) {
	db.SetMaxOpenConns(l.maxOpen)
	db.SetMaxIdleConns(l.maxIdle)
	db.SetConnMaxLifetime(l.maxLifetime)
	db.SetConnMaxIdleTime(l.maxIdleTime)
}

// Store держит пул соединений с PostgreSQL (драйвер pgx/stdlib).
type Store struct {
	db *sql.DB
}

// Open создаёт пул и сразу проверяет, что база отвечает.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	orderPool.apply(db)

	s := &Store{db: db}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// DB нужен репозиторию и мигратору.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется как health-проверка хранилища.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
