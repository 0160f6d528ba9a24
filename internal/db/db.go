package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// DBClient представляет клиент для работы с базой данных.
type DBClient struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBClient подключается к PostgreSQL через драйвер pgx.
// При старте база может быть еще недоступна, поэтому подключение повторяется с backoff.
func NewDBClient(ctx context.Context, dsn string, log *logger.Logger) (*DBClient, error) {
	var db *sqlx.DB

	operation := func() error {
		conn, err := sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			log.Warnw("Database is not reachable yet, retrying", "error", err)
			return err
		}
		db = conn
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 1 * time.Minute

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Настраиваем пул соединений
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	log.Infow("Successfully connected to PostgreSQL")
	return &DBClient{db: db, log: log}, nil
}

// DB возвращает подключение sqlx для репозиториев.
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// Ping проверяет соединение (для /health).
func (dc *DBClient) Ping(ctx context.Context) error {
	return dc.db.PingContext(ctx)
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	if err := dc.db.Close(); err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
