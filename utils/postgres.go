package utils

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgPool *pgxpool.Pool
	pgMu   sync.Mutex
)

// InitPostgres opens the shared connection pool and verifies it with a ping.
func InitPostgres(databaseURL string) error {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping Postgres: %w", err)
	}

	pgMu.Lock()
	pgPool = pool
	pgMu.Unlock()

	log.Println("[POSTGRES] Connected successfully")
	return nil
}

// GetPool returns the shared pool. Nil before InitPostgres succeeds.
func GetPool() *pgxpool.Pool {
	pgMu.Lock()
	defer pgMu.Unlock()
	return pgPool
}

// ClosePostgres drains and closes the pool.
func ClosePostgres() {
	pgMu.Lock()
	defer pgMu.Unlock()
	if pgPool != nil {
		pgPool.Close()
		pgPool = nil
		log.Println("[POSTGRES] Connection pool closed")
	}
}
