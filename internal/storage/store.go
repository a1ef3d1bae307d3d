// Package storage holds the PostgreSQL and SQLite persistence adapters.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store holds one pgx pool shared by gorm and the pgx repositories.
type Store struct {
	pool       *pgxpool.Pool
	db         *gorm.DB
	Characters *CharacterRepo
	Memories   *MemoryRepo
}

// NewStore connects to PostgreSQL and migrates the schema.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&memoryModel{}, &characterModel{}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{
		pool:       pool,
		db:         db,
		Characters: NewCharacterRepo(pool),
		Memories:   NewMemoryRepo(db),
	}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
