package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type PgRevealRepository struct {
	conn *sql.DB
}

func NewPgRevealRepository(ctx context.Context, dsn string) (*PgRevealRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PgRevealRepository{conn: db}, nil
}

func (db *PgRevealRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgRevealRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
