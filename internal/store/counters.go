package store

import (
	"context"
	"database/sql"
)

// CounterRepository hands out monotonically increasing sequence values from a
// shared counters table.
type CounterRepository struct {
	db *sql.DB
}

func NewCounterRepository(db *sql.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next increments and returns the named counter. The upsert is a single
// statement, so concurrent callers never observe the same value.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	const query = `
		INSERT INTO counters (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`
	var value int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
