package repo

import (
	"context"

	"gorm.io/gorm"
)

// MaxBatch caps how many rows a single sweep or listing query may pull.
const MaxBatch = 500

// Base is embedded by read-side repositories that only need a context-bound
// handle and a clamped batch size.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Batch clamps limit into [1, MaxBatch], using fallback when limit is unset.
func Batch(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxBatch {
		return MaxBatch
	}
	return limit
}
