package ident

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Allocator claims the next base sequence number for a category. Both
// halves of a set render their identifiers from the same base, so the pair
// always shares it. The pairing service treats this as an opaque
// synchronous call.
type Allocator interface {
	NextBase(ctx context.Context, category string) (int, error)
}

// Sequence is the counter row backing the default allocator, one per
// category. A set claims a single number and derives both suffixed
// identifiers from it.
type Sequence struct {
	Category string `gorm:"primaryKey;size:64"`
	NextSeq  int    `gorm:"not null;default:1"`
}

// TableName keeps the table clearly separate from gauge data.
func (Sequence) TableName() string {
	return "identifier_sequences"
}

// DBAllocator is the sequence-table-backed default Allocator. Each call
// claims a number inside its own small transaction so identifiers are never
// reissued even when the surrounding operation rolls back; a gap in the
// sequence is fine, a duplicate is not. The counter row is read under
// FOR UPDATE and bumped with an in-database increment, so concurrent claims
// for the same category serialize instead of both observing the same value.
type DBAllocator struct {
	db *gorm.DB
}

// NewDBAllocator creates an allocator on the given connection.
func NewDBAllocator(db *gorm.DB) *DBAllocator {
	return &DBAllocator{db: db}
}

// sqlite has no FOR UPDATE; its single writer serializes claims anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// NextBase claims the next base sequence number for category.
func (a *DBAllocator) NextBase(ctx context.Context, category string) (int, error) {
	var claimed int
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Sequence{Category: category, NextSeq: 1}
		if err := lockForUpdate(tx).Where(Sequence{Category: category}).FirstOrCreate(&row).Error; err != nil {
			return err
		}
		claimed = row.NextSeq
		return tx.Model(&Sequence{}).
			Where("category = ?", category).
			Update("next_seq", gorm.Expr("next_seq + 1")).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate identifier base for %s: %w", category, err)
	}
	return claimed, nil
}
