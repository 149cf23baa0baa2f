// Package repository owns the record collections. Each repository reads
// through the store and writes through Store.Transaction, or through an
// enclosing unit of work when bound to one with With.
package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
)

type base struct {
	store *database.Store
	tx    *gorm.DB
}

// read returns the handle for queries: the enclosing transaction when bound
// so reads observe its uncommitted writes.
func (b base) read(ctx context.Context) *gorm.DB {
	if b.tx != nil {
		return b.tx
	}
	return b.store.DB().WithContext(ctx)
}

// write runs fn in the enclosing transaction, or in a new one scoped to scope
func (b base) write(ctx context.Context, scope []database.Collection, fn func(tx *gorm.DB) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	return b.store.Transaction(ctx, scope, fn)
}

func (b base) bind(tx *gorm.DB) base {
	return base{store: b.store, tx: tx}
}

// first loads the record with the given id into dest, mapping a missing
// row to a NotFoundError for entity.
func first(db *gorm.DB, dest any, entity string, id uint) error {
	err := db.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity, id)
	}
	return err
}

// findOne is like first but reports absence as a nil error and false
func findOne(db *gorm.DB, dest any) (bool, error) {
	err := db.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// prefixPattern builds a LIKE pattern matching values that start with term
func prefixPattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term) + "%"
}
