package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// ErrWriteOutsideTransaction is returned for writes that bypass Store.Transaction
var ErrWriteOutsideTransaction = errors.New("write attempted outside of a store transaction")

type scopeKey struct{}

// txScope is the declared write set of one transaction plus what it actually wrote
type txScope struct {
	mu      sync.Mutex
	allowed map[Collection]bool
	touched map[Collection]bool
}

func newTxScope(scope []Collection) *txScope {
	sc := &txScope{
		allowed: make(map[Collection]bool, len(scope)),
		touched: make(map[Collection]bool),
	}
	for _, c := range scope {
		sc.allowed[c] = true
	}
	return sc
}

func withScope(ctx context.Context, sc *txScope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, sc)
}

func scopeFrom(ctx context.Context) (*txScope, bool) {
	if ctx == nil {
		return nil, false
	}
	sc, ok := ctx.Value(scopeKey{}).(*txScope)
	return sc, ok
}

func (sc *txScope) mark(c Collection) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.allowed[c] {
		return fmt.Errorf("write to %q is outside the transaction scope", c)
	}
	sc.touched[c] = true
	return nil
}

func (sc *txScope) touchedCollections() []Collection {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]Collection, 0, len(sc.touched))
	for c := range sc.touched {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// registerScopeGuard installs callbacks that reject writes to undeclared
// collections and record which collections a transaction wrote.
func registerScopeGuard(db *gorm.DB) error {
	guard := func(db *gorm.DB) {
		if db.Statement.Table == "" {
			return
		}
		sc, ok := scopeFrom(db.Statement.Context)
		if !ok {
			db.AddError(fmt.Errorf("%w: %s", ErrWriteOutsideTransaction, db.Statement.Table))
			return
		}
		if err := sc.mark(Collection(db.Statement.Table)); err != nil {
			db.AddError(err)
		}
	}

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("inventory:scope_guard", guard); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("inventory:scope_guard", guard); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("inventory:scope_guard", guard)
}
