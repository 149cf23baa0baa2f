package services

import (
	"context"
	"sync"

	"github.com/codyseavey/tcg-inventory/internal/database"
)

// Watch runs query now and again after every committed transaction that
// writes to any of reads, passing each result to emit. Notifications that
// arrive while a query is running coalesce into a single re-run. Watch
// returns ctx.Err() once ctx is done.
func Watch[T any](ctx context.Context, store *database.Store, reads []database.Collection, query func(context.Context) (T, error), emit func(T, error)) error {
	// Subscribe before the first run so no commit between the two is missed
	sub := store.Subscribe(reads...)
	defer sub.Close()

	emit(query(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.C:
			if !ok {
				return context.Canceled
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			emit(query(ctx))
		}
	}
}

// LiveQuery keeps the latest result of a query over the store up to date.
type LiveQuery[T any] struct {
	mu      sync.RWMutex
	value   T
	err     error
	ready   bool
	updates chan struct{}
	done    chan struct{}
}

// NewLiveQuery starts watching reads and re-running query until ctx is done
func NewLiveQuery[T any](ctx context.Context, store *database.Store, reads []database.Collection, query func(context.Context) (T, error)) *LiveQuery[T] {
	q := &LiveQuery[T]{
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		_ = Watch(ctx, store, reads, query, q.set)
	}()
	return q
}

func (q *LiveQuery[T]) set(v T, err error) {
	q.mu.Lock()
	q.value, q.err, q.ready = v, err, true
	q.mu.Unlock()
	select {
	case q.updates <- struct{}{}:
	default:
	}
}

// Get returns the latest result
func (q *LiveQuery[T]) Get() (T, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.value, q.err
}

// Ready reports whether the query has produced a result yet
func (q *LiveQuery[T]) Ready() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.ready
}

// Updates signals after each new result. Signals coalesce.
func (q *LiveQuery[T]) Updates() <-chan struct{} {
	return q.updates
}

// Done is closed once the query has stopped watching
func (q *LiveQuery[T]) Done() <-chan struct{} {
	return q.done
}
