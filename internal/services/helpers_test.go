package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm/logger"

	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

// testClock is a store clock that tests move forward by hand
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*database.Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := database.Open(filepath.Join(t.TempDir(), "inventory.db"),
		database.WithLogLevel(logger.Silent),
		database.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func ptr[T any](v T) *T { return &v }

func addCard(t *testing.T, store *database.Store, in models.NewCard) *models.Card {
	t.Helper()
	card, err := repository.NewCardRepository(store).Add(context.Background(), in)
	if err != nil {
		t.Fatalf("Add(%s) error = %v", in.Name, err)
	}
	return card
}

func getCard(t *testing.T, store *database.Store, id uint) *models.Card {
	t.Helper()
	card, err := repository.NewCardRepository(store).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d) error = %v", id, err)
	}
	return card
}
