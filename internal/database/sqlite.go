package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

// Collection names a durable record collection (one table each)
type Collection string

const (
	Cards        Collection = "cards"
	Borrowers    Collection = "borrowers"
	Lending      Collection = "lending"
	Trades       Collection = "trades"
	TradeCards   Collection = "trade_cards"
	PriceHistory Collection = "price_history"
	Wishlist     Collection = "wishlist"
)

// AllCollections returns every collection in dependency order
func AllCollections() []Collection {
	return []Collection{Cards, Borrowers, Lending, Trades, TradeCards, PriceHistory, Wishlist}
}

// Store is the single durable local store. All multi-collection writes go
// through Transaction, which serializes writers and notifies subscribers
// after commit.
type Store struct {
	db      *gorm.DB
	writeMu sync.Mutex
	hub     *hub
	now     func() time.Time
	version int
}

type Option func(*options)

type options struct {
	logLevel   logger.LogLevel
	now        func() time.Time
	migrations []Migration
}

// WithLogLevel sets the gorm logger level (default warn)
func WithLogLevel(level logger.LogLevel) Option {
	return func(o *options) { o.logLevel = level }
}

// WithClock overrides the clock used for timestamps and migration backfills
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMigrations replaces the built-in schema versions
func WithMigrations(m []Migration) Option {
	return func(o *options) { o.migrations = m }
}

// Open opens (creating if needed) the store at dbPath and applies pending
// schema versions. Opening an up-to-date store is a no-op beyond connecting.
func Open(dbPath string, opts ...Option) (*Store, error) {
	o := options{
		logLevel:   logger.Warn,
		now:        time.Now,
		migrations: Migrations(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger:  logger.Default.LogMode(o.logLevel),
		NowFunc: func() time.Time { return o.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection: SQLite has a single writer and the store is single-process.
	sqlDB.SetMaxOpenConns(1)

	if err := registerScopeGuard(db); err != nil {
		sqlDB.Close()
		return nil, err
	}

	version, err := Migrate(db, o.migrations, o.now)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	metrics.SchemaVersion.Set(float64(version))
	log.Printf("Database opened: %s (schema version %d)", dbPath, version)

	return &Store{
		db:      db,
		hub:     newHub(),
		now:     o.now,
		version: version,
	}, nil
}

func dsn(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_busy_timeout=5000"
}

// DB returns the read handle. Writes through it outside of Transaction are rejected.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Now returns the store clock in UTC
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// Version returns the applied schema version
func (s *Store) Version() int {
	return s.version
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.hub.closeAll()
	return sqlDB.Close()
}

// Transaction runs fn as one atomic unit of work that may write only to the
// collections in scope. Either every write in fn commits or none does.
// Subscribers of the collections actually written are notified after commit.
func (s *Store) Transaction(ctx context.Context, scope []Collection, fn func(tx *gorm.DB) error) error {
	sc := newTxScope(scope)

	err := func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.db.WithContext(withScope(ctx, sc)).Transaction(fn)
	}()
	if err != nil {
		return err
	}
	if touched := sc.touchedCollections(); len(touched) > 0 {
		s.hub.publish(touched)
	}
	return nil
}

// View runs fn in a read-only transaction so that reads spanning several
// collections see one committed state. Any write inside fn fails.
func (s *Store) View(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// ClearAll deletes every record of every collection in one transaction
func (s *Store) ClearAll(ctx context.Context) error {
	return s.Transaction(ctx, AllCollections(), func(tx *gorm.DB) error {
		// children before parents
		for _, m := range []any{
			&models.TradeLine{}, &models.Trade{}, &models.LendingRecord{},
			&models.PriceHistory{}, &models.Card{}, &models.Borrower{}, &models.WishlistItem{},
		} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return fmt.Errorf("failed to clear %T: %w", m, err)
			}
		}
		return nil
	})
}

// Subscribe returns a subscription notified after every committed
// transaction that wrote to any of the given collections (all when empty).
func (s *Store) Subscribe(collections ...Collection) *Subscription {
	return s.hub.subscribe(collections)
}
