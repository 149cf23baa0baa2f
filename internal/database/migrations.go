package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Migration upgrades the schema from Version-1 to Version. Up runs inside
// its own transaction together with the version bookkeeping, so a failing
// migration leaves the store at the previous version.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB, now time.Time) error
}

// Migrations returns the built-in schema versions in ascending order
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create collections", Up: createCollections},
		{Version: 2, Name: "index cards by creation time", Up: addCardCreatedAt},
		{Version: 3, Name: "add card catalog fields", Up: addCardEnrichment},
	}
}

// Migrate applies every migration newer than the recorded version and
// returns the resulting version.
func Migrate(db *gorm.DB, migrations []Migration, now func() time.Time) (int, error) {
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`).Error; err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return 0, err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if m.Version != current+1 {
			return current, fmt.Errorf("migration %d (%s) does not follow version %d", m.Version, m.Name, current)
		}

		appliedAt := now().UTC()
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx, appliedAt); err != nil {
				return err
			}
			return tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Name, appliedAt).Error
		})
		if err != nil {
			return current, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		log.Printf("Migration: applied version %d (%s)", m.Version, m.Name)
		current = m.Version
	}
	return current, nil
}

func currentVersion(db *gorm.DB) (int, error) {
	var version int
	if err := db.Raw(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func execAll(tx *gorm.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// createCollections is the first schema version: all seven collections
// with their secondary indexes.
func createCollections(tx *gorm.DB, _ time.Time) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS cards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			set_name TEXT NOT NULL DEFAULT '',
			set_number TEXT NOT NULL DEFAULT '',
			rarity TEXT NOT NULL DEFAULT '',
			condition TEXT NOT NULL DEFAULT 'Near Mint',
			quantity INTEGER NOT NULL DEFAULT 1,
			market_price REAL,
			tcg_id TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			is_available NUMERIC NOT NULL DEFAULT 1,
			borrower_id INTEGER,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_name ON cards(name)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_set_name ON cards(set_name)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_set_number ON cards(set_number)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_set_name_number ON cards(set_name, set_number)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_rarity ON cards(rarity)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_condition ON cards(condition)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_is_available ON cards(is_available)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_borrower_id ON cards(borrower_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_tcg_id ON cards(tcg_id)`,

		`CREATE TABLE IF NOT EXISTS borrowers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_borrowers_name ON borrowers(name)`,

		`CREATE TABLE IF NOT EXISTS lending (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			card_id INTEGER NOT NULL,
			borrower_id INTEGER NOT NULL DEFAULT 0,
			borrower_name TEXT NOT NULL DEFAULT '',
			lend_date DATETIME NOT NULL,
			expected_return_date DATETIME NOT NULL,
			actual_return_date DATETIME,
			status TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_card_id ON lending(card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_borrower_id ON lending(borrower_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_borrower_name ON lending(borrower_name)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_lend_date ON lending(lend_date)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_expected_return_date ON lending(expected_return_date)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_actual_return_date ON lending(actual_return_date)`,
		`CREATE INDEX IF NOT EXISTS idx_lending_status ON lending(status)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trader_name TEXT NOT NULL DEFAULT '',
			trade_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			my_cards_value REAL NOT NULL DEFAULT 0,
			their_cards_value REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_trader_name ON trades(trader_name)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_trade_date ON trades(trade_date)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,

		`CREATE TABLE IF NOT EXISTS trade_cards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id INTEGER NOT NULL,
			card_id INTEGER NOT NULL,
			direction TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			value_at_trade REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_cards_trade_id ON trade_cards(trade_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_cards_card_id ON trade_cards(card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_cards_direction ON trade_cards(direction)`,

		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			card_id INTEGER NOT NULL,
			market_price REAL NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_card_id ON price_history(card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_timestamp ON price_history(timestamp)`,

		`CREATE TABLE IF NOT EXISTS wishlist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			card_name TEXT NOT NULL,
			set_name TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'medium',
			created_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wishlist_card_name ON wishlist(card_name)`,
		`CREATE INDEX IF NOT EXISTS idx_wishlist_priority ON wishlist(priority)`,
	)
}

// addCardCreatedAt indexes cards by creation time and stamps existing rows
// with the migration time.
func addCardCreatedAt(tx *gorm.DB, now time.Time) error {
	if !tx.Migrator().HasColumn("cards", "created_at") {
		if err := tx.Exec(`ALTER TABLE cards ADD COLUMN created_at DATETIME`).Error; err != nil {
			return err
		}
	}
	if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_cards_created_at ON cards(created_at)`).Error; err != nil {
		return err
	}
	result := tx.Exec(`UPDATE cards SET created_at = ? WHERE created_at IS NULL`, now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Migration: backfilled created_at on %d cards", result.RowsAffected)
	}
	return nil
}

// addCardEnrichment adds the optional catalog detail columns
func addCardEnrichment(tx *gorm.DB, _ time.Time) error {
	columns := []struct{ name, ddl string }{
		{"types", `TEXT NOT NULL DEFAULT '[]'`},
		{"hp", `TEXT NOT NULL DEFAULT ''`},
		{"artist", `TEXT NOT NULL DEFAULT ''`},
		{"evolves_from", `TEXT NOT NULL DEFAULT ''`},
		{"attacks", `TEXT NOT NULL DEFAULT '[]'`},
		{"weaknesses", `TEXT NOT NULL DEFAULT '[]'`},
		{"resistances", `TEXT NOT NULL DEFAULT '[]'`},
		{"retreat_cost", `TEXT NOT NULL DEFAULT '[]'`},
		{"supertype", `TEXT NOT NULL DEFAULT ''`},
		{"subtypes", `TEXT NOT NULL DEFAULT '[]'`},
	}
	for _, col := range columns {
		if tx.Migrator().HasColumn("cards", col.name) {
			continue
		}
		if err := tx.Exec(fmt.Sprintf(`ALTER TABLE cards ADD COLUMN %s %s`, col.name, col.ddl)).Error; err != nil {
			return err
		}
	}
	return nil
}
