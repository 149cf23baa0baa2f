package config

import (
	"os"
	"testing"
	"time"

	"gorm.io/gorm/logger"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"INVENTORY_DB_PATH", "INVENTORY_DB_LOG_LEVEL", "CATALOG_MIN_DELAY", "IMPORT_ROW_DELAY", "REMINDER_LONG_OVERDUE_DAYS", "PRICE_BATCH_SIZE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "./inventory.db" {
		t.Errorf("Database.Path = %q, want ./inventory.db", cfg.Database.Path)
	}
	if cfg.Catalog.MinDelay != 2*time.Second {
		t.Errorf("Catalog.MinDelay = %v, want 2s", cfg.Catalog.MinDelay)
	}
	if cfg.Import.RowDelay != 100*time.Millisecond {
		t.Errorf("Import.RowDelay = %v, want 100ms", cfg.Import.RowDelay)
	}
	if cfg.Reminder.LongOverdueDays != 3 {
		t.Errorf("Reminder.LongOverdueDays = %d, want 3", cfg.Reminder.LongOverdueDays)
	}
	if cfg.Price.BatchSize != 20 {
		t.Errorf("Price.BatchSize = %d, want 20", cfg.Price.BatchSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INVENTORY_DB_PATH", "/tmp/cards.db")
	t.Setenv("CATALOG_SEARCH_TTL", "15m")
	t.Setenv("REMINDER_LONG_OVERDUE_DAYS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/cards.db" {
		t.Errorf("Database.Path = %q, want /tmp/cards.db", cfg.Database.Path)
	}
	if cfg.Catalog.SearchTTL != 15*time.Minute {
		t.Errorf("Catalog.SearchTTL = %v, want 15m", cfg.Catalog.SearchTTL)
	}
	if cfg.Reminder.LongOverdueDays != 7 {
		t.Errorf("Reminder.LongOverdueDays = %d, want 7", cfg.Reminder.LongOverdueDays)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INVENTORY_DB_LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid log level should fail")
	}
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"ERROR", logger.Error},
		{"", logger.Warn},
		{"warn", logger.Warn},
		{"info", logger.Info},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := DatabaseConfig{LogLevel: tt.in}
			got, err := d.GormLogLevel()
			if err != nil {
				t.Fatalf("GormLogLevel() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GormLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
