package main

import (
	"fmt"
	"log"

	"github.com/codyseavey/tcg-inventory/internal/config"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/services"
)

// app wires the store and services for one command invocation
type app struct {
	cfg       *config.Config
	store     *database.Store
	catalog   *services.CachedCatalog
	lending   *services.LendingService
	trades    *services.TradeService
	queries   *services.QueryService
	transfer  *services.TransferService
	reminders *services.ReminderService
	prices    *services.PriceWorker
}

func newApp(dbPath string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	level, err := cfg.Database.GormLogLevel()
	if err != nil {
		return nil, err
	}

	store, err := database.Open(cfg.Database.Path, database.WithLogLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	tcg := services.NewPokemonTCGService(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.Timeout, cfg.Catalog.MinDelay)
	if cfg.Catalog.APIKey == "" {
		log.Println("Warning: CATALOG_API_KEY not set, Pokemon TCG API requests use the anonymous quota")
	}
	catalog := services.NewCachedCatalog(tcg, cfg.Catalog.CacheSize, cfg.Catalog.SearchTTL, cfg.Catalog.CardTTL)
	queries := services.NewQueryService(store)

	return &app{
		cfg:       cfg,
		store:     store,
		catalog:   catalog,
		lending:   services.NewLendingService(store),
		trades:    services.NewTradeService(store),
		queries:   queries,
		transfer:  services.NewTransferService(store, catalog, services.TransferOptions{RowDelay: cfg.Import.RowDelay}),
		reminders: services.NewReminderService(queries, nil, cfg.Reminder.Interval, cfg.Reminder.LongOverdueDays),
		// Price refreshes want fresh quotes, so they bypass the catalog cache
		prices:    services.NewPriceWorker(store, tcg, cfg.Price.Interval, cfg.Price.BatchSize),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}
