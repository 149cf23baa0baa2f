package services

import (
	"context"
	"testing"

	"github.com/codyseavey/tcg-inventory/internal/models"
)

func countLookups(c *fakeCatalog, id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lookups {
		if l == id {
			n++
		}
	}
	return n
}

func TestPriceWorkerUpdateBatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	catalog := &fakeCatalog{cards: []CatalogCard{
		{TCGID: "neo1-9", Name: "Lugia", MarketPrice: ptr(2.0)},
		{TCGID: "neo1-17", Name: "Typhlosion", MarketPrice: ptr(0.5)},
		{TCGID: "neo1-99", Name: "Unown"},
	}}
	lugia := addCard(t, store, models.NewCard{Name: "Lugia", TCGID: "neo1-9", MarketPrice: ptr(1.0)})
	typhlosion := addCard(t, store, models.NewCard{Name: "Typhlosion", TCGID: "neo1-17"})
	homemade := addCard(t, store, models.NewCard{Name: "Proxy"})
	missing := addCard(t, store, models.NewCard{Name: "Misprint", TCGID: "nope-1"})
	unown := addCard(t, store, models.NewCard{Name: "Unown", TCGID: "neo1-99"})

	worker := NewPriceWorker(store, catalog, 0, 10)
	queries := NewQueryService(store)

	updated, err := worker.UpdateBatch(ctx)
	if err != nil {
		t.Fatalf("UpdateBatch() error = %v", err)
	}
	if updated != 2 {
		t.Errorf("UpdateBatch() = %d, want 2", updated)
	}
	if c := getCard(t, store, typhlosion.ID); c.MarketPrice == nil || *c.MarketPrice != 0.5 {
		t.Errorf("Typhlosion price = %v, want 0.5", c.MarketPrice)
	}
	history, err := queries.PriceHistory(ctx, lugia.ID)
	if err != nil {
		t.Fatalf("PriceHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].MarketPrice != 1.0 || history[1].MarketPrice != 2.0 {
		t.Errorf("Lugia history = %+v, want 1.0 then 2.0", history)
	}

	status := worker.Status()
	if status.CardsUpdated != 2 || len(status.UnmatchedCards) != 2 {
		t.Fatalf("Status() = %+v", status)
	}
	if status.UnmatchedCards[0].CardID != missing.ID || status.UnmatchedCards[0].Reason != "not found in catalog" {
		t.Errorf("unmatched[0] = %+v", status.UnmatchedCards[0])
	}
	if status.UnmatchedCards[1].CardID != unown.ID || status.UnmatchedCards[1].Reason != "catalog has no price" {
		t.Errorf("unmatched[1] = %+v", status.UnmatchedCards[1])
	}

	// Unchanged prices write no history and unmatched cards are not retried
	updated, err = worker.UpdateBatch(ctx)
	if err != nil || updated != 0 {
		t.Errorf("second UpdateBatch() = %d, %v, want 0", updated, err)
	}
	if n := countLookups(catalog, "nope-1"); n != 1 {
		t.Errorf("unmatched card looked up %d times, want 1", n)
	}
	if history, _ := queries.PriceHistory(ctx, lugia.ID); len(history) != 2 {
		t.Errorf("Lugia history has %d entries after an unchanged refresh, want 2", len(history))
	}

	// A queued refresh retries an unmatched card and reports cards without an id
	if pos := worker.QueueRefresh(missing.ID); pos != 1 {
		t.Errorf("QueueRefresh() = %d, want 1", pos)
	}
	if pos := worker.QueueRefresh(homemade.ID); pos != 2 {
		t.Errorf("QueueRefresh() = %d, want 2", pos)
	}
	if pos := worker.QueueRefresh(missing.ID); pos != 1 {
		t.Errorf("QueueRefresh(duplicate) = %d, want 1", pos)
	}
	if worker.QueueSize() != 2 {
		t.Errorf("QueueSize() = %d, want 2", worker.QueueSize())
	}
	if _, err := worker.UpdateBatch(ctx); err != nil {
		t.Fatalf("UpdateBatch() error = %v", err)
	}
	if n := countLookups(catalog, "nope-1"); n != 2 {
		t.Errorf("queued unmatched card looked up %d times, want 2", n)
	}
	if worker.QueueSize() != 0 {
		t.Errorf("QueueSize() = %d after batch, want 0", worker.QueueSize())
	}
	status = worker.Status()
	if len(status.UnmatchedCards) != 3 || status.UnmatchedCards[0].CardID != homemade.ID || status.UnmatchedCards[0].Reason != "no catalog id" {
		t.Errorf("unmatched = %+v", status.UnmatchedCards)
	}
}

func TestPriceWorkerBatchSize(t *testing.T) {
	store, _ := newTestStore(t)
	catalog := &fakeCatalog{}
	for i, id := range []string{"s-1", "s-2", "s-3"} {
		price := float64(i + 1)
		catalog.cards = append(catalog.cards, CatalogCard{TCGID: id, MarketPrice: &price})
		addCard(t, store, models.NewCard{Name: id, TCGID: id})
	}

	worker := NewPriceWorker(store, catalog, 0, 2)
	updated, err := worker.UpdateBatch(context.Background())
	if err != nil {
		t.Fatalf("UpdateBatch() error = %v", err)
	}
	if updated != 2 || len(catalog.lookups) != 2 {
		t.Errorf("UpdateBatch() = %d with %d lookups, want 2 and 2", updated, len(catalog.lookups))
	}
	if got := worker.Status().BatchSize; got != 2 {
		t.Errorf("BatchSize = %d, want 2", got)
	}
}
