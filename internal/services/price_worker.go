package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

const (
	defaultPriceBatchSize      = 20
	defaultPriceUpdateInterval = time.Hour
)

// UnmatchedCard is a card the worker could not price from the catalog
type UnmatchedCard struct {
	CardID    uint   `json:"card_id"`
	Name      string `json:"name"`
	SetName   string `json:"set_name"`
	SetNumber string `json:"set_number"`
	Reason    string `json:"reason"`
}

// PriceStatus describes the worker's progress
type PriceStatus struct {
	LastUpdateTime time.Time       `json:"last_update_time"`
	NextUpdateTime time.Time       `json:"next_update_time"`
	CardsUpdated   int             `json:"cards_updated"`
	BatchSize      int             `json:"batch_size"`
	QueueSize      int             `json:"queue_size"`
	UnmatchedCards []UnmatchedCard `json:"unmatched_cards,omitempty"`
}

// PriceWorker refreshes market prices of cards linked to the catalog. A
// changed price is written through the card repository and so lands in the
// price history.
type PriceWorker struct {
	cards          *repository.CardRepository
	catalog        CatalogProvider
	updateInterval time.Duration
	batchSize      int

	// Priority queue for user-requested refreshes
	urgentQueue []uint
	urgentMu    sync.Mutex

	mu             sync.RWMutex
	cardsUpdated   int
	lastUpdateTime time.Time
	unmatched      map[uint]UnmatchedCard
}

// NewPriceWorker creates a worker. catalog should not be cached, or
// refreshed prices may be stale.
func NewPriceWorker(store *database.Store, catalog CatalogProvider, interval time.Duration, batchSize int) *PriceWorker {
	if interval <= 0 {
		interval = defaultPriceUpdateInterval
	}
	if batchSize <= 0 {
		batchSize = defaultPriceBatchSize
	}
	return &PriceWorker{
		cards:          repository.NewCardRepository(store),
		catalog:        catalog,
		updateInterval: interval,
		batchSize:      batchSize,
		unmatched:      make(map[uint]UnmatchedCard),
	}
}

// QueueRefresh puts a card at the front of the next batch and returns its
// 1-based position in the queue
func (w *PriceWorker) QueueRefresh(cardID uint) int {
	w.urgentMu.Lock()
	defer w.urgentMu.Unlock()

	for i, id := range w.urgentQueue {
		if id == cardID {
			return i + 1
		}
	}
	w.urgentQueue = append(w.urgentQueue, cardID)
	metrics.PriceQueueSize.Set(float64(len(w.urgentQueue)))
	log.Printf("Price worker: queued refresh for card %d (queue size: %d)", cardID, len(w.urgentQueue))
	return len(w.urgentQueue)
}

func (w *PriceWorker) QueueSize() int {
	w.urgentMu.Lock()
	defer w.urgentMu.Unlock()
	return len(w.urgentQueue)
}

// Start updates one batch immediately and then one every interval until ctx is done
func (w *PriceWorker) Start(ctx context.Context) {
	log.Printf("Price worker started: will update %d cards every %v", w.batchSize, w.updateInterval)

	w.runBatch(ctx)

	ticker := time.NewTicker(w.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price worker stopping...")
			return
		case <-ticker.C:
			w.runBatch(ctx)
		}
	}
}

func (w *PriceWorker) runBatch(ctx context.Context) {
	updated, err := w.UpdateBatch(ctx)
	if err != nil {
		log.Printf("Price worker: batch update failed: %v", err)
	} else if updated > 0 {
		log.Printf("Price worker: batch updated %d cards", updated)
	}
}

// UpdateBatch refreshes one batch and returns how many prices changed.
// Cards are taken in this order:
// 1. User-requested refreshes
// 2. Linked cards without a price
// 3. Linked cards updated longest ago
func (w *PriceWorker) UpdateBatch(ctx context.Context) (updated int, err error) {
	start := time.Now()
	defer func() { metrics.PriceBatchDuration.Observe(time.Since(start).Seconds()) }()

	w.urgentMu.Lock()
	urgentIDs := w.urgentQueue
	if len(urgentIDs) > w.batchSize {
		urgentIDs = urgentIDs[:w.batchSize]
		w.urgentQueue = append([]uint(nil), w.urgentQueue[w.batchSize:]...)
	} else {
		w.urgentQueue = nil
	}
	metrics.PriceQueueSize.Set(float64(len(w.urgentQueue)))
	w.urgentMu.Unlock()

	var batch []models.Card
	seen := w.unmatchedIDs()
	if len(urgentIDs) > 0 {
		urgent, err := w.cards.GetMany(ctx, urgentIDs)
		if err != nil {
			return 0, err
		}
		for _, id := range urgentIDs {
			card, ok := urgent[id]
			if !ok {
				continue // deleted since it was queued
			}
			if card.TCGID == "" {
				w.markUnmatched(card, "no catalog id")
				continue
			}
			// A manual refresh retries cards that failed before
			w.clearUnmatched(id)
			batch = append(batch, *card)
			seen = append(seen, id)
		}
		log.Printf("Price worker: processing %d urgent refresh requests", len(batch))
	}

	if remaining := w.batchSize - len(batch); remaining > 0 {
		rest, err := w.cards.ListForPriceRefresh(ctx, remaining, seen)
		if err != nil {
			return 0, err
		}
		batch = append(batch, rest...)
	}
	if len(batch) == 0 {
		log.Println("Price worker: no cards to update")
		return 0, nil
	}

	for i := range batch {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		changed, err := w.refresh(ctx, &batch[i])
		if err != nil {
			metrics.PriceUpdatesTotal.WithLabelValues("error").Inc()
			log.Printf("Price worker: failed to refresh %s (%s): %v", batch[i].Name, batch[i].TCGID, err)
			continue
		}
		if changed {
			updated++
		}
	}

	w.mu.Lock()
	w.cardsUpdated += updated
	w.lastUpdateTime = time.Now()
	w.mu.Unlock()
	return updated, nil
}

// refresh looks one card up and stores its current market price. The card
// is touched even when the price is unchanged so it moves to the back of
// the rotation.
func (w *PriceWorker) refresh(ctx context.Context, card *models.Card) (bool, error) {
	found, err := w.catalog.GetCard(ctx, card.TCGID)
	if err != nil {
		return false, err
	}
	if found == nil {
		w.markUnmatched(card, "not found in catalog")
		metrics.PriceUpdatesTotal.WithLabelValues("unmatched").Inc()
		return false, nil
	}
	if found.MarketPrice == nil {
		w.markUnmatched(card, "catalog has no price")
		metrics.PriceUpdatesTotal.WithLabelValues("unmatched").Inc()
		return false, nil
	}

	changed := card.MarketPrice == nil || *card.MarketPrice != *found.MarketPrice
	if _, err := w.cards.Update(ctx, card.ID, models.CardPatch{MarketPrice: found.MarketPrice}); err != nil {
		return false, err
	}
	if changed {
		metrics.PriceUpdatesTotal.WithLabelValues("updated").Inc()
	} else {
		metrics.PriceUpdatesTotal.WithLabelValues("unchanged").Inc()
	}
	return changed, nil
}

func (w *PriceWorker) markUnmatched(card *models.Card, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.unmatched[card.ID]; !ok {
		log.Printf("Price worker: skipping %s (#%s, set: %s): %s", card.Name, card.SetNumber, card.SetName, reason)
	}
	w.unmatched[card.ID] = UnmatchedCard{
		CardID:    card.ID,
		Name:      card.Name,
		SetName:   card.SetName,
		SetNumber: card.SetNumber,
		Reason:    reason,
	}
}

func (w *PriceWorker) clearUnmatched(cardID uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.unmatched, cardID)
}

func (w *PriceWorker) unmatchedIDs() []uint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]uint, 0, len(w.unmatched))
	for id := range w.unmatched {
		ids = append(ids, id)
	}
	return ids
}

// Status returns the current status. Unmatched cards are ordered by id.
func (w *PriceWorker) Status() PriceStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	unmatched := make([]UnmatchedCard, 0, len(w.unmatched))
	for _, c := range w.unmatched {
		unmatched = append(unmatched, c)
	}
	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].CardID < unmatched[j].CardID })

	return PriceStatus{
		LastUpdateTime: w.lastUpdateTime,
		NextUpdateTime: w.lastUpdateTime.Add(w.updateInterval),
		CardsUpdated:   w.cardsUpdated,
		BatchSize:      w.batchSize,
		QueueSize:      w.QueueSize(),
		UnmatchedCards: unmatched,
	}
}
