package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

// PriceHistoryRepository is an append-only log of observed card prices
type PriceHistoryRepository struct {
	base
}

func NewPriceHistoryRepository(store *database.Store) *PriceHistoryRepository {
	return &PriceHistoryRepository{base: base{store: store}}
}

func (r *PriceHistoryRepository) With(tx *gorm.DB) *PriceHistoryRepository {
	return &PriceHistoryRepository{base: r.bind(tx)}
}

// Record appends an observation stamped with the store clock
func (r *PriceHistoryRepository) Record(ctx context.Context, cardID uint, price float64) error {
	if price < 0 {
		return apperror.Validation("MarketPrice", "must be at least 0")
	}
	entry := &models.PriceHistory{
		CardID:      cardID,
		MarketPrice: price,
		Timestamp:   r.store.Now(),
	}
	return r.write(ctx, []database.Collection{database.PriceHistory}, func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to record price for card %d: %w", cardID, err)
		}
		return nil
	})
}

// ListForCard returns a card's observations, oldest first
func (r *PriceHistoryRepository) ListForCard(ctx context.Context, cardID uint) ([]models.PriceHistory, error) {
	var entries []models.PriceHistory
	err := r.read(ctx).Where("card_id = ?", cardID).Order("timestamp, id").Find(&entries).Error
	return entries, err
}
