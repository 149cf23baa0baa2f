package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

var lendingScope = []database.Collection{database.Lending}

// LendingRepository stores lending records. Records are created active and
// move to returned exactly once; they are never deleted outside of a bulk clear.
type LendingRepository struct {
	base
}

func NewLendingRepository(store *database.Store) *LendingRepository {
	return &LendingRepository{base: base{store: store}}
}

func (r *LendingRepository) With(tx *gorm.DB) *LendingRepository {
	return &LendingRepository{base: r.bind(tx)}
}

func (r *LendingRepository) Create(ctx context.Context, rec *models.LendingRecord) error {
	return r.write(ctx, lendingScope, func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create lending record: %w", err)
		}
		return nil
	})
}

// MarkReturned closes an active record
func (r *LendingRepository) MarkReturned(ctx context.Context, id uint, at time.Time) error {
	return r.write(ctx, lendingScope, func(tx *gorm.DB) error {
		return tx.Model(&models.LendingRecord{ID: id}).
			Where("status = ?", models.LendingActive).
			Updates(map[string]any{
				"status":             models.LendingReturned,
				"actual_return_date": at,
			}).Error
	})
}

func (r *LendingRepository) Get(ctx context.Context, id uint) (*models.LendingRecord, error) {
	var rec models.LendingRecord
	if err := first(r.read(ctx), &rec, "Lending record", id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every record, most recent lend date first
func (r *LendingRepository) List(ctx context.Context) ([]models.LendingRecord, error) {
	var recs []models.LendingRecord
	err := r.read(ctx).Order("lend_date DESC, id DESC").Find(&recs).Error
	return recs, err
}

func (r *LendingRepository) ListActive(ctx context.Context) ([]models.LendingRecord, error) {
	var recs []models.LendingRecord
	err := r.read(ctx).Where("status = ?", models.LendingActive).Order("id").Find(&recs).Error
	return recs, err
}

func (r *LendingRepository) ListByBorrower(ctx context.Context, borrowerID uint) ([]models.LendingRecord, error) {
	var recs []models.LendingRecord
	err := r.read(ctx).Where("borrower_id = ?", borrowerID).Order("lend_date DESC, id DESC").Find(&recs).Error
	return recs, err
}

func (r *LendingRepository) ListByCard(ctx context.Context, cardID uint) ([]models.LendingRecord, error) {
	var recs []models.LendingRecord
	err := r.read(ctx).Where("card_id = ?", cardID).Order("lend_date DESC, id DESC").Find(&recs).Error
	return recs, err
}

// ActiveForCard returns the card's active record, or nil if it is not lent out
func (r *LendingRepository) ActiveForCard(ctx context.Context, cardID uint) (*models.LendingRecord, error) {
	var rec models.LendingRecord
	found, err := findOne(r.read(ctx).Where("card_id = ? AND status = ?", cardID, models.LendingActive), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// ListRecentlyChanged returns up to limit records ordered by their latest
// state change (return date if returned, else lend date), newest first
func (r *LendingRepository) ListRecentlyChanged(ctx context.Context, limit int) ([]models.LendingRecord, error) {
	var recs []models.LendingRecord
	err := r.read(ctx).
		Order("COALESCE(actual_return_date, lend_date) DESC, id DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
