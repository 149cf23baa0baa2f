package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

// LendingService moves cards in and out of the collection. A card is
// unavailable exactly while one active lending record references it.
type LendingService struct {
	store     *database.Store
	cards     *repository.CardRepository
	borrowers *repository.BorrowerRepository
	lending   *repository.LendingRepository
}

func NewLendingService(store *database.Store) *LendingService {
	return &LendingService{
		store:     store,
		cards:     repository.NewCardRepository(store),
		borrowers: repository.NewBorrowerRepository(store),
		lending:   repository.NewLendingRepository(store),
	}
}

// LendCards lends every card to one borrower, found by name or created from
// info. Either all cards are lent or none are.
func (s *LendingService) LendCards(ctx context.Context, cardIDs []uint, info models.BorrowerInfo, expectedReturn time.Time) ([]models.LendingRecord, error) {
	if len(cardIDs) == 0 {
		return nil, apperror.Validation("CardIDs", "no cards selected for lending")
	}
	if err := models.Validate(info); err != nil {
		return nil, err
	}

	var records []models.LendingRecord
	err := runOperation(ctx, s.store, "lend", []database.Collection{database.Cards, database.Lending, database.Borrowers}, func(tx *gorm.DB) error {
		cards := s.cards.With(tx)
		lending := s.lending.With(tx)

		borrower, _, err := s.borrowers.With(tx).FindOrCreate(ctx, info)
		if err != nil {
			return err
		}

		now := s.store.Now()
		for _, id := range cardIDs {
			card, err := cards.Get(ctx, id)
			if err != nil {
				return err
			}
			if !card.IsAvailable {
				return apperror.Conflict("card %q is not available for lending", card.Name)
			}

			rec := models.LendingRecord{
				CardID:             card.ID,
				BorrowerID:         borrower.ID,
				BorrowerName:       borrower.Name,
				LendDate:           now,
				ExpectedReturnDate: expectedReturn.UTC(),
				Status:             models.LendingActive,
			}
			if err := lending.Create(ctx, &rec); err != nil {
				return err
			}
			if err := cards.MarkLent(ctx, card.ID, borrower.ID); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReturnCards closes the given lending records and makes their cards
// available again. Records that are already returned are skipped, so
// repeating a call changes nothing.
func (s *LendingService) ReturnCards(ctx context.Context, lendingIDs []uint) ([]models.LendingRecord, error) {
	var returned []models.LendingRecord
	err := runOperation(ctx, s.store, "return", []database.Collection{database.Cards, database.Lending}, func(tx *gorm.DB) error {
		cards := s.cards.With(tx)
		lending := s.lending.With(tx)

		now := s.store.Now()
		for _, id := range lendingIDs {
			rec, err := lending.Get(ctx, id)
			if err != nil {
				return err
			}
			if rec.Status == models.LendingReturned {
				continue
			}
			if err := lending.MarkReturned(ctx, id, now); err != nil {
				return err
			}
			if err := cards.MarkAvailable(ctx, rec.CardID); err != nil {
				return err
			}
			rec.Status = models.LendingReturned
			rec.ActualReturnDate = &now
			returned = append(returned, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// runOperation executes one named multi-collection operation and records its outcome
func runOperation(ctx context.Context, store *database.Store, op string, scope []database.Collection, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	err := store.Transaction(ctx, scope, fn)
	metrics.TransactionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.TransactionsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		log.Printf("Store: %s failed: %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
