package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

var cardScope = []database.Collection{database.Cards, database.PriceHistory}

type CardRepository struct {
	base
	history *PriceHistoryRepository
}

func NewCardRepository(store *database.Store) *CardRepository {
	return &CardRepository{
		base:    base{store: store},
		history: NewPriceHistoryRepository(store),
	}
}

// With returns a repository that reads and writes through tx
func (r *CardRepository) With(tx *gorm.DB) *CardRepository {
	return &CardRepository{base: r.bind(tx), history: r.history.With(tx)}
}

// Add validates and inserts a new available card. A known market price is
// also recorded in the price history.
func (r *CardRepository) Add(ctx context.Context, in models.NewCard) (*models.Card, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	condition := in.Condition
	if condition == "" {
		condition = models.ConditionNearMint
	}
	if !condition.Valid() {
		return nil, apperror.Validation("Condition", fmt.Sprintf("unknown condition %q", in.Condition))
	}
	quantity := in.Quantity
	if quantity < 1 {
		quantity = 1
	}

	card := &models.Card{
		Name:        strings.TrimSpace(in.Name),
		SetName:     in.SetName,
		SetNumber:   in.SetNumber,
		Rarity:      in.Rarity,
		Condition:   condition,
		Quantity:    quantity,
		MarketPrice: in.MarketPrice,
		TCGID:       in.TCGID,
		ImageURL:    in.ImageURL,
		IsAvailable: true,
		Enrichment:  in.Enrichment.WithEmptyLists(),
	}
	err := r.write(ctx, cardScope, func(tx *gorm.DB) error {
		if err := tx.Create(card).Error; err != nil {
			return fmt.Errorf("failed to add card: %w", err)
		}
		if card.MarketPrice != nil {
			return r.history.With(tx).Record(ctx, card.ID, *card.MarketPrice)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// Update applies the fields present in patch. A changed market price is
// appended to the price history in the same transaction.
func (r *CardRepository) Update(ctx context.Context, id uint, patch models.CardPatch) (*models.Card, error) {
	if err := models.Validate(patch); err != nil {
		return nil, err
	}
	if patch.Condition != nil && !patch.Condition.Valid() {
		return nil, apperror.Validation("Condition", fmt.Sprintf("unknown condition %q", *patch.Condition))
	}

	var card models.Card
	err := r.write(ctx, cardScope, func(tx *gorm.DB) error {
		if err := first(tx, &card, "Card", id); err != nil {
			return err
		}

		columns := []string{"updated_at"}
		set := func(column string) { columns = append(columns, column) }

		if patch.Name != nil {
			card.Name = strings.TrimSpace(*patch.Name)
			set("name")
		}
		if patch.SetName != nil {
			card.SetName = *patch.SetName
			set("set_name")
		}
		if patch.SetNumber != nil {
			card.SetNumber = *patch.SetNumber
			set("set_number")
		}
		if patch.Rarity != nil {
			card.Rarity = *patch.Rarity
			set("rarity")
		}
		if patch.Condition != nil {
			card.Condition = *patch.Condition
			set("condition")
		}
		if patch.Quantity != nil {
			card.Quantity = *patch.Quantity
			set("quantity")
		}
		if patch.TCGID != nil {
			card.TCGID = *patch.TCGID
			set("tcg_id")
		}
		if patch.ImageURL != nil {
			card.ImageURL = *patch.ImageURL
			set("image_url")
		}
		if patch.Enrichment != nil {
			card.Enrichment = patch.Enrichment.WithEmptyLists()
			columns = append(columns, "types", "hp", "artist", "evolves_from", "attacks",
				"weaknesses", "resistances", "retreat_cost", "supertype", "subtypes")
		}

		var newPrice *float64
		switch {
		case patch.ClearPrice:
			if card.MarketPrice != nil {
				card.MarketPrice = nil
				set("market_price")
			}
		case patch.MarketPrice != nil:
			if card.MarketPrice == nil || *card.MarketPrice != *patch.MarketPrice {
				price := *patch.MarketPrice
				card.MarketPrice = &price
				newPrice = &price
				set("market_price")
			}
		}

		card.UpdatedAt = r.store.Now()
		if err := tx.Model(&card).Select(columns).Updates(&card).Error; err != nil {
			return fmt.Errorf("failed to update card %d: %w", id, err)
		}
		if newPrice != nil {
			return r.history.With(tx).Record(ctx, card.ID, *newPrice)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *CardRepository) Get(ctx context.Context, id uint) (*models.Card, error) {
	var card models.Card
	if err := first(r.read(ctx), &card, "Card", id); err != nil {
		return nil, err
	}
	return &card, nil
}

// GetMany loads the cards with the given ids keyed by id. Missing ids are absent from the map.
func (r *CardRepository) GetMany(ctx context.Context, ids []uint) (map[uint]*models.Card, error) {
	out := make(map[uint]*models.Card, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var cards []models.Card
	if err := r.read(ctx).Where("id IN ?", ids).Find(&cards).Error; err != nil {
		return nil, err
	}
	for i := range cards {
		out[cards[i].ID] = &cards[i]
	}
	return out, nil
}

// Delete removes a card and its price history. Cards that are currently
// lent out cannot be deleted.
func (r *CardRepository) Delete(ctx context.Context, id uint) error {
	return r.write(ctx, cardScope, func(tx *gorm.DB) error {
		var card models.Card
		if err := first(tx, &card, "Card", id); err != nil {
			return err
		}
		if err := ensureNotLent(tx, &card, "delete"); err != nil {
			return err
		}
		return deleteCard(tx, id)
	})
}

func ensureNotLent(tx *gorm.DB, card *models.Card, action string) error {
	var active int64
	if err := tx.Model(&models.LendingRecord{}).
		Where("card_id = ? AND status = ?", card.ID, models.LendingActive).
		Count(&active).Error; err != nil {
		return err
	}
	if active > 0 {
		return apperror.Conflict("cannot %s card %q: it is currently lent out", action, card.Name)
	}
	return nil
}

func deleteCard(tx *gorm.DB, id uint) error {
	if err := tx.Where("card_id = ?", id).Delete(&models.PriceHistory{}).Error; err != nil {
		return fmt.Errorf("failed to delete price history for card %d: %w", id, err)
	}
	if err := tx.Delete(&models.Card{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	return nil
}

// MarkLent flags a card as out with the given borrower
func (r *CardRepository) MarkLent(ctx context.Context, id, borrowerID uint) error {
	return r.write(ctx, cardScope, func(tx *gorm.DB) error {
		return tx.Model(&models.Card{ID: id}).Updates(map[string]any{
			"is_available": false,
			"borrower_id":  borrowerID,
			"updated_at":   r.store.Now(),
		}).Error
	})
}

// MarkAvailable flags a card as back in the collection
func (r *CardRepository) MarkAvailable(ctx context.Context, id uint) error {
	return r.write(ctx, cardScope, func(tx *gorm.DB) error {
		return tx.Model(&models.Card{ID: id}).Updates(map[string]any{
			"is_available": true,
			"borrower_id":  nil,
			"updated_at":   r.store.Now(),
		}).Error
	})
}

// Deplete reduces a card's quantity by n, deleting the card when nothing is
// left. Missing cards are ignored and lent cards are a Conflict. Reports
// whether the card was deleted.
func (r *CardRepository) Deplete(ctx context.Context, id uint, n int) (bool, error) {
	deleted := false
	err := r.write(ctx, cardScope, func(tx *gorm.DB) error {
		var card models.Card
		found, err := findOne(tx.Where("id = ?", id), &card)
		if err != nil || !found {
			return err
		}
		if err := ensureNotLent(tx, &card, "trade away"); err != nil {
			return err
		}
		remaining := card.Quantity - n
		if remaining <= 0 {
			deleted = true
			return deleteCard(tx, id)
		}
		return tx.Model(&card).Updates(map[string]any{
			"quantity":   remaining,
			"updated_at": r.store.Now(),
		}).Error
	})
	return deleted, err
}

// AddQuantity increments the quantity of an existing card
func (r *CardRepository) AddQuantity(ctx context.Context, id uint, n int) error {
	return r.write(ctx, cardScope, func(tx *gorm.DB) error {
		return tx.Model(&models.Card{ID: id}).Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", n),
			"updated_at": r.store.Now(),
		}).Error
	})
}

func (r *CardRepository) List(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := r.read(ctx).Order("id").Find(&cards).Error
	return cards, err
}

// FindByNaturalKey returns the first card with the same name, set name and
// set number, or nil when there is none.
func (r *CardRepository) FindByNaturalKey(ctx context.Context, name, setName, setNumber string) (*models.Card, error) {
	var card models.Card
	found, err := findOne(r.read(ctx).
		Where("name = ? AND set_name = ? AND set_number = ?", name, setName, setNumber).
		Order("id"), &card)
	if err != nil || !found {
		return nil, err
	}
	return &card, nil
}

// FindByName returns every card with exactly this name, oldest first
func (r *CardRepository) FindByName(ctx context.Context, name string) ([]models.Card, error) {
	var cards []models.Card
	err := r.read(ctx).Where("name = ?", name).Order("id").Find(&cards).Error
	return cards, err
}

func (r *CardRepository) ListBySet(ctx context.Context, setName string) ([]models.Card, error) {
	return r.Filter(ctx, models.CardFilter{SetName: setName})
}

func (r *CardRepository) ListByRarity(ctx context.Context, rarity string) ([]models.Card, error) {
	return r.Filter(ctx, models.CardFilter{Rarity: rarity})
}

func (r *CardRepository) ListByCondition(ctx context.Context, condition models.Condition) ([]models.Card, error) {
	return r.Filter(ctx, models.CardFilter{Condition: condition})
}

func (r *CardRepository) ListAvailable(ctx context.Context) ([]models.Card, error) {
	available := true
	return r.Filter(ctx, models.CardFilter{IsAvailable: &available})
}

// ListNewest returns up to limit cards, most recently added first
func (r *CardRepository) ListNewest(ctx context.Context, limit int) ([]models.Card, error) {
	var cards []models.Card
	err := r.read(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&cards).Error
	return cards, err
}

// ListForPriceRefresh returns up to limit cards linked to the catalog,
// unpriced cards first, then the least recently updated.
func (r *CardRepository) ListForPriceRefresh(ctx context.Context, limit int, exclude []uint) ([]models.Card, error) {
	q := r.read(ctx).Where("tcg_id <> ''")
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var cards []models.Card
	err := q.Order("market_price IS NOT NULL, updated_at, id").Limit(limit).Find(&cards).Error
	return cards, err
}

// ListWithoutCatalogID returns cards whose price cannot be looked up
func (r *CardRepository) ListWithoutCatalogID(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := r.read(ctx).Where("tcg_id = '' OR tcg_id IS NULL").Order("id").Find(&cards).Error
	return cards, err
}

// Search matches cards whose name or set name starts with term, ignoring
// case. An empty term returns every card.
func (r *CardRepository) Search(ctx context.Context, term string) ([]models.Card, error) {
	return r.Filter(ctx, models.CardFilter{SearchTerm: term})
}

func (r *CardRepository) Filter(ctx context.Context, f models.CardFilter) ([]models.Card, error) {
	q := r.read(ctx).Model(&models.Card{})
	if f.SetName != "" {
		q = q.Where("set_name = ?", f.SetName)
	}
	if f.Rarity != "" {
		q = q.Where("rarity = ?", f.Rarity)
	}
	if f.Condition != "" {
		q = q.Where("condition = ?", f.Condition)
	}
	if f.IsAvailable != nil {
		q = q.Where("is_available = ?", *f.IsAvailable)
	}
	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		pattern := prefixPattern(term)
		q = q.Where(`(name LIKE ? ESCAPE '\' OR set_name LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	var cards []models.Card
	err := q.Order("id").Find(&cards).Error
	return cards, err
}

// TotalValue sums quantity times market price, counting unknown prices as zero
func (r *CardRepository) TotalValue(ctx context.Context) (float64, error) {
	cards, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	for i := range cards {
		total = total.Add(decimal.NewFromFloat(cards[i].Price()).Mul(decimal.NewFromInt(int64(cards[i].Quantity))))
	}
	value, _ := total.Float64()
	return value, nil
}
