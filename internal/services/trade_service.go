package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

var tradeWriteScope = []database.Collection{database.Trades, database.TradeCards, database.Cards, database.PriceHistory}

// TradeService records trades. Line values are snapshotted when the trade
// is created; inventory is only depleted when a trade moves into completed.
type TradeService struct {
	store  *database.Store
	cards  *repository.CardRepository
	trades *repository.TradeRepository
}

func NewTradeService(store *database.Store) *TradeService {
	return &TradeService{
		store:  store,
		cards:  repository.NewCardRepository(store),
		trades: repository.NewTradeRepository(store),
	}
}

// CreateTrade stores a trade with one line per card. Incoming cards without
// an id are added to the collection first; outgoing cards must not be lent out. Creating a trade never changes
// the quantity of outgoing cards, even when it is created as completed.
func (s *TradeService) CreateTrade(ctx context.Context, req models.CreateTradeRequest) (*models.Trade, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = models.TradePending
	}
	if !status.Valid() {
		return nil, apperror.Validation("Status", fmt.Sprintf("unknown trade status %q", req.Status))
	}

	var trade models.Trade
	err := runOperation(ctx, s.store, "create_trade", tradeWriteScope, func(tx *gorm.DB) error {
		cards := s.cards.With(tx)
		var lines []models.TradeLine
		myValue, theirValue := decimal.Zero, decimal.Zero

		for _, out := range req.MyCards {
			card, err := cards.Get(ctx, out.CardID)
			if err != nil {
				return err
			}
			if !card.IsAvailable {
				return apperror.Conflict("card %q is lent out and cannot be traded", card.Name)
			}
			qty := lineQuantity(out.Quantity)
			myValue = myValue.Add(lineValue(card.Price(), qty))
			lines = append(lines, models.TradeLine{
				CardID:       card.ID,
				Direction:    models.DirectionOut,
				Quantity:     qty,
				ValueAtTrade: card.Price(),
			})
		}

		for _, in := range req.TheirCards {
			qty := lineQuantity(in.Quantity)
			theirValue = theirValue.Add(lineValue(in.MarketPrice, qty))

			cardID := in.CardID
			if cardID == 0 {
				price := in.MarketPrice
				card, err := cards.Add(ctx, models.NewCard{
					Name:        in.Name,
					SetName:     in.SetName,
					SetNumber:   in.SetNumber,
					Rarity:      in.Rarity,
					Condition:   in.Condition,
					Quantity:    qty,
					MarketPrice: &price,
					TCGID:       in.TCGID,
					ImageURL:    in.ImageURL,
					Enrichment:  in.Enrichment,
				})
				if err != nil {
					return fmt.Errorf("failed to add received card %q: %w", in.Name, err)
				}
				cardID = card.ID
			}
			lines = append(lines, models.TradeLine{
				CardID:       cardID,
				Direction:    models.DirectionIn,
				Quantity:     qty,
				ValueAtTrade: in.MarketPrice,
			})
		}

		trade = models.Trade{
			TraderName:      strings.TrimSpace(req.TraderName),
			TradeDate:       s.store.Now(),
			Status:          status,
			MyCardsValue:    myValue.InexactFloat64(),
			TheirCardsValue: theirValue.InexactFloat64(),
			Notes:           req.Notes,
		}
		return s.trades.With(tx).Create(ctx, &trade, lines)
	})
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// UpdateTradeStatus changes a trade's status. Moving a trade into completed
// from any other status removes the outgoing quantities from the collection,
// deleting cards that run out. It fails with a Conflict while any outgoing
// card is lent out. Completed and cancelled are terminal; setting
// the current status again is a no-op.
func (s *TradeService) UpdateTradeStatus(ctx context.Context, id uint, status models.TradeStatus) (*models.Trade, error) {
	if !status.Valid() {
		return nil, apperror.Validation("Status", fmt.Sprintf("unknown trade status %q", status))
	}

	var trade *models.Trade
	err := runOperation(ctx, s.store, "update_trade_status", tradeWriteScope, func(tx *gorm.DB) error {
		trades := s.trades.With(tx)
		var err error
		trade, err = trades.Get(ctx, id)
		if err != nil {
			return err
		}
		if trade.Status == status {
			return nil
		}
		if trade.Status != models.TradePending {
			return apperror.Conflict("trade %d is already %s", id, trade.Status)
		}

		if status == models.TradeCompleted {
			lines, err := trades.Lines(ctx, id)
			if err != nil {
				return err
			}
			cards := s.cards.With(tx)
			for _, line := range lines {
				if line.Direction != models.DirectionOut {
					continue
				}
				if _, err := cards.Deplete(ctx, line.CardID, line.Quantity); err != nil {
					return err
				}
			}
		}

		if err := trades.SetStatus(ctx, id, status); err != nil {
			return err
		}
		trade.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// DeleteTrade removes a trade and its lines. Inventory is not restored.
func (s *TradeService) DeleteTrade(ctx context.Context, id uint) error {
	return runOperation(ctx, s.store, "delete_trade", []database.Collection{database.Trades, database.TradeCards}, func(tx *gorm.DB) error {
		return s.trades.With(tx).Delete(ctx, id)
	})
}

// UpdateTrade edits trader name or notes
func (s *TradeService) UpdateTrade(ctx context.Context, id uint, patch models.TradePatch) (*models.Trade, error) {
	return s.trades.Update(ctx, id, patch)
}

func lineQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

func lineValue(price float64, qty int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty)))
}
