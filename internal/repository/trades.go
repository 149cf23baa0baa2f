package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

var tradeScope = []database.Collection{database.Trades, database.TradeCards}

type TradeRepository struct {
	base
}

func NewTradeRepository(store *database.Store) *TradeRepository {
	return &TradeRepository{base: base{store: store}}
}

func (r *TradeRepository) With(tx *gorm.DB) *TradeRepository {
	return &TradeRepository{base: r.bind(tx)}
}

// Create inserts a trade and its lines together
func (r *TradeRepository) Create(ctx context.Context, trade *models.Trade, lines []models.TradeLine) error {
	return r.write(ctx, tradeScope, func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		for i := range lines {
			lines[i].TradeID = trade.ID
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return fmt.Errorf("failed to create trade lines: %w", err)
			}
		}
		return nil
	})
}

func (r *TradeRepository) Get(ctx context.Context, id uint) (*models.Trade, error) {
	var trade models.Trade
	if err := first(r.read(ctx), &trade, "Trade", id); err != nil {
		return nil, err
	}
	return &trade, nil
}

// List returns every trade, most recent first
func (r *TradeRepository) List(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.read(ctx).Order("trade_date DESC, id DESC").Find(&trades).Error
	return trades, err
}

func (r *TradeRepository) ListByTrader(ctx context.Context, traderName string) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.read(ctx).Where("trader_name = ?", traderName).Order("trade_date DESC, id DESC").Find(&trades).Error
	return trades, err
}

// Lines returns a trade's lines in insertion order
func (r *TradeRepository) Lines(ctx context.Context, tradeID uint) ([]models.TradeLine, error) {
	var lines []models.TradeLine
	err := r.read(ctx).Where("trade_id = ?", tradeID).Order("id").Find(&lines).Error
	return lines, err
}

// LinesFor returns the lines of several trades keyed by trade id
func (r *TradeRepository) LinesFor(ctx context.Context, tradeIDs []uint) (map[uint][]models.TradeLine, error) {
	out := make(map[uint][]models.TradeLine, len(tradeIDs))
	if len(tradeIDs) == 0 {
		return out, nil
	}
	var lines []models.TradeLine
	if err := r.read(ctx).Where("trade_id IN ?", tradeIDs).Order("id").Find(&lines).Error; err != nil {
		return nil, err
	}
	for _, line := range lines {
		out[line.TradeID] = append(out[line.TradeID], line)
	}
	return out, nil
}

func (r *TradeRepository) SetStatus(ctx context.Context, id uint, status models.TradeStatus) error {
	return r.write(ctx, tradeScope, func(tx *gorm.DB) error {
		return tx.Model(&models.Trade{ID: id}).Update("status", status).Error
	})
}

// Update edits the descriptive fields of a trade. Values and lines are fixed
// at creation.
func (r *TradeRepository) Update(ctx context.Context, id uint, patch models.TradePatch) (*models.Trade, error) {
	if err := models.Validate(patch); err != nil {
		return nil, err
	}
	var trade models.Trade
	err := r.write(ctx, tradeScope, func(tx *gorm.DB) error {
		if err := first(tx, &trade, "Trade", id); err != nil {
			return err
		}
		var columns []string
		if patch.TraderName != nil {
			trade.TraderName = strings.TrimSpace(*patch.TraderName)
			columns = append(columns, "trader_name")
		}
		if patch.Notes != nil {
			trade.Notes = *patch.Notes
			columns = append(columns, "notes")
		}
		if len(columns) == 0 {
			return nil
		}
		return tx.Model(&trade).Select(columns).Updates(&trade).Error
	})
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// Delete removes a trade and all of its lines
func (r *TradeRepository) Delete(ctx context.Context, id uint) error {
	return r.write(ctx, tradeScope, func(tx *gorm.DB) error {
		var trade models.Trade
		if err := first(tx, &trade, "Trade", id); err != nil {
			return err
		}
		if err := tx.Where("trade_id = ?", id).Delete(&models.TradeLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete lines of trade %d: %w", id, err)
		}
		return tx.Delete(&models.Trade{}, id).Error
	})
}
