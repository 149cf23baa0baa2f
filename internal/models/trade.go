package models

import "time"

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeCompleted TradeStatus = "completed"
	TradeCancelled TradeStatus = "cancelled"
)

func (s TradeStatus) Valid() bool {
	switch s {
	case TradePending, TradeCompleted, TradeCancelled:
		return true
	}
	return false
}

type TradeDirection string

const (
	DirectionOut TradeDirection = "out" // cards I give
	DirectionIn  TradeDirection = "in"  // cards I receive
)

type Trade struct {
	ID              uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	TraderName      string      `json:"trader_name" gorm:"index"`
	TradeDate       time.Time   `json:"trade_date" gorm:"index"`
	Status          TradeStatus `json:"status" gorm:"not null;index"`
	MyCardsValue    float64     `json:"my_cards_value"`
	TheirCardsValue float64     `json:"their_cards_value"`
	Notes           string      `json:"notes"`
}

func (Trade) TableName() string { return "trades" }

// Balance is what I received minus what I gave
func (t *Trade) Balance() float64 {
	return t.TheirCardsValue - t.MyCardsValue
}

// TradeLine is one card-direction-quantity-value entry of a trade.
// ValueAtTrade is a snapshot and is never updated.
type TradeLine struct {
	ID           uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	TradeID      uint           `json:"trade_id" gorm:"not null;index"`
	CardID       uint           `json:"card_id" gorm:"not null;index"`
	Direction    TradeDirection `json:"direction" gorm:"not null"`
	Quantity     int            `json:"quantity"`
	ValueAtTrade float64        `json:"value_at_trade"`
}

func (TradeLine) TableName() string { return "trade_cards" }

// OutgoingCard references an owned card given away in a trade
type OutgoingCard struct {
	CardID   uint `json:"card_id" validate:"required"`
	Quantity int  `json:"quantity" validate:"gte=0"`
}

// IncomingCard describes a card received in a trade. When CardID is zero
// the card is not owned yet and is added to the collection.
type IncomingCard struct {
	CardID      uint      `json:"card_id"`
	Name        string    `json:"name" validate:"required_without=CardID"`
	SetName     string    `json:"set_name"`
	SetNumber   string    `json:"set_number"`
	Rarity      string    `json:"rarity"`
	Condition   Condition `json:"condition"`
	Quantity    int       `json:"quantity" validate:"gte=0"`
	MarketPrice float64   `json:"market_price" validate:"gte=0"`
	TCGID       string    `json:"tcg_id"`
	ImageURL    string    `json:"image_url"`
	Enrichment
}

type CreateTradeRequest struct {
	TraderName string         `json:"trader_name" validate:"required,notblank"`
	Status     TradeStatus    `json:"status"`
	MyCards    []OutgoingCard `json:"my_cards" validate:"dive"`
	TheirCards []IncomingCard `json:"their_cards" validate:"dive"`
	Notes      string         `json:"notes"`
}

type TradePatch struct {
	TraderName *string `json:"trader_name" validate:"omitempty,notblank"`
	Notes      *string `json:"notes"`
}

// EnrichedTradeLine joins a trade line with the current card, which may be
// nil once the card has left the collection.
type EnrichedTradeLine struct {
	TradeLine
	Card *Card `json:"card"`
}

type EnrichedTrade struct {
	Trade
	MyCards      []EnrichedTradeLine `json:"my_cards"`
	TheirCards   []EnrichedTradeLine `json:"their_cards"`
	TradeBalance float64             `json:"trade_balance"`
}
