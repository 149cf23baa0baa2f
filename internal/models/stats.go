package models

import "time"

type CollectionStats struct {
	TotalCards     int            `json:"total_cards"`
	TotalQuantity  int            `json:"total_quantity"`
	AvailableCards int            `json:"available_cards"`
	LentCards      int            `json:"lent_cards"`
	TotalValue     float64        `json:"total_value"`
	UniqueSets     int            `json:"unique_sets"`
	ByRarity       map[string]int `json:"by_rarity"`
	ByCondition    map[string]int `json:"by_condition"`
	BySet          map[string]int `json:"by_set"`
}

// NameCount is one entry of a top-N ranking
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LendingStats struct {
	Total              int         `json:"total"`
	Active             int         `json:"active"`
	Returned           int         `json:"returned"`
	Overdue            int         `json:"overdue"`
	TotalBorrowers     int         `json:"total_borrowers"`
	TopBorrowers       []NameCount `json:"top_borrowers"`
	AverageLendingDays int         `json:"average_lending_days"`
}

type TradeStats struct {
	Total             int         `json:"total"`
	Completed         int         `json:"completed"`
	Pending           int         `json:"pending"`
	Cancelled         int         `json:"cancelled"`
	TotalGiven        float64     `json:"total_given"`
	TotalReceived     float64     `json:"total_received"`
	NetProfit         float64     `json:"net_profit"`
	ProfitableTrades  int         `json:"profitable_trades"`
	LossTrades        int         `json:"loss_trades"`
	EvenTrades        int         `json:"even_trades"`
	TopTraders        []NameCount `json:"top_traders"`
	AverageTradeValue float64     `json:"average_trade_value"`
}

type ActivityType string

const (
	ActivityCardAdded    ActivityType = "card_added"
	ActivityCardLent     ActivityType = "card_lent"
	ActivityCardReturned ActivityType = "card_returned"
)

// Activity is one entry of the recent activity feed
type Activity struct {
	Type        ActivityType   `json:"type"`
	Date        time.Time      `json:"date"`
	Description string         `json:"description"`
	Card        *Card          `json:"card,omitempty"`
	Lending     *LendingRecord `json:"lending,omitempty"`
}
