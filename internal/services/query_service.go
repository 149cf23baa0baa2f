package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

const topN = 5

// Collections read by each derived view, for use with Watch and LiveQuery
var (
	CollectionStatsReads = []database.Collection{database.Cards, database.Lending}
	LendingViewReads     = []database.Collection{database.Lending, database.Cards, database.Borrowers}
	LendingStatsReads    = []database.Collection{database.Lending, database.Borrowers}
	TradeViewReads       = []database.Collection{database.Trades, database.TradeCards, database.Cards}
	TradeStatsReads      = []database.Collection{database.Trades}
	ActivityReads        = []database.Collection{database.Cards, database.Lending}
	WishlistReads        = []database.Collection{database.Wishlist}
	PriceHistoryReads    = []database.Collection{database.PriceHistory}
)

// QueryService derives read-only views from the current store state. Each
// call reads one committed snapshot; times are relative to the store clock.
type QueryService struct {
	store     *database.Store
	cards     *repository.CardRepository
	borrowers *repository.BorrowerRepository
	lending   *repository.LendingRepository
	trades    *repository.TradeRepository
	wishlist  *repository.WishlistRepository
	history   *repository.PriceHistoryRepository
}

func NewQueryService(store *database.Store) *QueryService {
	return &QueryService{
		store:     store,
		cards:     repository.NewCardRepository(store),
		borrowers: repository.NewBorrowerRepository(store),
		lending:   repository.NewLendingRepository(store),
		trades:    repository.NewTradeRepository(store),
		wishlist:  repository.NewWishlistRepository(store),
		history:   repository.NewPriceHistoryRepository(store),
	}
}

func (s *QueryService) CollectionStats(ctx context.Context) (*models.CollectionStats, error) {
	var stats models.CollectionStats
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		cards, err := s.cards.With(tx).List(ctx)
		if err != nil {
			return err
		}
		active, err := s.lending.With(tx).ListActive(ctx)
		if err != nil {
			return err
		}
		stats = collectionStats(cards, len(active))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute collection stats: %w", err)
	}
	metrics.CollectionCards.Set(float64(stats.TotalCards))
	metrics.CollectionValue.Set(stats.TotalValue)
	return &stats, nil
}

func collectionStats(cards []models.Card, activeLendings int) models.CollectionStats {
	stats := models.CollectionStats{
		TotalCards:  len(cards),
		LentCards:   activeLendings,
		ByRarity:    make(map[string]int),
		ByCondition: make(map[string]int),
		BySet:       make(map[string]int),
	}
	total := decimal.Zero
	for i := range cards {
		c := &cards[i]
		stats.TotalQuantity += c.Quantity
		if c.IsAvailable {
			stats.AvailableCards++
		}
		total = total.Add(lineValue(c.Price(), c.Quantity))
		if c.Rarity != "" {
			stats.ByRarity[c.Rarity]++
		}
		if c.Condition != "" {
			stats.ByCondition[string(c.Condition)]++
		}
		if c.SetName != "" {
			stats.BySet[c.SetName]++
		}
	}
	stats.TotalValue = total.InexactFloat64()
	stats.UniqueSets = len(stats.BySet)
	return stats
}

// ActiveLendings returns every active lending joined with its card and borrower
func (s *QueryService) ActiveLendings(ctx context.Context) ([]models.EnrichedLending, error) {
	var out []models.EnrichedLending
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		recs, err := s.lending.With(tx).ListActive(ctx)
		if err != nil {
			return err
		}
		out, err = s.enrichLendings(ctx, tx, recs)
		return err
	})
	return out, err
}

// OverdueItems returns active lendings whose expected return date has
// passed, with the number of whole days they are overdue.
func (s *QueryService) OverdueItems(ctx context.Context) ([]models.EnrichedLending, error) {
	now := s.store.Now()
	var out []models.EnrichedLending
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		recs, err := s.lending.With(tx).ListActive(ctx)
		if err != nil {
			return err
		}
		overdue := recs[:0]
		for _, rec := range recs {
			if rec.IsOverdue(now) {
				overdue = append(overdue, rec)
			}
		}
		out, err = s.enrichLendings(ctx, tx, overdue)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].DaysOverdue = out[i].LendingRecord.DaysOverdue(now)
	}
	metrics.OverdueLendings.Set(float64(len(out)))
	return out, nil
}

// LendingHistory returns lending records, most recent first, optionally
// only those of one borrower (borrowerID 0 means all).
func (s *QueryService) LendingHistory(ctx context.Context, borrowerID uint) ([]models.EnrichedLending, error) {
	var out []models.EnrichedLending
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		lending := s.lending.With(tx)
		var (
			recs []models.LendingRecord
			err  error
		)
		if borrowerID != 0 {
			recs, err = lending.ListByBorrower(ctx, borrowerID)
		} else {
			recs, err = lending.List(ctx)
		}
		if err != nil {
			return err
		}
		out, err = s.enrichLendings(ctx, tx, recs)
		return err
	})
	return out, err
}

func (s *QueryService) enrichLendings(ctx context.Context, tx *gorm.DB, recs []models.LendingRecord) ([]models.EnrichedLending, error) {
	cardIDs := make([]uint, 0, len(recs))
	borrowerIDs := make([]uint, 0, len(recs))
	for _, rec := range recs {
		cardIDs = append(cardIDs, rec.CardID)
		if rec.BorrowerID != 0 {
			borrowerIDs = append(borrowerIDs, rec.BorrowerID)
		}
	}
	cards, err := s.cards.With(tx).GetMany(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	borrowers, err := s.borrowers.With(tx).GetMany(ctx, borrowerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]models.EnrichedLending, len(recs))
	for i, rec := range recs {
		out[i] = models.EnrichedLending{
			LendingRecord: rec,
			Card:          cards[rec.CardID],
			Borrower:      borrowers[rec.BorrowerID],
		}
	}
	return out, nil
}

func (s *QueryService) LendingStats(ctx context.Context) (*models.LendingStats, error) {
	now := s.store.Now()
	var stats models.LendingStats
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		recs, err := s.lending.With(tx).List(ctx)
		if err != nil {
			return err
		}
		borrowers, err := s.borrowers.With(tx).Count(ctx)
		if err != nil {
			return err
		}
		stats = lendingStats(recs, now)
		stats.TotalBorrowers = int(borrowers)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute lending stats: %w", err)
	}
	return &stats, nil
}

func lendingStats(recs []models.LendingRecord, now time.Time) models.LendingStats {
	sorted := append([]models.LendingRecord(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	stats := models.LendingStats{Total: len(sorted)}
	names := make([]string, 0, len(sorted))
	returnedDays := 0
	for _, rec := range sorted {
		switch rec.Status {
		case models.LendingActive:
			stats.Active++
			if rec.IsOverdue(now) {
				stats.Overdue++
			}
		case models.LendingReturned:
			stats.Returned++
			if rec.ActualReturnDate != nil {
				returnedDays += models.WholeDays(rec.ActualReturnDate.Sub(rec.LendDate))
			}
		}
		names = append(names, rec.BorrowerName)
	}
	stats.TopBorrowers = rankNames(names, topN)
	if stats.Returned > 0 {
		stats.AverageLendingDays = int(math.Round(float64(returnedDays) / float64(stats.Returned)))
	}
	return stats
}

// TradeHistory returns trades with their lines, most recent first,
// optionally only those with one trader (empty means all).
func (s *QueryService) TradeHistory(ctx context.Context, trader string) ([]models.EnrichedTrade, error) {
	var out []models.EnrichedTrade
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		trades := s.trades.With(tx)
		var (
			list []models.Trade
			err  error
		)
		if trader != "" {
			list, err = trades.ListByTrader(ctx, trader)
		} else {
			list, err = trades.List(ctx)
		}
		if err != nil {
			return err
		}
		out, err = s.enrichTrades(ctx, tx, list)
		return err
	})
	return out, err
}

// Trade returns one trade with its lines and current cards
func (s *QueryService) Trade(ctx context.Context, id uint) (*models.EnrichedTrade, error) {
	var out []models.EnrichedTrade
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		trade, err := s.trades.With(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		out, err = s.enrichTrades(ctx, tx, []models.Trade{*trade})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *QueryService) enrichTrades(ctx context.Context, tx *gorm.DB, trades []models.Trade) ([]models.EnrichedTrade, error) {
	ids := make([]uint, len(trades))
	for i := range trades {
		ids[i] = trades[i].ID
	}
	linesByTrade, err := s.trades.With(tx).LinesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	var cardIDs []uint
	for _, lines := range linesByTrade {
		for _, line := range lines {
			cardIDs = append(cardIDs, line.CardID)
		}
	}
	cards, err := s.cards.With(tx).GetMany(ctx, cardIDs)
	if err != nil {
		return nil, err
	}

	out := make([]models.EnrichedTrade, len(trades))
	for i, trade := range trades {
		et := models.EnrichedTrade{
			Trade:        trade,
			MyCards:      []models.EnrichedTradeLine{},
			TheirCards:   []models.EnrichedTradeLine{},
			TradeBalance: trade.Balance(),
		}
		for _, line := range linesByTrade[trade.ID] {
			el := models.EnrichedTradeLine{TradeLine: line, Card: cards[line.CardID]}
			if line.Direction == models.DirectionOut {
				et.MyCards = append(et.MyCards, el)
			} else {
				et.TheirCards = append(et.TheirCards, el)
			}
		}
		out[i] = et
	}
	return out, nil
}

func (s *QueryService) TradeStats(ctx context.Context) (*models.TradeStats, error) {
	trades, err := s.trades.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trade stats: %w", err)
	}
	stats := tradeStats(trades)
	return &stats, nil
}

func tradeStats(trades []models.Trade) models.TradeStats {
	sorted := append([]models.Trade(nil), trades...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	stats := models.TradeStats{Total: len(sorted)}
	given, received := decimal.Zero, decimal.Zero
	names := make([]string, 0, len(sorted))
	for _, t := range sorted {
		names = append(names, t.TraderName)
		switch t.Status {
		case models.TradePending:
			stats.Pending++
		case models.TradeCancelled:
			stats.Cancelled++
		case models.TradeCompleted:
			stats.Completed++
			my := decimal.NewFromFloat(t.MyCardsValue)
			their := decimal.NewFromFloat(t.TheirCardsValue)
			given = given.Add(my)
			received = received.Add(their)
			switch their.Cmp(my) {
			case 1:
				stats.ProfitableTrades++
			case -1:
				stats.LossTrades++
			default:
				stats.EvenTrades++
			}
		}
	}
	stats.TotalGiven = given.InexactFloat64()
	stats.TotalReceived = received.InexactFloat64()
	stats.NetProfit = received.Sub(given).InexactFloat64()
	stats.TopTraders = rankNames(names, topN)
	if stats.Completed > 0 {
		stats.AverageTradeValue = given.Add(received).
			Div(decimal.NewFromInt(int64(2 * stats.Completed))).
			InexactFloat64()
	}
	return stats
}

// rankNames counts occurrences of each non-empty name and returns the n most
// frequent. Ties keep the order in which names were first seen.
func rankNames(names []string, n int) []models.NameCount {
	index := make(map[string]int)
	var ranked []models.NameCount
	for _, name := range names {
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			ranked[i].Count++
			continue
		}
		index[name] = len(ranked)
		ranked = append(ranked, models.NameCount{Name: name, Count: 1})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	if ranked == nil {
		ranked = []models.NameCount{}
	}
	return ranked
}

// RecentActivity merges card additions with lending and return events,
// newest first, truncated to limit.
func (s *QueryService) RecentActivity(ctx context.Context, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		return []models.Activity{}, nil
	}
	var activities []models.Activity
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		cards := s.cards.With(tx)
		newest, err := cards.ListNewest(ctx, limit)
		if err != nil {
			return err
		}
		recs, err := s.lending.With(tx).ListRecentlyChanged(ctx, limit)
		if err != nil {
			return err
		}
		cardIDs := make([]uint, len(recs))
		for i := range recs {
			cardIDs[i] = recs[i].CardID
		}
		lent, err := cards.GetMany(ctx, cardIDs)
		if err != nil {
			return err
		}
		activities = mergeActivity(newest, recs, lent, limit)
		return nil
	})
	return activities, err
}

func mergeActivity(cards []models.Card, recs []models.LendingRecord, lent map[uint]*models.Card, limit int) []models.Activity {
	activities := make([]models.Activity, 0, len(cards)+len(recs))
	for i := range cards {
		card := cards[i]
		activities = append(activities, models.Activity{
			Type:        models.ActivityCardAdded,
			Date:        card.CreatedAt,
			Description: fmt.Sprintf("Added %s", card.Name),
			Card:        &card,
		})
	}
	for i := range recs {
		rec := recs[i]
		card := lent[rec.CardID]
		name := "card"
		if card != nil {
			name = card.Name
		}
		a := models.Activity{Card: card, Lending: &rec}
		if rec.Status == models.LendingReturned && rec.ActualReturnDate != nil {
			a.Type = models.ActivityCardReturned
			a.Date = *rec.ActualReturnDate
			a.Description = fmt.Sprintf("%s returned by %s", name, rec.BorrowerName)
		} else {
			a.Type = models.ActivityCardLent
			a.Date = rec.LendDate
			a.Description = fmt.Sprintf("Lent %s to %s", name, rec.BorrowerName)
		}
		activities = append(activities, a)
	}
	sort.SliceStable(activities, func(i, j int) bool { return activities[i].Date.After(activities[j].Date) })
	if len(activities) > limit {
		activities = activities[:limit]
	}
	return activities
}

func (s *QueryService) Card(ctx context.Context, id uint) (*models.Card, error) {
	return s.cards.Get(ctx, id)
}

func (s *QueryService) Cards(ctx context.Context, filter models.CardFilter) ([]models.Card, error) {
	return s.cards.Filter(ctx, filter)
}

func (s *QueryService) PriceHistory(ctx context.Context, cardID uint) ([]models.PriceHistory, error) {
	if cardID == 0 {
		return []models.PriceHistory{}, nil
	}
	return s.history.ListForCard(ctx, cardID)
}

func (s *QueryService) Wishlist(ctx context.Context) ([]models.WishlistItem, error) {
	return s.wishlist.List(ctx)
}

func (s *QueryService) Borrowers(ctx context.Context) ([]models.Borrower, error) {
	return s.borrowers.List(ctx)
}
