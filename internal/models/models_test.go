package models

import (
	"errors"
	"testing"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		input    string
		expected Condition
		ok       bool
	}{
		{"Near Mint", ConditionNearMint, true},
		{"nm", ConditionNearMint, true},
		{" MINT ", ConditionMint, true},
		{"Light Played", ConditionLightlyPlayed, true},
		{"LP", ConditionLightlyPlayed, true},
		{"mp", ConditionModeratelyPlayed, true},
		{"Heavily Played", ConditionHeavilyPlayed, true},
		{"DMG", ConditionDamaged, true},
		{"", "", false},
		{"graded 10", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCondition(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("ParseCondition(%q) = %q, %v, want %q, %v", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
	for _, c := range AllConditions() {
		if !c.Valid() {
			t.Errorf("%q.Valid() = false", c)
		}
		if got, ok := ParseCondition(string(c)); !ok || got != c {
			t.Errorf("ParseCondition(%q) = %q, %v", c, got, ok)
		}
	}
	if Condition("Pristine").Valid() {
		t.Error(`Condition("Pristine").Valid() = true`)
	}
}

func TestWholeDays(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{23 * time.Hour, 0},
		{day, 1},
		{5*day + 12*time.Hour, 5},
		{-time.Hour, -1},
		{-day, -1},
		{-day - time.Minute, -2},
	}
	for _, tt := range tests {
		if got := WholeDays(tt.d); got != tt.want {
			t.Errorf("WholeDays(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestLendingOverdue(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	rec := LendingRecord{Status: LendingActive, ExpectedReturnDate: now}
	if rec.IsOverdue(now) {
		t.Error("lending due right now reported overdue")
	}
	if !rec.IsOverdue(now.Add(time.Second)) {
		t.Error("lending one second past due not overdue")
	}
	if got := rec.DaysOverdue(now.Add(3*24*time.Hour + time.Hour)); got != 3 {
		t.Errorf("DaysOverdue() = %d, want 3", got)
	}

	rec.Status = LendingReturned
	if rec.IsOverdue(now.Add(48 * time.Hour)) {
		t.Error("returned lending reported overdue")
	}
}

func TestParsePriority(t *testing.T) {
	tests := map[string]Priority{
		"high":   PriorityHigh,
		" LOW ":  PriorityLow,
		"Medium": PriorityMedium,
		"":       PriorityMedium,
		"asap":   PriorityMedium,
	}
	for in, want := range tests {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %q, want %q", in, got, want)
		}
	}
	if !(PriorityHigh.Rank() < PriorityMedium.Rank() && PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Error("priority ranks are not ordered high, medium, low")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input any
		field string
	}{
		{"valid card", NewCard{Name: "Pikachu"}, ""},
		{"missing name", NewCard{}, "Name"},
		{"negative price", NewCard{Name: "Pikachu", MarketPrice: ptr(-1.0)}, "MarketPrice"},
		{"bad image url", NewCard{Name: "Pikachu", ImageURL: "not a url"}, "ImageURL"},
		{"free-form contact", BorrowerInfo{Name: "Alice", Email: "ask at the shop"}, ""},
		{"blank borrower", BorrowerInfo{Name: "   "}, "Name"},
		{"blank trader", CreateTradeRequest{TraderName: " "}, "TraderName"},
		{"blank wishlist card", NewWishlistItem{CardName: "\t"}, "CardName"},
		{"blank card rename", CardPatch{Name: ptr(" ")}, "Name"},
		{"missing trader", CreateTradeRequest{}, "TraderName"},
		{"outgoing without card", CreateTradeRequest{TraderName: "Bob", MyCards: []OutgoingCard{{}}}, "MyCards[0].CardID"},
		{"incoming without name", CreateTradeRequest{TraderName: "Bob", TheirCards: []IncomingCard{{}}}, "TheirCards[0].Name"},
		{"incoming by id", CreateTradeRequest{TraderName: "Bob", TheirCards: []IncomingCard{{CardID: 3}}}, ""},
		{"bad priority", NewWishlistItem{CardName: "Mew", Priority: "urgent"}, "Priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verr *apperror.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q (%v)", verr.Field, tt.field, err)
			}
		})
	}
}

func TestTradeBalance(t *testing.T) {
	trade := Trade{MyCardsValue: 10, TheirCardsValue: 12.5}
	if got := trade.Balance(); got != 2.5 {
		t.Errorf("Balance() = %v, want 2.5", got)
	}
	if !TradePending.Valid() || TradeStatus("traded").Valid() {
		t.Error("TradeStatus.Valid() disagrees with the known statuses")
	}
}

func ptr[T any](v T) *T { return &v }
