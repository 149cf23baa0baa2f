package models

import (
	"strings"
	"time"
)

type Condition string

const (
	ConditionMint             Condition = "Mint"
	ConditionNearMint         Condition = "Near Mint"
	ConditionLightlyPlayed    Condition = "Lightly Played"
	ConditionModeratelyPlayed Condition = "Moderately Played"
	ConditionHeavilyPlayed    Condition = "Heavily Played"
	ConditionDamaged          Condition = "Damaged"
)

// AllConditions returns every valid card condition, best first
func AllConditions() []Condition {
	return []Condition{
		ConditionMint,
		ConditionNearMint,
		ConditionLightlyPlayed,
		ConditionModeratelyPlayed,
		ConditionHeavilyPlayed,
		ConditionDamaged,
	}
}

// Valid reports whether c is one of the known conditions
func (c Condition) Valid() bool {
	for _, known := range AllConditions() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCondition maps condition strings as found in CSV files and catalog
// data (full names or grading abbreviations) to a Condition.
// Returns false for empty or unknown values.
func ParseCondition(s string) (Condition, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mint", "m":
		return ConditionMint, true
	case "near mint", "nm":
		return ConditionNearMint, true
	case "lightly played", "light played", "lp":
		return ConditionLightlyPlayed, true
	case "moderately played", "mp":
		return ConditionModeratelyPlayed, true
	case "heavily played", "hp":
		return ConditionHeavilyPlayed, true
	case "damaged", "dmg":
		return ConditionDamaged, true
	default:
		return "", false
	}
}

// Attack is a catalog attack entry kept for display only
type Attack struct {
	Name                string   `json:"name"`
	Cost                []string `json:"cost,omitempty"`
	ConvertedEnergyCost int      `json:"convertedEnergyCost,omitempty"`
	Damage              string   `json:"damage,omitempty"`
	Text                string   `json:"text,omitempty"`
}

// TypeModifier is a weakness or resistance entry
type TypeModifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Enrichment holds optional catalog fields attached to a card. None of
// them take part in any invariant.
type Enrichment struct {
	Types       []string       `json:"types" gorm:"serializer:json;not null"`
	HP          string         `json:"hp"`
	Artist      string         `json:"artist"`
	EvolvesFrom string         `json:"evolves_from"`
	Attacks     []Attack       `json:"attacks" gorm:"serializer:json;not null"`
	Weaknesses  []TypeModifier `json:"weaknesses" gorm:"serializer:json;not null"`
	Resistances []TypeModifier `json:"resistances" gorm:"serializer:json;not null"`
	RetreatCost []string       `json:"retreat_cost" gorm:"serializer:json;not null"`
	Supertype   string         `json:"supertype"`
	Subtypes    []string       `json:"subtypes" gorm:"serializer:json;not null"`
}

// WithEmptyLists replaces nil list fields with empty lists so they are
// stored as "[]" like the column defaults.
func (e Enrichment) WithEmptyLists() Enrichment {
	if e.Types == nil {
		e.Types = []string{}
	}
	if e.Attacks == nil {
		e.Attacks = []Attack{}
	}
	if e.Weaknesses == nil {
		e.Weaknesses = []TypeModifier{}
	}
	if e.Resistances == nil {
		e.Resistances = []TypeModifier{}
	}
	if e.RetreatCost == nil {
		e.RetreatCost = []string{}
	}
	if e.Subtypes == nil {
		e.Subtypes = []string{}
	}
	return e
}

type Card struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"not null;index"`
	SetName     string    `json:"set_name" gorm:"index"`
	SetNumber   string    `json:"set_number" gorm:"index"`
	Rarity      string    `json:"rarity" gorm:"index"`
	Condition   Condition `json:"condition" gorm:"index"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	MarketPrice *float64  `json:"market_price"`
	TCGID       string    `json:"tcg_id" gorm:"column:tcg_id;index"`
	ImageURL    string    `json:"image_url"`
	IsAvailable bool      `json:"is_available" gorm:"index"`
	BorrowerID  *uint     `json:"borrower_id" gorm:"index"`
	Enrichment  `gorm:"embedded"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Card) TableName() string { return "cards" }

// Price returns the market price, treating an unknown price as zero
func (c *Card) Price() float64 {
	if c.MarketPrice == nil {
		return 0
	}
	return *c.MarketPrice
}

// NewCard is the input for adding a card to the collection
type NewCard struct {
	Name        string    `json:"name" validate:"required,notblank"`
	SetName     string    `json:"set_name"`
	SetNumber   string    `json:"set_number"`
	Rarity      string    `json:"rarity"`
	Condition   Condition `json:"condition"`
	Quantity    int       `json:"quantity" validate:"gte=0"`
	MarketPrice *float64  `json:"market_price" validate:"omitempty,gte=0"`
	TCGID       string    `json:"tcg_id"`
	ImageURL    string    `json:"image_url" validate:"omitempty,url"`
	Enrichment
}

// CardPatch carries a partial card update. Nil fields are left untouched.
type CardPatch struct {
	Name        *string     `json:"name" validate:"omitempty,notblank"`
	SetName     *string     `json:"set_name"`
	SetNumber   *string     `json:"set_number"`
	Rarity      *string     `json:"rarity"`
	Condition   *Condition  `json:"condition"`
	Quantity    *int        `json:"quantity" validate:"omitempty,gte=1"`
	MarketPrice *float64    `json:"market_price" validate:"omitempty,gte=0"`
	ClearPrice  bool        `json:"clear_price"` // sets the market price to unknown
	TCGID       *string     `json:"tcg_id"`
	ImageURL    *string     `json:"image_url"`
	Enrichment  *Enrichment `json:"enrichment"`
}

// CardFilter narrows a card listing. Zero values mean "any".
type CardFilter struct {
	SetName     string
	Rarity      string
	Condition   Condition
	IsAvailable *bool
	SearchTerm  string
}

// PriceHistory is an append-only log of observed market prices
type PriceHistory struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID      uint      `json:"card_id" gorm:"not null;index"`
	MarketPrice float64   `json:"market_price"`
	Timestamp   time.Time `json:"timestamp" gorm:"not null"`
}

func (PriceHistory) TableName() string { return "price_history" }
