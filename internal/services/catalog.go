package services

import (
	"context"

	"github.com/codyseavey/tcg-inventory/internal/models"
)

// CatalogProvider looks up card facts in an external catalog. Callers treat
// every failure as non-fatal.
type CatalogProvider interface {
	SearchCards(ctx context.Context, query string) ([]CatalogCard, error)
	// GetCard returns nil without error when the id is unknown
	GetCard(ctx context.Context, id string) (*CatalogCard, error)
}

// CatalogCard is one card as described by the catalog
type CatalogCard struct {
	TCGID       string   `json:"tcg_id"`
	Name        string   `json:"name"`
	SetName     string   `json:"set_name"`
	SetID       string   `json:"set_id"`
	SetSeries   string   `json:"set_series"`
	SetNumber   string   `json:"set_number"`
	Rarity      string   `json:"rarity"`
	ImageSmall  string   `json:"image_small"`
	ImageLarge  string   `json:"image_large"`
	ImageURL    string   `json:"image_url"`
	MarketPrice *float64 `json:"market_price"`
	ReleaseDate string   `json:"release_date"`
	models.Enrichment
}

// ToNewCard builds a collection entry from catalog facts
func (c *CatalogCard) ToNewCard(condition models.Condition, quantity int) models.NewCard {
	return models.NewCard{
		Name:        c.Name,
		SetName:     c.SetName,
		SetNumber:   c.SetNumber,
		Rarity:      c.Rarity,
		Condition:   condition,
		Quantity:    quantity,
		MarketPrice: c.MarketPrice,
		TCGID:       c.TCGID,
		ImageURL:    c.ImageURL,
		Enrichment:  c.Enrichment,
	}
}
