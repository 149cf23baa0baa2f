package services

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
)

const minSearchLength = 2

// CachedCatalog fronts a provider with expiring result caches. Concurrent
// identical lookups share one upstream request.
type CachedCatalog struct {
	provider CatalogProvider
	searches *expirable.LRU[string, []CatalogCard]
	cards    *expirable.LRU[string, *CatalogCard]
	group    singleflight.Group
}

func NewCachedCatalog(provider CatalogProvider, size int, searchTTL, cardTTL time.Duration) *CachedCatalog {
	return &CachedCatalog{
		provider: provider,
		searches: expirable.NewLRU[string, []CatalogCard](size, nil, searchTTL),
		cards:    expirable.NewLRU[string, *CatalogCard](size, nil, cardTTL),
	}
}

// SearchCards returns no results for queries shorter than two characters
func (c *CachedCatalog) SearchCards(ctx context.Context, query string) ([]CatalogCard, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(key)) < minSearchLength {
		return []CatalogCard{}, nil
	}
	if cached, ok := c.searches.Get(key); ok {
		metrics.CatalogCacheHits.WithLabelValues("search").Inc()
		return cached, nil
	}
	metrics.CatalogCacheMisses.WithLabelValues("search").Inc()

	v, err, _ := c.group.Do("search:"+key, func() (any, error) {
		cards, err := c.provider.SearchCards(ctx, key)
		if err != nil {
			return nil, err
		}
		if cards == nil {
			cards = []CatalogCard{}
		}
		c.searches.Add(key, cards)
		return cards, nil
	})
	if err != nil {
		return nil, apperror.External(pokemonTCGService, err)
	}
	return v.([]CatalogCard), nil
}

func (c *CachedCatalog) GetCard(ctx context.Context, id string) (*CatalogCard, error) {
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, nil
	}
	if cached, ok := c.cards.Get(key); ok {
		metrics.CatalogCacheHits.WithLabelValues("card").Inc()
		return cached, nil
	}
	metrics.CatalogCacheMisses.WithLabelValues("card").Inc()

	v, err, _ := c.group.Do("card:"+key, func() (any, error) {
		card, err := c.provider.GetCard(ctx, key)
		if err != nil {
			return nil, err
		}
		if card != nil {
			c.cards.Add(key, card)
		}
		return card, nil
	})
	if err != nil {
		return nil, apperror.External(pokemonTCGService, err)
	}
	return v.(*CatalogCard), nil
}

// Purge drops every cached result
func (c *CachedCatalog) Purge() {
	c.searches.Purge()
	c.cards.Purge()
}
