package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
)

const charizardJSON = `{
	"id": "base1-4",
	"name": "Charizard",
	"number": "4",
	"hp": "120",
	"types": ["Fire"],
	"artist": "Mitsuhiro Arita",
	"set": {"id": "base1", "name": "Base", "series": "Base", "releaseDate": "1999/01/09"},
	"images": {"small": "https://images.example/base1/4.png", "large": "https://images.example/base1/4_hires.png"},
	"tcgplayer": {"prices": {"unlimitedHolofoil": {"market": 399.99}, "holofoil": {"mid": 250, "market": 350.5}}}
}`

func newTestCatalogServer(t *testing.T, handler http.HandlerFunc) (*PokemonTCGService, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewPokemonTCGService(srv.URL, "secret", 5*time.Second, 0), &calls
}

func TestPokemonTCGGetCard(t *testing.T) {
	svc, _ := newTestCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("X-Api-Key = %q, want secret", got)
		}
		if r.URL.Path != "/cards/base1-4" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"data": %s}`, charizardJSON)
	})
	ctx := context.Background()

	card, err := svc.GetCard(ctx, "base1-4")
	if err != nil {
		t.Fatalf("GetCard() error = %v", err)
	}
	if card.Name != "Charizard" || card.SetName != "Base" || card.SetNumber != "4" || card.HP != "120" {
		t.Errorf("card = %+v", card)
	}
	if card.Rarity != "Common" {
		t.Errorf("Rarity = %q, want Common for a missing rarity", card.Rarity)
	}
	if card.ImageURL != "https://images.example/base1/4_hires.png" {
		t.Errorf("ImageURL = %q, want the large image", card.ImageURL)
	}
	if card.MarketPrice == nil || *card.MarketPrice != 350.5 {
		t.Errorf("MarketPrice = %v, want holofoil market 350.5", card.MarketPrice)
	}

	missing, err := svc.GetCard(ctx, "nope-1")
	if err != nil || missing != nil {
		t.Errorf("GetCard(unknown) = %v, %v, want nil, nil", missing, err)
	}
}

func TestPokemonTCGSearchQuery(t *testing.T) {
	var query string
	svc, _ := newTestCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		if r.URL.Query().Get("orderBy") != "set.releaseDate" {
			t.Errorf("orderBy = %q", r.URL.Query().Get("orderBy"))
		}
		fmt.Fprintf(w, `{"data": [%s], "totalCount": 1}`, charizardJSON)
	})

	cards, err := svc.SearchCards(context.Background(), "Chari")
	if err != nil {
		t.Fatalf("SearchCards() error = %v", err)
	}
	if len(cards) != 1 || cards[0].TCGID != "base1-4" {
		t.Errorf("SearchCards() = %+v", cards)
	}
	if query != "name:chari*" {
		t.Errorf("q = %q, want name:chari*", query)
	}

	if _, err := svc.SearchCards(context.Background(), "Mr Mime"); err != nil {
		t.Fatalf("SearchCards() error = %v", err)
	}
	if query != `name:"mr mime*"` {
		t.Errorf("q = %q, want quoted phrase", query)
	}
}

func TestPokemonTCGErrors(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusTeapot} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			svc, _ := newTestCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			})
			_, err := svc.SearchCards(context.Background(), "pikachu")
			if !apperror.IsExternal(err) {
				t.Errorf("SearchCards() error = %v, want external service error", err)
			}
		})
	}

	svc, _ := newTestCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	})
	if _, err := svc.GetCard(context.Background(), "base1-4"); !apperror.IsExternal(err) {
		t.Errorf("GetCard(bad body) error = %v, want external service error", err)
	}
}

func TestExtractMarketPrice(t *testing.T) {
	tests := []struct {
		name   string
		prices map[string]pokemonPriceSet
		want   float64
		ok     bool
	}{
		{"holofoil first", map[string]pokemonPriceSet{"normal": {Market: 1}, "holofoil": {Market: 5}}, 5, true},
		{"skips zero market", map[string]pokemonPriceSet{"holofoil": {Mid: 9}, "reverseHolofoil": {Market: 2}}, 2, true},
		{"mid fallback", map[string]pokemonPriceSet{"normal": {Mid: 0.75}, "unlimitedHolofoil": {Mid: 3}}, 0.75, true},
		{"unknown printings only", map[string]pokemonPriceSet{"shadowless": {Market: 100}}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractMarketPrice(&pokemonTCGPrice{Prices: tt.prices})
			if (got != nil) != tt.ok || (got != nil && *got != tt.want) {
				t.Errorf("extractMarketPrice() = %v, want %v (ok %v)", got, tt.want, tt.ok)
			}
		})
	}
	if extractMarketPrice(nil) != nil {
		t.Error("extractMarketPrice(nil) != nil")
	}
}

func TestCachedCatalog(t *testing.T) {
	svc, calls := newTestCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/cards/") {
			if r.URL.Path == "/cards/base1-4" {
				fmt.Fprintf(w, `{"data": %s}`, charizardJSON)
				return
			}
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"data": [%s]}`, charizardJSON)
	})
	catalog := NewCachedCatalog(svc, 16, time.Hour, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cards, err := catalog.SearchCards(ctx, "  Charizard ")
		if err != nil || len(cards) != 1 {
			t.Fatalf("SearchCards() = %v, %v", cards, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls after repeated search = %d, want 1", got)
	}

	short, err := catalog.SearchCards(ctx, "c")
	if err != nil || short == nil || len(short) != 0 {
		t.Errorf("SearchCards(short) = %#v, %v, want empty", short, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("short query reached upstream")
	}

	for i := 0; i < 2; i++ {
		if card, err := catalog.GetCard(ctx, "base1-4"); err != nil || card == nil {
			t.Fatalf("GetCard() = %v, %v", card, err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls after repeated GetCard = %d, want 2", got)
	}

	// Misses are not cached
	for i := 0; i < 2; i++ {
		if card, err := catalog.GetCard(ctx, "nope-1"); err != nil || card != nil {
			t.Fatalf("GetCard(unknown) = %v, %v", card, err)
		}
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("upstream calls after unknown ids = %d, want 4", got)
	}

	catalog.Purge()
	if _, err := catalog.SearchCards(ctx, "charizard"); err != nil {
		t.Fatalf("SearchCards() error = %v", err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("upstream calls after Purge = %d, want 5", got)
	}
}

func TestCachedCatalogWrapsFailures(t *testing.T) {
	svc, _ := newTestCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	catalog := NewCachedCatalog(svc, 4, time.Minute, time.Minute)
	if _, err := catalog.SearchCards(context.Background(), "pikachu"); !apperror.IsExternal(err) {
		t.Errorf("SearchCards() error = %v, want external service error", err)
	}
}
