package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

const (
	DefaultPokemonTCGBaseURL = "https://api.pokemontcg.io/v2"
	pokemonTCGService        = "pokemon tcg"
	searchPageSize           = 250
)

// pricePriority is the order in which printings are consulted for a price
var pricePriority = []string{
	"holofoil",
	"1stEditionHolofoil",
	"normal",
	"1stEditionNormal",
	"reverseHolofoil",
	"unlimitedHolofoil",
}

// PokemonTCGService queries the Pokemon TCG API. Requests are serialized
// through a limiter so that at least minDelay passes between two of them.
type PokemonTCGService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

func NewPokemonTCGService(baseURL, apiKey string, timeout, minDelay time.Duration) *PokemonTCGService {
	if baseURL == "" {
		baseURL = DefaultPokemonTCGBaseURL
	}
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &PokemonTCGService{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type pokemonSearchResponse struct {
	Data       []pokemonCard `json:"data"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Count      int           `json:"count"`
}

type pokemonCard struct {
	TCGPlayer   *pokemonTCGPrice      `json:"tcgplayer"`
	Set         pokemonSet            `json:"set"`
	Images      pokemonImages         `json:"images"`
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Number      string                `json:"number"`
	Rarity      string                `json:"rarity"`
	Supertype   string                `json:"supertype"`
	Subtypes    []string              `json:"subtypes"`
	HP          string                `json:"hp"`
	Types       []string              `json:"types"`
	EvolvesFrom string                `json:"evolvesFrom"`
	Artist      string                `json:"artist"`
	Attacks     []models.Attack       `json:"attacks"`
	Weaknesses  []models.TypeModifier `json:"weaknesses"`
	Resistances []models.TypeModifier `json:"resistances"`
	RetreatCost []string              `json:"retreatCost"`
}

type pokemonSet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Series      string `json:"series"`
	ReleaseDate string `json:"releaseDate"`
}

type pokemonImages struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

type pokemonTCGPrice struct {
	Prices    map[string]pokemonPriceSet `json:"prices"`
	URL       string                     `json:"url"`
	UpdatedAt string                     `json:"updatedAt"`
}

type pokemonPriceSet struct {
	Low    float64 `json:"low"`
	Mid    float64 `json:"mid"`
	High   float64 `json:"high"`
	Market float64 `json:"market"`
}

// SearchCards finds cards whose name starts with query, oldest sets first
func (s *PokemonTCGService) SearchCards(ctx context.Context, query string) ([]CatalogCard, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if strings.ContainsAny(term, " \t") {
		term = fmt.Sprintf("%q", term+"*")
	} else {
		term += "*"
	}
	params := url.Values{}
	params.Set("q", "name:"+term)
	params.Set("pageSize", fmt.Sprint(searchPageSize))
	params.Set("orderBy", "set.releaseDate")

	var searchResp pokemonSearchResponse
	found, err := s.get(ctx, "search", "/cards?"+params.Encode(), &searchResp)
	if err != nil || !found {
		return nil, err
	}

	cards := make([]CatalogCard, len(searchResp.Data))
	for i, pc := range searchResp.Data {
		cards[i] = convertToCatalogCard(pc)
	}
	return cards, nil
}

// GetCard fetches one card by catalog id. Unknown ids return nil, nil.
func (s *PokemonTCGService) GetCard(ctx context.Context, id string) (*CatalogCard, error) {
	var response struct {
		Data pokemonCard `json:"data"`
	}
	found, err := s.get(ctx, "card", "/cards/"+url.PathEscape(id), &response)
	if err != nil || !found {
		return nil, err
	}
	card := convertToCatalogCard(response.Data)
	return &card, nil
}

// get performs one throttled request and decodes the body into out.
// A 404 reports found=false without error.
func (s *PokemonTCGService) get(ctx context.Context, kind, path string, out any) (found bool, err error) {
	start := time.Now()
	defer func() {
		metrics.CatalogRequestDuration.Observe(time.Since(start).Seconds())
		metrics.CatalogRequestsTotal.WithLabelValues(kind, metrics.Result(err)).Inc()
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		return false, apperror.External(pokemonTCGService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return false, apperror.External(pokemonTCGService, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, apperror.External(pokemonTCGService, fmt.Errorf("unable to reach the catalog: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusForbidden:
		return false, apperror.External(pokemonTCGService, errors.New("API key rejected, check CATALOG_API_KEY"))
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, apperror.External(pokemonTCGService, errors.New("rate limit exceeded, wait a moment and try again"))
	case resp.StatusCode >= 500:
		return false, apperror.External(pokemonTCGService, fmt.Errorf("server error (%d), the service may be temporarily unavailable", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return false, apperror.External(pokemonTCGService, fmt.Errorf("API returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, apperror.External(pokemonTCGService, fmt.Errorf("failed to decode response: %w", err))
	}
	return true, nil
}

func convertToCatalogCard(pc pokemonCard) CatalogCard {
	rarity := pc.Rarity
	if rarity == "" {
		rarity = "Common"
	}
	imageURL := pc.Images.Large
	if imageURL == "" {
		imageURL = pc.Images.Small
	}
	return CatalogCard{
		TCGID:       pc.ID,
		Name:        pc.Name,
		SetName:     pc.Set.Name,
		SetID:       pc.Set.ID,
		SetSeries:   pc.Set.Series,
		SetNumber:   pc.Number,
		Rarity:      rarity,
		ImageSmall:  pc.Images.Small,
		ImageLarge:  pc.Images.Large,
		ImageURL:    imageURL,
		MarketPrice: extractMarketPrice(pc.TCGPlayer),
		ReleaseDate: pc.Set.ReleaseDate,
		Enrichment: models.Enrichment{
			Types:       pc.Types,
			HP:          pc.HP,
			Artist:      pc.Artist,
			EvolvesFrom: pc.EvolvesFrom,
			Attacks:     pc.Attacks,
			Weaknesses:  pc.Weaknesses,
			Resistances: pc.Resistances,
			RetreatCost: pc.RetreatCost,
			Supertype:   pc.Supertype,
			Subtypes:    pc.Subtypes,
		},
	}
}

// extractMarketPrice takes the market price of the first printing that has
// one, falling back to the first mid price. Nil when neither exists.
func extractMarketPrice(tp *pokemonTCGPrice) *float64 {
	if tp == nil || tp.Prices == nil {
		return nil
	}
	for _, printing := range pricePriority {
		if p, ok := tp.Prices[printing]; ok && p.Market > 0 {
			price := p.Market
			return &price
		}
	}
	for _, printing := range pricePriority {
		if p, ok := tp.Prices[printing]; ok && p.Mid > 0 {
			price := p.Mid
			return &price
		}
	}
	return nil
}
