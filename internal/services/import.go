package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

// ImportResult summarizes one CSV import. Imported counts created and
// merged rows; Skipped counts rows without their key column or whose
// natural key already exists (borrowers, wishlist) or whose card or
// borrower is missing (lending).
type ImportResult struct {
	RunID    string                     `json:"run_id"`
	Type     EntityType                 `json:"type"`
	Imported int                        `json:"imported"`
	Merged   int                        `json:"merged"`
	Skipped  int                        `json:"skipped"`
	Errors   []*apperror.ImportRowError `json:"errors"`
}

type rowOutcome int

const (
	rowCreated rowOutcome = iota
	rowMerged
	rowSkipped
)

func (o rowOutcome) String() string {
	switch o {
	case rowCreated:
		return "created"
	case rowMerged:
		return "merged"
	default:
		return "skipped"
	}
}

// csvRow gives header-based access to one record
type csvRow struct {
	index  map[string]int
	fields []string
}

func (r csvRow) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// readCSV parses the whole file up front, so a malformed file fails before
// any row is imported.
func readCSV(r io.Reader) ([]csvRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("invalid csv: missing header row")
	}
	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup && name != "" {
			index[name] = i
		}
	}
	if len(index) == 0 {
		return nil, errors.New("invalid csv: missing header row")
	}

	rows := make([]csvRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		rows = append(rows, csvRow{index: index, fields: rec})
	}
	return rows, nil
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ImportCSV imports every row of a single-type CSV file. Each row is
// committed on its own; row failures are collected in the result. Only an
// unreadable file or an unknown type is returned as an error.
func (s *TransferService) ImportCSV(ctx context.Context, r io.Reader, typ EntityType, onProgress ProgressFunc) (*ImportResult, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return s.importRows(ctx, uuid.NewString(), "", rows, typ, onProgress)
}

func (s *TransferService) importRows(ctx context.Context, runID, file string, rows []csvRow, typ EntityType, onProgress ProgressFunc) (*ImportResult, error) {
	var importRow func(ctx context.Context, row csvRow) (rowOutcome, error)
	keyColumn := "Name"
	switch typ {
	case EntityCards:
		importRow = s.importCardRow
	case EntityBorrowers:
		importRow = s.importBorrowerRow
	case EntityLending:
		importRow = s.importLendingRow
		keyColumn = "Card Name"
	case EntityTrades:
		importRow = s.importTradeRow
		keyColumn = "Trader"
	case EntityWishlist:
		importRow = s.importWishlistRow
		keyColumn = "Card Name"
	default:
		return nil, apperror.Validation("Type", fmt.Sprintf("unknown entity type %q", typ))
	}

	result := &ImportResult{RunID: runID, Type: typ, Errors: []*apperror.ImportRowError{}}
	total := 0
	for _, row := range rows {
		if row.get(keyColumn) != "" {
			total++
		}
	}

	current := 0
	apiBacked := false
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if row.get(keyColumn) == "" {
			result.Skipped++
			metrics.ImportRowsTotal.WithLabelValues(string(typ), rowSkipped.String()).Inc()
			continue
		}
		current++
		if typ == EntityCards {
			onProgress.report(Progress{Kind: ProgressRow, Type: typ, Current: current, Total: total, Name: row.get("Name")})
			if apiBacked && s.needsEnrichment(row) {
				if err := sleepCtx(ctx, s.rowDelay); err != nil {
					return result, err
				}
			}
			apiBacked = s.needsEnrichment(row)
		}

		outcome, err := importRow(ctx, row)
		if err != nil {
			metrics.ImportRowsTotal.WithLabelValues(string(typ), "error").Inc()
			result.Errors = append(result.Errors, &apperror.ImportRowError{File: file, Row: i + 1, Message: err.Error()})
			continue
		}
		metrics.ImportRowsTotal.WithLabelValues(string(typ), outcome.String()).Inc()
		switch outcome {
		case rowCreated:
			result.Imported++
		case rowMerged:
			result.Imported++
			result.Merged++
		default:
			result.Skipped++
		}
	}

	log.Printf("Transfer: imported %d %s (%d merged, %d skipped, %d errors)",
		result.Imported, typ, result.Merged, result.Skipped, len(result.Errors))
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseQuantity returns the row quantity, 1 when blank or not positive
func parseQuantity(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// parseMoney accepts plain numbers and "$1,234.50" style values
func parseMoney(v string) (float64, bool) {
	v = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

func (s *TransferService) needsEnrichment(row csvRow) bool {
	return s.catalog != nil && row.get("Image URL") == ""
}

var cardImportScope = []database.Collection{database.Cards, database.PriceHistory}

func (s *TransferService) importCardRow(ctx context.Context, row csvRow) (rowOutcome, error) {
	in := models.NewCard{
		Name:      row.get("Name"),
		SetName:   row.get("Set"),
		SetNumber: row.get("Number"),
		Rarity:    row.get("Rarity"),
		Quantity:  parseQuantity(row.get("Quantity")),
		TCGID:     row.get("TCG ID"),
		ImageURL:  row.get("Image URL"),
	}
	condition, knownCondition := models.ParseCondition(row.get("Condition"))
	in.Condition = models.ConditionNearMint
	if knownCondition {
		in.Condition = condition
	}
	price, hasPrice := parseMoney(row.get("Market Price"))
	if hasPrice {
		in.MarketPrice = &price
	}

	// Catalog lookups happen outside the row transaction so the writer is
	// not held while waiting on the network.
	existing, err := s.cards.FindByNaturalKey(ctx, in.Name, in.SetName, in.SetNumber)
	if err != nil {
		return 0, err
	}
	if existing == nil && s.needsEnrichment(row) {
		s.enrich(ctx, &in)
	}

	outcome := rowCreated
	err = s.store.Transaction(ctx, cardImportScope, func(tx *gorm.DB) error {
		cards := s.cards.With(tx)
		current, err := cards.FindByNaturalKey(ctx, in.Name, in.SetName, in.SetNumber)
		if err != nil {
			return err
		}
		if current == nil {
			_, err := cards.Add(ctx, in)
			return err
		}

		outcome = rowMerged
		quantity := current.Quantity + in.Quantity
		patch := models.CardPatch{Quantity: &quantity}
		if hasPrice && price > 0 {
			patch.MarketPrice = &price
		}
		if knownCondition {
			patch.Condition = &condition
		}
		_, err = cards.Update(ctx, current.ID, patch)
		return err
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// enrich fills image, catalog facts and TCG id from the catalog. Lookup
// failures leave the card as parsed.
func (s *TransferService) enrich(ctx context.Context, in *models.NewCard) {
	var match *CatalogCard
	if in.TCGID != "" {
		card, err := s.catalog.GetCard(ctx, in.TCGID)
		if err != nil {
			log.Printf("Transfer: catalog lookup for %s failed: %v", in.TCGID, err)
		}
		match = card
	}
	if match == nil {
		results, err := s.catalog.SearchCards(ctx, in.Name)
		if err != nil {
			log.Printf("Transfer: catalog search for %q failed: %v", in.Name, err)
			return
		}
		match = bestMatch(results, in.Name, in.SetName)
	}
	if match == nil {
		return
	}

	in.ImageURL = match.ImageURL
	if in.ImageURL == "" {
		in.ImageURL = match.ImageLarge
	}
	if in.ImageURL == "" {
		in.ImageURL = match.ImageSmall
	}
	in.Enrichment = match.Enrichment
	if in.TCGID == "" {
		in.TCGID = match.TCGID
	}
}

// bestMatch prefers an exact name in the same set, then the first result
func bestMatch(results []CatalogCard, name, setName string) *CatalogCard {
	for i := range results {
		if results[i].Name == name && (setName == "" || results[i].SetName == setName) {
			return &results[i]
		}
	}
	if len(results) > 0 {
		return &results[0]
	}
	return nil
}

var borrowerImportScope = []database.Collection{database.Borrowers}

func (s *TransferService) importBorrowerRow(ctx context.Context, row csvRow) (rowOutcome, error) {
	info := models.BorrowerInfo{Name: row.get("Name"), Email: row.get("Email"), Phone: row.get("Phone")}
	outcome := rowSkipped
	err := s.store.Transaction(ctx, borrowerImportScope, func(tx *gorm.DB) error {
		_, created, err := s.borrowers.With(tx).FindOrCreate(ctx, info)
		if created {
			outcome = rowCreated
		}
		return err
	})
	return outcome, err
}

var lendingImportScope = []database.Collection{database.Cards, database.Borrowers, database.Lending}

func (s *TransferService) importLendingRow(ctx context.Context, row csvRow) (rowOutcome, error) {
	borrowerName := row.get("Borrower")
	if borrowerName == "" {
		return rowSkipped, nil
	}

	status := models.LendingActive
	switch strings.ToLower(row.get("Status")) {
	case "", string(models.LendingActive):
	case string(models.LendingReturned):
		status = models.LendingReturned
	default:
		return 0, apperror.Validation("Status", fmt.Sprintf("unknown lending status %q", row.get("Status")))
	}

	lendDate := s.store.Now()
	if v := row.get("Lend Date"); v != "" {
		t, err := s.parseDate(v)
		if err != nil {
			return 0, apperror.Validation("Lend Date", err.Error())
		}
		lendDate = t
	}
	expected := lendDate
	if v := row.get("Expected Return"); v != "" {
		t, err := s.parseDate(v)
		if err != nil {
			return 0, apperror.Validation("Expected Return", err.Error())
		}
		expected = t
	}
	var actual *time.Time
	if v := row.get("Actual Return"); v != "" {
		t, err := s.parseDate(v)
		if err != nil {
			return 0, apperror.Validation("Actual Return", err.Error())
		}
		actual = &t
	}
	if status == models.LendingReturned && actual == nil {
		actual = &expected
	}
	if status == models.LendingActive {
		actual = nil
	}

	outcome := rowSkipped
	err := s.store.Transaction(ctx, lendingImportScope, func(tx *gorm.DB) error {
		cards := s.cards.With(tx)
		lending := s.lending.With(tx)

		matches, err := cards.FindByName(ctx, row.get("Card Name"))
		if err != nil || len(matches) == 0 {
			return err
		}
		card := matches[0]

		if status == models.LendingActive {
			active, err := lending.ActiveForCard(ctx, card.ID)
			if err != nil {
				return err
			}
			if active != nil {
				return apperror.Conflict("card %q already has an active lending", card.Name)
			}
		}

		borrower, _, err := s.borrowers.With(tx).FindOrCreate(ctx, models.BorrowerInfo{
			Name:  borrowerName,
			Email: row.get("Email"),
			Phone: row.get("Phone"),
		})
		if err != nil {
			return err
		}

		rec := models.LendingRecord{
			CardID:             card.ID,
			BorrowerID:         borrower.ID,
			BorrowerName:       borrower.Name,
			LendDate:           lendDate,
			ExpectedReturnDate: expected,
			ActualReturnDate:   actual,
			Status:             status,
		}
		if err := lending.Create(ctx, &rec); err != nil {
			return err
		}
		if status == models.LendingActive {
			if err := cards.MarkLent(ctx, card.ID, borrower.ID); err != nil {
				return err
			}
		}
		outcome = rowCreated
		return nil
	})
	return outcome, err
}

var tradeImportScope = []database.Collection{database.Trades}

func (s *TransferService) importTradeRow(ctx context.Context, row csvRow) (rowOutcome, error) {
	status := models.TradeCompleted
	if v := row.get("Status"); v != "" {
		status = models.TradeStatus(strings.ToLower(v))
		if !status.Valid() {
			return 0, apperror.Validation("Status", fmt.Sprintf("unknown trade status %q", v))
		}
	}
	date := s.store.Now()
	if v := row.get("Date"); v != "" {
		t, err := s.parseDate(v)
		if err != nil {
			return 0, apperror.Validation("Date", err.Error())
		}
		date = t
	}
	my, _ := parseMoney(row.get("My Cards Value"))
	their, _ := parseMoney(row.get("Their Cards Value"))

	trade := &models.Trade{
		TraderName:      row.get("Trader"),
		TradeDate:       date,
		Status:          status,
		MyCardsValue:    my,
		TheirCardsValue: their,
		Notes:           row.get("Notes"),
	}
	err := s.store.Transaction(ctx, tradeImportScope, func(tx *gorm.DB) error {
		return s.trades.With(tx).Create(ctx, trade, nil)
	})
	if err != nil {
		return 0, err
	}
	return rowCreated, nil
}

var wishlistImportScope = []database.Collection{database.Wishlist}

func (s *TransferService) importWishlistRow(ctx context.Context, row csvRow) (rowOutcome, error) {
	outcome := rowSkipped
	err := s.store.Transaction(ctx, wishlistImportScope, func(tx *gorm.DB) error {
		wishlist := s.wishlist.With(tx)
		existing, err := wishlist.FindByCardName(ctx, row.get("Card Name"))
		if err != nil || existing != nil {
			return err
		}
		_, err = wishlist.Add(ctx, models.NewWishlistItem{
			CardName: row.get("Card Name"),
			SetName:  row.get("Set Name"),
			Priority: models.ParsePriority(row.get("Priority")),
		})
		if err == nil {
			outcome = rowCreated
		}
		return err
	})
	return outcome, err
}
