package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

type fakeCatalog struct {
	mu       sync.Mutex
	cards    []CatalogCard
	searches []string
	lookups  []string
}

func (f *fakeCatalog) SearchCards(_ context.Context, query string) ([]CatalogCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	var out []CatalogCard
	for _, c := range f.cards {
		if strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(query)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetCard(_ context.Context, id string) (*CatalogCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	for i := range f.cards {
		if f.cards[i].TCGID == id {
			c := f.cards[i]
			return &c, nil
		}
	}
	return nil, nil
}

func newTestTransfer(t *testing.T, catalog CatalogProvider) (*TransferService, *database.Store, *testClock) {
	t.Helper()
	store, clock := newTestStore(t)
	return NewTransferService(store, catalog, TransferOptions{Location: time.UTC}), store, clock
}

func importString(t *testing.T, svc *TransferService, typ EntityType, data string) *ImportResult {
	t.Helper()
	result, err := svc.ImportCSV(context.Background(), strings.NewReader(data), typ, nil)
	if err != nil {
		t.Fatalf("ImportCSV(%s) error = %v", typ, err)
	}
	return result
}

type zipMember struct {
	name string
	data string
}

func buildZip(t *testing.T, members ...zipMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatalf("zip Create(%s) error = %v", m.name, err)
		}
		if _, err := w.Write([]byte(m.data)); err != nil {
			t.Fatalf("zip Write(%s) error = %v", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

func TestImportCardsMergesByNaturalKey(t *testing.T) {
	svc, store, _ := newTestTransfer(t, nil)
	existing := addCard(t, store, models.NewCard{
		Name: "Pikachu", SetName: "Base Set", SetNumber: "58",
		Condition: models.ConditionLightlyPlayed, MarketPrice: ptr(1.0),
	})

	result := importString(t, svc, EntityCards, "\ufeffName,Set,Number,Rarity,Condition,Quantity,Market Price\r\n"+
		"Pikachu,Base Set,58,Common,,2,\"$2.50\"\r\n"+
		"Bulbasaur,Base Set,44,Common,LP,,0.35\r\n"+
		",Base Set,1,,,,\r\n"+
		"Pikachu,Base Set,58,Common,mystery,1,0\r\n")

	if result.Imported != 3 || result.Merged != 2 || result.Skipped != 1 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	card := getCard(t, store, existing.ID)
	if card.Quantity != 4 {
		t.Errorf("Quantity = %d, want 4", card.Quantity)
	}
	if card.MarketPrice == nil || *card.MarketPrice != 2.5 {
		t.Errorf("MarketPrice = %v, want 2.5", card.MarketPrice)
	}
	if card.Condition != models.ConditionLightlyPlayed {
		t.Errorf("Condition = %s, want unchanged Lightly Played", card.Condition)
	}

	cards, err := repository.NewCardRepository(store).FindByName(context.Background(), "Bulbasaur")
	if err != nil || len(cards) != 1 {
		t.Fatalf("FindByName(Bulbasaur) = %v, %v", cards, err)
	}
	if cards[0].Quantity != 1 || cards[0].Condition != models.ConditionLightlyPlayed {
		t.Errorf("Bulbasaur = qty %d %s, want qty 1 Lightly Played", cards[0].Quantity, cards[0].Condition)
	}
}

type cardTuple struct {
	name, set, number, rarity string
	quantity                  int
	condition                 models.Condition
}

func cardTuples(t *testing.T, store *database.Store) []cardTuple {
	t.Helper()
	cards, err := repository.NewCardRepository(store).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	out := make([]cardTuple, len(cards))
	for i, c := range cards {
		out[i] = cardTuple{c.Name, c.SetName, c.SetNumber, c.Rarity, c.Quantity, c.Condition}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name+out[i].number < out[j].name+out[j].number })
	return out
}

func TestCardExportRoundTrip(t *testing.T) {
	src, srcStore, _ := newTestTransfer(t, nil)
	addCard(t, srcStore, models.NewCard{Name: "Charizard", SetName: "Base Set", SetNumber: "4", Rarity: "Rare Holo", Quantity: 1, MarketPrice: ptr(350.0)})
	addCard(t, srcStore, models.NewCard{Name: "Mr. Mime", SetName: "Jungle", SetNumber: "6", Rarity: "Rare", Condition: models.ConditionDamaged, Quantity: 3})
	addCard(t, srcStore, models.NewCard{Name: `Farfetch'd, "the duck"`, SetName: "Base Set", SetNumber: "27", Condition: models.ConditionMint, Quantity: 2, MarketPrice: ptr(0.25)})

	file, err := src.ExportCSV(context.Background(), EntityCards)
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if file.Filename != "pokemon-collection-2024-03-01.csv" {
		t.Errorf("Filename = %q", file.Filename)
	}
	if file.Counts[EntityCards] != 3 {
		t.Errorf("Counts = %v, want 3 cards", file.Counts)
	}

	dst, dstStore, _ := newTestTransfer(t, nil)
	result, err := dst.ImportCSV(context.Background(), bytes.NewReader(file.Data), EntityCards, nil)
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if result.Imported != 3 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	want, got := cardTuples(t, srcStore), cardTuples(t, dstStore)
	if len(got) != len(want) {
		t.Fatalf("imported %d cards, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("card %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBackupRestore(t *testing.T) {
	src, srcStore, clock := newTestTransfer(t, nil)
	ctx := context.Background()
	pikachu := addCard(t, srcStore, models.NewCard{Name: "Pikachu", SetName: "Base Set", SetNumber: "58", MarketPrice: ptr(2.0)})
	addCard(t, srcStore, models.NewCard{Name: "Bulbasaur", SetName: "Base Set", SetNumber: "44"})
	if _, err := NewLendingService(srcStore).LendCards(ctx, []uint{pikachu.ID},
		models.BorrowerInfo{Name: "Alice", Email: "alice@example.com"}, clock.Now().Add(7*24*time.Hour)); err != nil {
		t.Fatalf("LendCards() error = %v", err)
	}
	if err := repository.NewTradeRepository(srcStore).Create(ctx, &models.Trade{
		TraderName: "Bob", TradeDate: clock.Now(), Status: models.TradeCompleted,
		MyCardsValue: 3, TheirCardsValue: 4.5, Notes: "swap meet",
	}, nil); err != nil {
		t.Fatalf("trade Create() error = %v", err)
	}
	if _, err := repository.NewWishlistRepository(srcStore).Add(ctx, models.NewWishlistItem{CardName: "Mew", Priority: models.PriorityHigh}); err != nil {
		t.Fatalf("wishlist Add() error = %v", err)
	}

	backup, err := src.ExportBackup(ctx)
	if err != nil {
		t.Fatalf("ExportBackup() error = %v", err)
	}
	if backup.Filename != "pokemon-inventory-backup-2024-03-01.zip" {
		t.Errorf("Filename = %q", backup.Filename)
	}
	zr, err := zip.NewReader(bytes.NewReader(backup.Data), int64(len(backup.Data)))
	if err != nil {
		t.Fatalf("backup is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	wantNames := []string{
		"cards-2024-03-01.csv", "borrowers-2024-03-01.csv", "lending-2024-03-01.csv",
		"trades-2024-03-01.csv", "wishlist-2024-03-01.csv", "README.txt",
	}
	if strings.Join(names, " ") != strings.Join(wantNames, " ") {
		t.Errorf("members = %v, want %v", names, wantNames)
	}

	dst, dstStore, _ := newTestTransfer(t, nil)
	var files []string
	result, err := dst.ImportArchive(ctx, backup.Data, func(p Progress) {
		if p.Kind == ProgressFile && p.Status == "completed" {
			files = append(files, p.Name)
		}
	})
	if err != nil {
		t.Fatalf("ImportArchive() error = %v", err)
	}
	if !result.Success || len(result.Errors) != 0 || len(result.RowErrors) != 0 {
		t.Fatalf("result = %+v", result)
	}
	wantCounts := map[EntityType]int{EntityCards: 2, EntityBorrowers: 1, EntityLending: 1, EntityTrades: 1, EntityWishlist: 1}
	for typ, n := range wantCounts {
		if result.Counts[typ] != n {
			t.Errorf("Counts[%s] = %d, want %d", typ, result.Counts[typ], n)
		}
	}
	if result.TotalImported != 6 || len(files) != 5 {
		t.Errorf("TotalImported = %d, completed files = %v", result.TotalImported, files)
	}
	if len(result.Ignored) != 0 {
		t.Errorf("Ignored = %v, want none", result.Ignored)
	}

	restored, err := repository.NewCardRepository(dstStore).FindByName(ctx, "Pikachu")
	if err != nil || len(restored) != 1 {
		t.Fatalf("FindByName(Pikachu) = %v, %v", restored, err)
	}
	if restored[0].IsAvailable {
		t.Error("restored Pikachu is available, want lent")
	}
	borrower, err := repository.NewBorrowerRepository(dstStore).FindByName(ctx, "Alice")
	if err != nil || borrower == nil || borrower.Email != "alice@example.com" {
		t.Errorf("restored borrower = %+v, %v", borrower, err)
	}
	trades, err := repository.NewTradeRepository(dstStore).List(ctx)
	if err != nil || len(trades) != 1 || trades[0].TheirCardsValue != 4.5 || trades[0].Notes != "swap meet" {
		t.Errorf("restored trades = %+v, %v", trades, err)
	}
}

func TestImportArchiveMalformedMember(t *testing.T) {
	svc, store, _ := newTestTransfer(t, nil)
	data := buildZip(t,
		zipMember{"wishlist-2024-03-01.csv", "Card Name,Set Name,Priority\n\"Mew,Promo,high\n"},
		zipMember{"notes.csv", "Anything\nelse\n"},
		zipMember{"cards-2024-03-01.csv", "Name,Set,Number,Quantity\nOnix,Base Set,56,1\n"},
		zipMember{"README.txt", "hello"},
	)

	result, err := svc.ImportArchive(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("ImportArchive() error = %v", err)
	}
	if result.Success {
		t.Error("Success = true with a malformed member")
	}
	if len(result.Errors) != 1 || result.Errors[0].File != "wishlist-2024-03-01.csv" {
		t.Fatalf("Errors = %+v, want one wishlist error", result.Errors)
	}
	if result.Counts[EntityCards] != 1 || result.TotalImported != 1 {
		t.Errorf("Counts = %v, TotalImported = %d", result.Counts, result.TotalImported)
	}
	if len(result.Ignored) != 1 || result.Ignored[0] != "notes.csv" {
		t.Errorf("Ignored = %v, want [notes.csv]", result.Ignored)
	}
	if got := cardTuples(t, store); len(got) != 1 || got[0].name != "Onix" {
		t.Errorf("cards = %+v, want Onix", got)
	}
}

func TestImportArchiveRejectsUnreadable(t *testing.T) {
	svc, _, _ := newTestTransfer(t, nil)
	ctx := context.Background()

	if _, err := svc.ImportArchive(ctx, []byte("not a zip"), nil); err == nil {
		t.Error("ImportArchive(corrupt) error = nil")
	}
	_, err := svc.ImportArchive(ctx, buildZip(t, zipMember{"README.txt", "nothing here"}), nil)
	if !errors.Is(err, ErrNoCSVMembers) {
		t.Errorf("ImportArchive(no csv) error = %v, want ErrNoCSVMembers", err)
	}
}

func TestImportLendingRows(t *testing.T) {
	svc, store, _ := newTestTransfer(t, nil)
	ctx := context.Background()
	charizard := addCard(t, store, models.NewCard{Name: "Charizard"})
	blastoise := addCard(t, store, models.NewCard{Name: "Blastoise"})

	result := importString(t, svc, EntityLending, "Card Name,Borrower,Email,Lend Date,Expected Return,Actual Return,Status\n"+
		"Charizard,Alice,alice@example.com,2/20/2024,2/27/2024,,active\n"+
		"Charizard,Bob,,2/21/2024,2/28/2024,,active\n"+
		"Missingno,Alice,,2/20/2024,2/27/2024,,active\n"+
		"Blastoise,Carol,,2024-01-05,2024-01-12,,returned\n"+
		"Blastoise,,,2/20/2024,2/27/2024,,active\n"+
		"Blastoise,Dana,,2/20/2024,2/27/2024,,lost\n"+
		"Blastoise,Erin,,yesterday,,,active\n")

	// Rows without a known card or a borrower are skipped, not errors
	if result.Imported != 2 || result.Skipped != 2 || len(result.Errors) != 3 {
		t.Fatalf("result = %+v", result)
	}
	rows := make([]int, len(result.Errors))
	for i, e := range result.Errors {
		rows[i] = e.Row
	}
	if want := []int{2, 6, 7}; len(rows) != 3 || rows[0] != want[0] || rows[1] != want[1] || rows[2] != want[2] {
		t.Errorf("error rows = %v, want %v", rows, want)
	}

	if getCard(t, store, charizard.ID).IsAvailable {
		t.Error("Charizard available after an active lending import")
	}
	if !getCard(t, store, blastoise.ID).IsAvailable {
		t.Error("Blastoise lent after a returned lending import")
	}

	recs, err := repository.NewLendingRepository(store).ListByCard(ctx, blastoise.ID)
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListByCard(Blastoise) = %v, %v", recs, err)
	}
	wantReturn := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	if recs[0].ActualReturnDate == nil || !recs[0].ActualReturnDate.Equal(wantReturn) {
		t.Errorf("ActualReturnDate = %v, want %v", recs[0].ActualReturnDate, wantReturn)
	}
}

func TestImportWishlistAndBorrowersSkipExisting(t *testing.T) {
	svc, store, _ := newTestTransfer(t, nil)

	first := importString(t, svc, EntityWishlist, "Card Name,Set Name,Priority\nMew,Promo,High\nCelebi,,urgent\n")
	if first.Imported != 2 {
		t.Fatalf("first wishlist import = %+v", first)
	}
	again := importString(t, svc, EntityWishlist, "Card Name,Set Name,Priority\nMew,Promo,High\n")
	if again.Imported != 0 || again.Skipped != 1 {
		t.Errorf("repeat wishlist import = %+v, want 1 skipped", again)
	}

	// Contact details from older exports are kept as written
	borrowers := importString(t, svc, EntityBorrowers, "Name,Email,Phone\nAlice,alice@example.com,\nAlice,,\nBob,text me,\n")
	if borrowers.Imported != 2 || borrowers.Skipped != 1 || len(borrowers.Errors) != 0 {
		t.Errorf("borrower import = %+v", borrowers)
	}
	bob, err := repository.NewBorrowerRepository(store).FindByName(context.Background(), "Bob")
	if err != nil || bob == nil || bob.Email != "text me" {
		t.Errorf("FindByName(Bob) = %+v, %v", bob, err)
	}
}

func TestImportTrades(t *testing.T) {
	svc, store, _ := newTestTransfer(t, nil)
	result := importString(t, svc, EntityTrades, "Date,Trader,My Cards Value,Their Cards Value,Balance,Status,Notes\n"+
		"3/1/2024,Bob,10.00,12.50,2.50,,first\n"+
		"3/2/2024,Carol,1,1,0,Pending,\n"+
		"3/3/2024,Dana,1,1,0,stolen,\n")
	if result.Imported != 2 || len(result.Errors) != 1 || result.Errors[0].Row != 3 {
		t.Fatalf("result = %+v", result)
	}
	trades, err := repository.NewTradeRepository(store).ListByTrader(context.Background(), "Bob")
	if err != nil || len(trades) != 1 {
		t.Fatalf("ListByTrader(Bob) = %v, %v", trades, err)
	}
	if trades[0].Status != models.TradeCompleted || trades[0].Balance() != 2.5 {
		t.Errorf("Bob trade = %+v", trades[0])
	}
}

func TestImportCSVRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestTransfer(t, nil)
	ctx := context.Background()

	if _, err := svc.ImportCSV(ctx, strings.NewReader(""), EntityCards, nil); err == nil {
		t.Error("ImportCSV(empty) error = nil")
	}
	if _, err := svc.ImportCSV(ctx, strings.NewReader("Name\n\"broken\n"), EntityCards, nil); err == nil {
		t.Error("ImportCSV(unterminated quote) error = nil")
	}
	_, err := svc.ImportCSV(ctx, strings.NewReader("Name\nPikachu\n"), EntityType("decks"), nil)
	if !apperror.IsValidation(err) {
		t.Errorf("ImportCSV(unknown type) error = %v, want validation error", err)
	}
}

func TestImportEnrichesNewCardsFromCatalog(t *testing.T) {
	catalog := &fakeCatalog{cards: []CatalogCard{
		{TCGID: "base1-4", Name: "Charizard", SetName: "Base", ImageLarge: "https://images.example/base1-4_hires.png",
			Enrichment: models.Enrichment{HP: "120", Artist: "Mitsuhiro Arita"}},
		{TCGID: "base2-4", Name: "Charizard", SetName: "Base Set 2", ImageURL: "https://images.example/base2-4.png"},
	}}
	svc, store, _ := newTestTransfer(t, catalog)
	addCard(t, store, models.NewCard{Name: "Onix", SetName: "Base"})

	var progress []Progress
	result, err := svc.ImportCSV(context.Background(), strings.NewReader("Name,Set,Image URL\n"+
		"Charizard,Base Set 2,\n"+
		"Charizard,Base,\n"+
		"Onix,Base,\n"+
		"Mewtwo,Base,https://images.example/mewtwo.png\n"), EntityCards, func(p Progress) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if result.Imported != 4 || result.Merged != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(catalog.searches) != 2 {
		t.Errorf("catalog searched %v, want only the two new cards without images", catalog.searches)
	}
	if len(progress) != 4 || progress[3].Current != 4 || progress[3].Total != 4 || progress[3].Name != "Mewtwo" {
		t.Errorf("progress = %+v", progress)
	}

	cards, err := repository.NewCardRepository(store).FindByName(context.Background(), "Charizard")
	if err != nil || len(cards) != 2 {
		t.Fatalf("FindByName(Charizard) = %v, %v", cards, err)
	}
	bySet := map[string]models.Card{}
	for _, c := range cards {
		bySet[c.SetName] = c
	}
	if c := bySet["Base"]; c.TCGID != "base1-4" || c.HP != "120" || c.ImageURL != "https://images.example/base1-4_hires.png" {
		t.Errorf("Base Charizard = %+v", c)
	}
	if c := bySet["Base Set 2"]; c.TCGID != "base2-4" || c.ImageURL != "https://images.example/base2-4.png" {
		t.Errorf("Base Set 2 Charizard = %+v", c)
	}
}

func TestParseDate(t *testing.T) {
	svc, _, _ := newTestTransfer(t, nil)
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"3/5/2024", "03/05/2024", "2024-03-05", "2024-03-05T00:00:00Z", " 2024-03-05 00:00:00 "} {
		got, err := svc.parseDate(in)
		if err != nil {
			t.Errorf("parseDate(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "tomorrow", "13/45/2024"} {
		if _, err := svc.parseDate(in); err == nil {
			t.Errorf("parseDate(%q) error = nil", in)
		}
	}
}

func TestInferEntityType(t *testing.T) {
	tests := []struct {
		name string
		want EntityType
		ok   bool
	}{
		{"cards-2024-03-01.csv", EntityCards, true},
		{"backup/Borrowers.csv", EntityBorrowers, true},
		{"lending-2024-03-01.csv", EntityLending, true},
		{"my-trades.csv", EntityTrades, true},
		{"wishlist.csv", EntityWishlist, true},
		{"pokemon-collection-2024-03-01.csv", EntityCards, true},
		{"notes.csv", "", false},
	}
	for _, tt := range tests {
		got, ok := InferEntityType(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("InferEntityType(%q) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"$1,234.50", 1234.5, true},
		{"", 0, false},
		{"-3", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseMoney(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseMoney(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
