package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

// EntityType names one exportable record type
type EntityType string

const (
	EntityCards     EntityType = "cards"
	EntityBorrowers EntityType = "borrowers"
	EntityLending   EntityType = "lending"
	EntityTrades    EntityType = "trades"
	EntityWishlist  EntityType = "wishlist"
)

// EntityTypes lists the types in the order a backup is restored: cards and
// borrowers before the lending records that reference them.
func EntityTypes() []EntityType {
	return []EntityType{EntityCards, EntityBorrowers, EntityLending, EntityTrades, EntityWishlist}
}

// ParseEntityType accepts a type name or its export file alias ("collection")
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cards", "card", "collection":
		return EntityCards, nil
	case "borrowers", "borrower":
		return EntityBorrowers, nil
	case "lending", "lendings":
		return EntityLending, nil
	case "trades", "trade":
		return EntityTrades, nil
	case "wishlist":
		return EntityWishlist, nil
	}
	return "", apperror.Validation("Type", fmt.Sprintf("unknown entity type %q", s))
}

// exportName is the word used in single-file export names
func (t EntityType) exportName() string {
	if t == EntityCards {
		return "collection"
	}
	return string(t)
}

const (
	csvMimeType = "text/csv;charset=utf-8"
	zipMimeType = "application/zip"

	isoDate = "2006-01-02"
	usDate  = "1/2/2006"
)

// ExportFile is the byte content of one export, ready to be saved
type ExportFile struct {
	Filename string
	MimeType string
	Data     []byte
	Counts   map[EntityType]int
}

// FileSink receives finished exports
type FileSink interface {
	Save(ctx context.Context, file *ExportFile) error
}

// DirectorySink saves exports as files in Dir
type DirectorySink struct {
	Dir string
}

func (d DirectorySink) Save(_ context.Context, file *ExportFile) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(d.Dir, filepath.Base(file.Filename))
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

type ProgressKind string

const (
	ProgressRow  ProgressKind = "row"
	ProgressFile ProgressKind = "file"
)

// Progress reports import advancement. Row events carry the row ordinal
// among importable rows and the card name; file events carry the archive
// member name and, once done, its status and count.
type Progress struct {
	Kind    ProgressKind `json:"kind"`
	Type    EntityType   `json:"type,omitempty"`
	Current int          `json:"current"`
	Total   int          `json:"total"`
	Name    string       `json:"name"`
	Status  string       `json:"status,omitempty"`
	Count   int          `json:"count,omitempty"`
}

type ProgressFunc func(Progress)

func (f ProgressFunc) report(p Progress) {
	if f != nil {
		f(p)
	}
}

// TransferOptions tunes the transfer pipeline
type TransferOptions struct {
	// RowDelay is waited between successive card rows that called the catalog
	RowDelay time.Duration
	// Location is used for human-readable dates in CSV files (default local time)
	Location *time.Location
}

// TransferService exports records to CSV and backup archives and imports
// them back, merging by natural key. Imports are not atomic as a whole:
// every row is committed on its own and failures are collected.
type TransferService struct {
	store     *database.Store
	catalog   CatalogProvider
	cards     *repository.CardRepository
	borrowers *repository.BorrowerRepository
	lending   *repository.LendingRepository
	trades    *repository.TradeRepository
	wishlist  *repository.WishlistRepository
	rowDelay  time.Duration
	loc       *time.Location
}

// NewTransferService creates the pipeline. catalog may be nil, in which case
// imported cards are never enriched.
func NewTransferService(store *database.Store, catalog CatalogProvider, opts TransferOptions) *TransferService {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &TransferService{
		store:     store,
		catalog:   catalog,
		cards:     repository.NewCardRepository(store),
		borrowers: repository.NewBorrowerRepository(store),
		lending:   repository.NewLendingRepository(store),
		trades:    repository.NewTradeRepository(store),
		wishlist:  repository.NewWishlistRepository(store),
		rowDelay:  opts.RowDelay,
		loc:       loc,
	}
}

func (s *TransferService) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(usDate)
}

var importDateLayouts = []string{
	usDate,
	"01/02/2006",
	isoDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseDate accepts export-style M/D/YYYY dates and ISO dates
func (s *TransferService) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range importDateLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

// stamp is the date part used in export file names
func (s *TransferService) stamp() string {
	return s.store.Now().Format(isoDate)
}
