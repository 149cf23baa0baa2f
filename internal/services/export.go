package services

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/metrics"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

var exportHeaders = map[EntityType][]string{
	EntityCards:     {"Name", "Set", "Number", "Rarity", "Condition", "Quantity", "Market Price", "Total Value", "Status", "TCG ID", "Image URL", "Date Added"},
	EntityLending:   {"Card Name", "Borrower", "Email", "Phone", "Lend Date", "Expected Return", "Actual Return", "Status", "Days Lent"},
	EntityTrades:    {"Date", "Trader", "My Cards Value", "Their Cards Value", "Balance", "Status", "Notes"},
	EntityBorrowers: {"Name", "Email", "Phone", "Date Added"},
	EntityWishlist:  {"Card Name", "Set Name", "Priority", "Date Added"},
}

// ExportCSV renders every record of one type as a CSV file
func (s *TransferService) ExportCSV(ctx context.Context, typ EntityType) (*ExportFile, error) {
	if _, ok := exportHeaders[typ]; !ok {
		return nil, fmt.Errorf("invalid export type %q", typ)
	}
	var rows [][]string
	err := s.store.View(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = s.exportRows(ctx, tx, typ)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", typ, err)
	}
	data, err := encodeCSV(exportHeaders[typ], rows)
	if err != nil {
		return nil, err
	}
	metrics.ExportsTotal.WithLabelValues(string(typ)).Inc()
	return &ExportFile{
		Filename: fmt.Sprintf("pokemon-%s-%s.csv", typ.exportName(), s.stamp()),
		MimeType: csvMimeType,
		Data:     data,
		Counts:   map[EntityType]int{typ: len(rows)},
	}, nil
}

// ExportBackup bundles one CSV per type and a README into a zip archive.
// All members are read from the same committed state.
func (s *TransferService) ExportBackup(ctx context.Context) (*ExportFile, error) {
	stamp := s.stamp()
	members := make(map[EntityType][]byte)
	counts := make(map[EntityType]int)

	err := s.store.View(ctx, func(tx *gorm.DB) error {
		for _, typ := range EntityTypes() {
			rows, err := s.exportRows(ctx, tx, typ)
			if err != nil {
				return fmt.Errorf("%s: %w", typ, err)
			}
			data, err := encodeCSV(exportHeaders[typ], rows)
			if err != nil {
				return err
			}
			members[typ] = data
			counts[typ] = len(rows)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	modified := s.store.Now()
	write := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	for _, typ := range EntityTypes() {
		if err := write(fmt.Sprintf("%s-%s.csv", typ, stamp), members[typ]); err != nil {
			return nil, fmt.Errorf("backup failed: %w", err)
		}
	}
	if err := write("README.txt", []byte(s.backupReadme(stamp, counts))); err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}

	metrics.ExportsTotal.WithLabelValues("backup").Inc()
	log.Printf("Transfer: backup created with %d cards, %d lending records, %d trades, %d borrowers, %d wishlist items",
		counts[EntityCards], counts[EntityLending], counts[EntityTrades], counts[EntityBorrowers], counts[EntityWishlist])
	return &ExportFile{
		Filename: fmt.Sprintf("pokemon-inventory-backup-%s.zip", stamp),
		MimeType: zipMimeType,
		Data:     buf.Bytes(),
		Counts:   counts,
	}, nil
}

func (s *TransferService) backupReadme(stamp string, counts map[EntityType]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pokemon Inventory Backup\n")
	fmt.Fprintf(&b, "Backup ID: %s\n", uuid.NewString())
	fmt.Fprintf(&b, "Created: %s\n\n", s.store.Now().In(s.loc).Format("1/2/2006, 3:04:05 PM"))
	fmt.Fprintf(&b, "This backup contains:\n")
	fmt.Fprintf(&b, "- cards-%s.csv: Your complete card collection (%d cards)\n", stamp, counts[EntityCards])
	fmt.Fprintf(&b, "- borrowers-%s.csv: Borrower information (%d borrowers)\n", stamp, counts[EntityBorrowers])
	fmt.Fprintf(&b, "- lending-%s.csv: All lending records (%d records)\n", stamp, counts[EntityLending])
	fmt.Fprintf(&b, "- trades-%s.csv: Trade history (%d trades)\n", stamp, counts[EntityTrades])
	fmt.Fprintf(&b, "- wishlist-%s.csv: Your wishlist (%d items)\n\n", stamp, counts[EntityWishlist])
	fmt.Fprintf(&b, "To restore this backup:\n")
	fmt.Fprintf(&b, "  inventory import pokemon-inventory-backup-%s.zip\n\n", stamp)
	fmt.Fprintf(&b, "Members are restored in the order listed above. Individual CSV files can\n")
	fmt.Fprintf(&b, "also be imported with: inventory import <file.csv> --type <type>\n\n")
	fmt.Fprintf(&b, "Note: imported cards without an image are looked up in the Pokemon TCG API.\n")
	fmt.Fprintf(&b, "Trades are restored without their individual cards.\n")
	return b.String()
}

func (s *TransferService) exportRows(ctx context.Context, tx *gorm.DB, typ EntityType) ([][]string, error) {
	switch typ {
	case EntityCards:
		return s.cardRows(ctx, tx)
	case EntityLending:
		return s.lendingRows(ctx, tx)
	case EntityTrades:
		return s.tradeRows(ctx, tx)
	case EntityBorrowers:
		return s.borrowerRows(ctx, tx)
	case EntityWishlist:
		return s.wishlistRows(ctx, tx)
	}
	return nil, fmt.Errorf("invalid export type %q", typ)
}

func (s *TransferService) cardRows(ctx context.Context, tx *gorm.DB) ([][]string, error) {
	cards, err := s.cards.With(tx).List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		price := ""
		if c.MarketPrice != nil {
			price = formatMoney(*c.MarketPrice)
		}
		status := "Available"
		if !c.IsAvailable {
			status = "Lent Out"
		}
		rows = append(rows, []string{
			c.Name,
			c.SetName,
			c.SetNumber,
			c.Rarity,
			string(c.Condition),
			strconv.Itoa(c.Quantity),
			price,
			lineValue(c.Price(), c.Quantity).String(),
			status,
			c.TCGID,
			c.ImageURL,
			s.formatDate(c.CreatedAt),
		})
	}
	return rows, nil
}

func (s *TransferService) lendingRows(ctx context.Context, tx *gorm.DB) ([][]string, error) {
	recs, err := s.lending.With(tx).List(ctx)
	if err != nil {
		return nil, err
	}
	cardIDs := make([]uint, 0, len(recs))
	borrowerIDs := make([]uint, 0, len(recs))
	for _, rec := range recs {
		cardIDs = append(cardIDs, rec.CardID)
		borrowerIDs = append(borrowerIDs, rec.BorrowerID)
	}
	cards, err := s.cards.With(tx).GetMany(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	borrowers, err := s.borrowers.With(tx).GetMany(ctx, borrowerIDs)
	if err != nil {
		return nil, err
	}

	now := s.store.Now()
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		cardName := "Unknown"
		if c := cards[rec.CardID]; c != nil {
			cardName = c.Name
		}
		var email, phone string
		if b := borrowers[rec.BorrowerID]; b != nil {
			email, phone = b.Email, b.Phone
		}
		actual := ""
		end := now
		if rec.ActualReturnDate != nil {
			actual = s.formatDate(*rec.ActualReturnDate)
			end = *rec.ActualReturnDate
		}
		rows = append(rows, []string{
			cardName,
			rec.BorrowerName,
			email,
			phone,
			s.formatDate(rec.LendDate),
			s.formatDate(rec.ExpectedReturnDate),
			actual,
			string(rec.Status),
			strconv.Itoa(models.WholeDays(end.Sub(rec.LendDate))),
		})
	}
	return rows, nil
}

func (s *TransferService) tradeRows(ctx context.Context, tx *gorm.DB) ([][]string, error) {
	trades, err := s.trades.With(tx).List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		my := decimal.NewFromFloat(t.MyCardsValue)
		their := decimal.NewFromFloat(t.TheirCardsValue)
		rows = append(rows, []string{
			s.formatDate(t.TradeDate),
			t.TraderName,
			my.String(),
			their.String(),
			their.Sub(my).String(),
			string(t.Status),
			t.Notes,
		})
	}
	return rows, nil
}

func (s *TransferService) borrowerRows(ctx context.Context, tx *gorm.DB) ([][]string, error) {
	borrowers, err := s.borrowers.With(tx).List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(borrowers))
	for _, b := range borrowers {
		rows = append(rows, []string{b.Name, b.Email, b.Phone, s.formatDate(b.CreatedAt)})
	}
	return rows, nil
}

func (s *TransferService) wishlistRows(ctx context.Context, tx *gorm.DB) ([][]string, error) {
	items, err := s.wishlist.With(tx).List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		priority := item.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
		rows = append(rows, []string{item.CardName, item.SetName, string(priority), s.formatDate(item.CreatedAt)})
	}
	return rows, nil
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
