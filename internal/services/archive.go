package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/metrics"
)

// ErrNoCSVMembers is returned for archives without any CSV file
var ErrNoCSVMembers = errors.New("no CSV files found in the archive")

// ArchiveImportResult accumulates the outcome of every archive member.
// Errors holds one entry per failed member; row-level failures of members
// that were imported are kept apart in RowErrors.
type ArchiveImportResult struct {
	RunID         string                     `json:"run_id"`
	Counts        map[EntityType]int         `json:"counts"`
	Errors        []*apperror.ImportRowError `json:"errors"`
	RowErrors     []*apperror.ImportRowError `json:"row_errors"`
	Ignored       []string                   `json:"ignored,omitempty"`
	Success       bool                       `json:"success"`
	TotalImported int                        `json:"total_imported"`
}

type archiveMember struct {
	file *zip.File
	typ  EntityType
}

// InferEntityType guesses the entity type from a file name such as
// "cards-2024-01-31.csv". The export alias "collection" also maps to cards.
func InferEntityType(name string) (EntityType, bool) {
	base := strings.ToLower(path.Base(name))
	for _, typ := range EntityTypes() {
		if strings.Contains(base, string(typ)) {
			return typ, true
		}
	}
	if strings.Contains(base, EntityCards.exportName()) {
		return EntityCards, true
	}
	return "", false
}

func typeOrder(typ EntityType) int {
	for i, t := range EntityTypes() {
		if t == typ {
			return i
		}
	}
	return len(EntityTypes())
}

// ImportArchive restores a backup archive. Members are imported one after
// another in dependency order and a failing member never stops the rest.
// Only an unreadable archive or one without CSV members is an error.
func (s *TransferService) ImportArchive(ctx context.Context, data []byte, onProgress ProgressFunc) (*ArchiveImportResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive import failed: %w", err)
	}

	result := &ArchiveImportResult{
		RunID:     uuid.NewString(),
		Counts:    make(map[EntityType]int),
		Errors:    []*apperror.ImportRowError{},
		RowErrors: []*apperror.ImportRowError{},
	}

	var members []archiveMember
	csvFiles := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		csvFiles++
		typ, ok := InferEntityType(f.Name)
		if !ok {
			result.Ignored = append(result.Ignored, f.Name)
			metrics.ArchiveMembersTotal.WithLabelValues("ignored").Inc()
			continue
		}
		members = append(members, archiveMember{file: f, typ: typ})
	}
	if csvFiles == 0 {
		return nil, fmt.Errorf("archive import failed: %w", ErrNoCSVMembers)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return typeOrder(members[i].typ) < typeOrder(members[j].typ)
	})

	for i, m := range members {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		progress := Progress{Kind: ProgressFile, Type: m.typ, Current: i + 1, Total: len(members), Name: m.file.Name}
		progress.Status = "processing"
		onProgress.report(progress)

		imported, err := s.importMember(ctx, result.RunID, m, onProgress)
		if err != nil {
			log.Printf("Transfer: failed to import %s: %v", m.file.Name, err)
			metrics.ArchiveMembersTotal.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, &apperror.ImportRowError{File: m.file.Name, Message: err.Error()})
			progress.Status = "failed"
			onProgress.report(progress)
			continue
		}

		metrics.ArchiveMembersTotal.WithLabelValues("success").Inc()
		result.Counts[m.typ] += imported.Imported
		result.TotalImported += imported.Imported
		result.RowErrors = append(result.RowErrors, imported.Errors...)
		progress.Status = "completed"
		progress.Count = imported.Imported
		onProgress.report(progress)
	}

	result.Success = len(result.Errors) == 0
	log.Printf("Transfer: archive import %s finished: %d records from %d members, %d failed",
		result.RunID, result.TotalImported, len(members), len(result.Errors))
	return result, nil
}

func (s *TransferService) importMember(ctx context.Context, runID string, m archiveMember, onProgress ProgressFunc) (*ImportResult, error) {
	rc, err := m.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := readCSV(rc)
	if err != nil {
		return nil, err
	}
	return s.importRows(ctx, runID, m.file.Name, rows, m.typ, onProgress)
}
