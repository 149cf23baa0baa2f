package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-inventory/internal/services"
)

var (
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export records to CSV or a full backup archive",
	}
	exportCSVCmd = &cobra.Command{
		Use:   "csv [cards|borrowers|lending|trades|wishlist]",
		Short: "Export one record type as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runExportCSV),
	}
	exportBackupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Export everything as a zip archive",
		Args:  cobra.NoArgs,
		RunE:  withApp(runExportBackup),
	}
	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Import a CSV file or a backup archive",
		Long: `Import a CSV export or a backup archive. Rows that match an existing
record are merged; every row is saved on its own, so a failing row does not
undo the rows before it.

The type of a CSV file is guessed from its name unless --type is given.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(runImport),
	}

	exportDir  string
	importType string
	quiet      bool
)

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportDir, "out", "o", ".", "directory the export is written to")
	exportCmd.AddCommand(exportCSVCmd, exportBackupCmd)

	importCmd.Flags().StringVar(&importType, "type", "", "record type of a CSV file")
	importCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
}

func saveExport(ctx context.Context, cmd *cobra.Command, file *services.ExportFile) error {
	sink := services.DirectorySink{Dir: exportDir}
	if err := sink.Save(ctx, file); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"file":   filepath.Join(exportDir, file.Filename),
			"counts": file.Counts,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", filepath.Join(exportDir, file.Filename), len(file.Data))
	return nil
}

func runExportCSV(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	typ, err := services.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	file, err := a.transfer.ExportCSV(ctx, typ)
	if err != nil {
		return err
	}
	return saveExport(ctx, cmd, file)
}

func runExportBackup(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	file, err := a.transfer.ExportBackup(ctx)
	if err != nil {
		return err
	}
	return saveExport(ctx, cmd, file)
}

func runImport(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	progress := printProgress(cmd)
	if quiet || jsonOutput {
		progress = nil
	}

	if strings.EqualFold(filepath.Ext(args[0]), ".zip") {
		result, err := a.transfer.ImportArchive(ctx, data, progress)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), result)
		}
		out := cmd.OutOrStdout()
		for _, typ := range services.EntityTypes() {
			fmt.Fprintf(out, "%-10s %d\n", typ, result.Counts[typ])
		}
		fmt.Fprintf(out, "Imported %d records\n", result.TotalImported)
		for _, e := range result.Errors {
			fmt.Fprintf(out, "Failed: %v\n", e)
		}
		for _, e := range result.RowErrors {
			fmt.Fprintf(out, "Row error: %v\n", e)
		}
		if !result.Success {
			return fmt.Errorf("%d archive members failed to import", len(result.Errors))
		}
		return nil
	}

	var typ services.EntityType
	if importType != "" {
		typ, err = services.ParseEntityType(importType)
	} else {
		var ok bool
		typ, ok = services.InferEntityType(args[0])
		if !ok {
			err = fmt.Errorf("cannot tell the record type of %s, use --type", filepath.Base(args[0]))
		}
	}
	if err != nil {
		return err
	}

	result, err := a.transfer.ImportCSV(ctx, bytes.NewReader(data), typ, progress)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d %s (%d merged, %d skipped)\n", result.Imported, typ, result.Merged, result.Skipped)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "Row error: %v\n", e)
	}
	return nil
}

func printProgress(cmd *cobra.Command) services.ProgressFunc {
	return func(p services.Progress) {
		switch p.Kind {
		case services.ProgressFile:
			fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s: %s\n", p.Current, p.Total, p.Name, p.Status)
		case services.ProgressRow:
			fmt.Fprintf(cmd.ErrOrStderr(), "  card %d/%d: %s\n", p.Current, p.Total, p.Name)
		}
	}
}
