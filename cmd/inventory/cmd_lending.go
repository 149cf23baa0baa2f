package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-inventory/internal/models"
)

var (
	lendCmd = &cobra.Command{
		Use:   "lend [card id...]",
		Short: "Lend one or more cards to a borrower",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withApp(runLend),
	}
	returnCmd = &cobra.Command{
		Use:   "return [lending id...]",
		Short: "Mark lendings as returned",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withApp(runReturn),
	}
	overdueCmd = &cobra.Command{
		Use:   "overdue",
		Short: "List lendings past their expected return date",
		Args:  cobra.NoArgs,
		RunE:  withApp(runOverdue),
	}

	borrower models.BorrowerInfo
	lendDue  string
	lendDays int
)

func init() {
	f := lendCmd.Flags()
	f.StringVar(&borrower.Name, "borrower", "", "borrower name (created if new)")
	f.StringVar(&borrower.Email, "email", "", "borrower email, used for new borrowers")
	f.StringVar(&borrower.Phone, "phone", "", "borrower phone, used for new borrowers")
	f.StringVar(&lendDue, "due", "", "expected return date (YYYY-MM-DD)")
	f.IntVar(&lendDays, "days", 7, "days until the expected return when --due is not given")
}

func runLend(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	cardIDs, err := parseIDs(args)
	if err != nil {
		return err
	}
	due := a.store.Now().AddDate(0, 0, lendDays)
	if lendDue != "" {
		due, err = time.ParseInLocation("2006-01-02", lendDue, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --due: %w", err)
		}
	}

	records, err := a.lending.LendCards(ctx, cardIDs, borrower, due)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), records)
	}
	for _, rec := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "Lending %d: card %d lent to %s, due %s\n", rec.ID, rec.CardID, rec.BorrowerName, day(rec.ExpectedReturnDate))
	}
	return nil
}

func runReturn(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	returned, err := a.lending.ReturnCards(ctx, ids)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), returned)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Returned %d of %d lendings\n", len(returned), len(ids))
	return nil
}

func runOverdue(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	items, err := a.queries.OverdueItems(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), items)
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		name := "Unknown"
		if item.Card != nil {
			name = item.Card.Name
		}
		rows = append(rows, []string{id(item.ID), name, item.BorrowerName, day(item.ExpectedReturnDate), strconv.Itoa(item.DaysOverdue)})
	}
	return table(cmd.OutOrStdout(), []string{"LENDING", "CARD", "BORROWER", "DUE", "DAYS OVERDUE"}, rows)
}
