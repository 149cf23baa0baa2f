package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	pricesCmd = &cobra.Command{
		Use:   "prices",
		Short: "Refresh market prices from the catalog",
	}
	pricesRefreshCmd = &cobra.Command{
		Use:   "refresh [card id...]",
		Short: "Run one price refresh batch; the given cards go first",
		RunE:  withApp(runPricesRefresh),
	}
	pricesHistoryCmd = &cobra.Command{
		Use:   "history [card id]",
		Short: "Show the recorded market prices of a card",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runPricesHistory),
	}

	pricesWatch bool
)

func init() {
	pricesRefreshCmd.Flags().BoolVar(&pricesWatch, "watch", false, "keep refreshing on PRICE_REFRESH_INTERVAL until interrupted")
	pricesCmd.AddCommand(pricesRefreshCmd, pricesHistoryCmd)
}

func runPricesRefresh(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	for _, cardID := range ids {
		a.prices.QueueRefresh(cardID)
	}
	if pricesWatch {
		a.prices.Start(ctx)
		return nil
	}

	updated, err := a.prices.UpdateBatch(ctx)
	if err != nil {
		return err
	}
	status := a.prices.Status()
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Updated %d prices\n", updated)
	if len(status.UnmatchedCards) == 0 {
		return nil
	}
	fmt.Fprintln(out, "Not priced:")
	rows := make([][]string, 0, len(status.UnmatchedCards))
	for _, u := range status.UnmatchedCards {
		rows = append(rows, []string{id(u.CardID), u.Name, u.SetName, u.SetNumber, u.Reason})
	}
	return table(out, []string{"ID", "NAME", "SET", "NUMBER", "REASON"}, rows)
}

func runPricesHistory(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	cardID, err := parseID(args[0])
	if err != nil {
		return err
	}
	history, err := a.queries.PriceHistory(ctx, cardID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), history)
	}
	if len(history) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No prices recorded")
		return nil
	}
	rows := make([][]string, 0, len(history))
	for _, h := range history {
		rows = append(rows, []string{day(h.Timestamp), money(h.MarketPrice)})
	}
	return table(cmd.OutOrStdout(), []string{"DATE", "PRICE"}, rows)
}
