package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var (
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show collection, lending and trade statistics",
		Args:  cobra.NoArgs,
		RunE:  withApp(runStats),
	}
	searchCmd = &cobra.Command{
		Use:   "search [term]",
		Short: "Search the Pokemon TCG catalog",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runSearch),
	}
	activityCmd = &cobra.Command{
		Use:   "activity",
		Short: "Show recent additions, lendings and returns",
		Args:  cobra.NoArgs,
		RunE:  withApp(runActivity),
	}
	remindCmd = &cobra.Command{
		Use:   "remind",
		Short: "Report overdue cards and cards due tomorrow",
		Args:  cobra.NoArgs,
		RunE:  withApp(runRemind),
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every record (requires --yes)",
		Args:  cobra.NoArgs,
		RunE:  withApp(runClear),
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE:  withApp(runMigrate),
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Refresh the collection gauges and print all metrics",
		Args:  cobra.NoArgs,
		RunE:  withApp(runMetrics),
	}

	activityLimit int
	remindWatch   bool
	confirmClear  bool
)

func init() {
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "n", 10, "number of entries")
	remindCmd.Flags().BoolVar(&remindWatch, "watch", false, "keep checking until interrupted")
	clearCmd.Flags().BoolVar(&confirmClear, "yes", false, "confirm deleting all data")
}

func runStats(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	collection, err := a.queries.CollectionStats(ctx)
	if err != nil {
		return err
	}
	lending, err := a.queries.LendingStats(ctx)
	if err != nil {
		return err
	}
	trades, err := a.queries.TradeStats(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"collection": collection,
			"lending":    lending,
			"trades":     trades,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cards:     %d entries, %d total, %d available, %d lent\n",
		collection.TotalCards, collection.TotalQuantity, collection.AvailableCards, collection.LentCards)
	fmt.Fprintf(out, "Value:     %s across %d sets\n", money(collection.TotalValue), collection.UniqueSets)
	fmt.Fprintf(out, "Lending:   %d active, %d overdue, %d returned, %d borrowers, %d days on average\n",
		lending.Active, lending.Overdue, lending.Returned, lending.TotalBorrowers, lending.AverageLendingDays)
	fmt.Fprintf(out, "Trades:    %d completed, %d pending, %d cancelled, net %s\n",
		trades.Completed, trades.Pending, trades.Cancelled, money(trades.NetProfit))

	rarities := make([]string, 0, len(collection.ByRarity))
	for r := range collection.ByRarity {
		rarities = append(rarities, r)
	}
	sort.Strings(rarities)
	for _, r := range rarities {
		name := r
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(out, "  %-24s %d\n", name, collection.ByRarity[r])
	}
	return nil
}

func runSearch(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	cards, err := a.catalog.SearchCards(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), cards)
	}
	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, []string{c.TCGID, c.Name, c.SetName, c.SetNumber, c.Rarity, optionalMoney(c.MarketPrice)})
	}
	return table(cmd.OutOrStdout(), []string{"TCG ID", "NAME", "SET", "NUMBER", "RARITY", "PRICE"}, rows)
}

func runActivity(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	items, err := a.queries.RecentActivity(ctx, activityLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), items)
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{day(item.Date), string(item.Type), item.Description})
	}
	return table(cmd.OutOrStdout(), []string{"DATE", "TYPE", "DESCRIPTION"}, rows)
}

func runRemind(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	if remindWatch {
		a.reminders.Start(ctx)
		return nil
	}
	sent, err := a.reminders.CheckOverdue(ctx)
	if err != nil {
		return err
	}
	due, err := a.reminders.DueTomorrow(ctx)
	if err != nil {
		return err
	}
	all := append(sent, due...)
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), all)
	}
	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing overdue or due tomorrow")
		return nil
	}
	for _, r := range all {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n\n", r.Title, r.Body)
	}
	return nil
}

func runClear(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	if !confirmClear {
		return fmt.Errorf("refusing to delete all data without --yes")
	}
	if err := a.store.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All data cleared")
	return nil
}

func runMigrate(_ context.Context, a *app, cmd *cobra.Command, _ []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d\n", a.store.Version())
	return nil
}

func runMetrics(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	if _, err := a.queries.CollectionStats(ctx); err != nil {
		return err
	}
	if _, err := a.queries.OverdueItems(ctx); err != nil {
		return err
	}
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.OutOrStdout(), mf); err != nil {
			return err
		}
	}
	return nil
}
