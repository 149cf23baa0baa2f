package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-inventory/internal/models"
)

var (
	tradeCmd = &cobra.Command{
		Use:   "trade",
		Short: "Record and manage trades",
	}
	tradeCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Record a trade",
		Long: `Record a trade with another collector.

--give takes owned card ids, optionally with a quantity: --give 12:2
--receive takes owned card ids the same way.
--receive-new adds a card that is not in the collection yet:
  --receive-new "Pikachu;Base Set;58;1.50" (name;set;number;price[;quantity])`,
		Args: cobra.NoArgs,
		RunE: withApp(runTradeCreate),
	}
	tradeStatusCmd = &cobra.Command{
		Use:   "status [trade id] [pending|completed|cancelled]",
		Short: "Change a trade's status; completing it removes the given cards",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(runTradeStatus),
	}
	tradeListCmd = &cobra.Command{
		Use:   "list",
		Short: "List trades, most recent first",
		Args:  cobra.NoArgs,
		RunE:  withApp(runTradeList),
	}

	tradeReq     models.CreateTradeRequest
	tradeGive    []string
	tradeReceive []string
	tradeNew     []string
	tradeTrader  string
)

func init() {
	f := tradeCreateCmd.Flags()
	f.StringVar(&tradeReq.TraderName, "trader", "", "the other collector")
	f.StringVar((*string)(&tradeReq.Status), "status", string(models.TradePending), "initial status")
	f.StringVar(&tradeReq.Notes, "notes", "", "free text notes")
	f.StringArrayVar(&tradeGive, "give", nil, "card id[:qty] given away")
	f.StringArrayVar(&tradeReceive, "receive", nil, "owned card id[:qty] received")
	f.StringArrayVar(&tradeNew, "receive-new", nil, "name;set;number;price[;qty] of a received card")

	tradeListCmd.Flags().StringVar(&tradeTrader, "trader", "", "only trades with this collector")

	tradeCmd.AddCommand(tradeCreateCmd, tradeStatusCmd, tradeListCmd)
}

// parseCardRef parses "id" or "id:qty"
func parseCardRef(s string) (uint, int, error) {
	idPart, qtyPart, hasQty := strings.Cut(s, ":")
	cardID, err := parseID(idPart)
	if err != nil {
		return 0, 0, err
	}
	qty := 1
	if hasQty {
		qty, err = strconv.Atoi(qtyPart)
		if err != nil || qty < 1 {
			return 0, 0, fmt.Errorf("invalid quantity in %q", s)
		}
	}
	return cardID, qty, nil
}

// parseNewCard parses "name;set;number;price[;qty]"
func parseNewCard(s string) (models.IncomingCard, error) {
	parts := strings.Split(s, ";")
	if len(parts) < 4 || len(parts) > 5 {
		return models.IncomingCard{}, fmt.Errorf("invalid card %q, want name;set;number;price[;qty]", s)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return models.IncomingCard{}, fmt.Errorf("invalid price in %q", s)
	}
	card := models.IncomingCard{
		Name:        strings.TrimSpace(parts[0]),
		SetName:     strings.TrimSpace(parts[1]),
		SetNumber:   strings.TrimSpace(parts[2]),
		MarketPrice: price,
		Quantity:    1,
	}
	if len(parts) == 5 {
		card.Quantity, err = strconv.Atoi(strings.TrimSpace(parts[4]))
		if err != nil || card.Quantity < 1 {
			return models.IncomingCard{}, fmt.Errorf("invalid quantity in %q", s)
		}
	}
	return card, nil
}

func runTradeCreate(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	req := tradeReq
	for _, ref := range tradeGive {
		cardID, qty, err := parseCardRef(ref)
		if err != nil {
			return err
		}
		req.MyCards = append(req.MyCards, models.OutgoingCard{CardID: cardID, Quantity: qty})
	}
	for _, ref := range tradeReceive {
		cardID, qty, err := parseCardRef(ref)
		if err != nil {
			return err
		}
		card, err := a.queries.Card(ctx, cardID)
		if err != nil {
			return err
		}
		req.TheirCards = append(req.TheirCards, models.IncomingCard{CardID: cardID, Quantity: qty, MarketPrice: card.Price()})
	}
	for _, raw := range tradeNew {
		card, err := parseNewCard(raw)
		if err != nil {
			return err
		}
		req.TheirCards = append(req.TheirCards, card)
	}

	trade, err := a.trades.CreateTrade(ctx, req)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), trade)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Trade %d with %s (%s): gave %s, received %s, balance %s\n",
		trade.ID, trade.TraderName, trade.Status, money(trade.MyCardsValue), money(trade.TheirCardsValue), money(trade.Balance()))
	return nil
}

func runTradeStatus(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	tradeID, err := parseID(args[0])
	if err != nil {
		return err
	}
	trade, err := a.trades.UpdateTradeStatus(ctx, tradeID, models.TradeStatus(strings.ToLower(args[1])))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), trade)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Trade %d is now %s\n", trade.ID, trade.Status)
	return nil
}

func runTradeList(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	trades, err := a.queries.TradeHistory(ctx, tradeTrader)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), trades)
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			id(t.ID), day(t.TradeDate), t.TraderName, string(t.Status),
			strconv.Itoa(len(t.MyCards)), strconv.Itoa(len(t.TheirCards)),
			money(t.MyCardsValue), money(t.TheirCardsValue), money(t.TradeBalance),
		})
	}
	return table(cmd.OutOrStdout(), []string{"ID", "DATE", "TRADER", "STATUS", "GAVE", "GOT", "GIVEN", "RECEIVED", "BALANCE"}, rows)
}
