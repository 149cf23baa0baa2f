package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-inventory/internal/models"
	"github.com/codyseavey/tcg-inventory/internal/repository"
)

var (
	cardsCmd = &cobra.Command{
		Use:   "cards",
		Short: "List, add and delete cards",
	}
	cardsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List cards, optionally filtered",
		Args:  cobra.NoArgs,
		RunE:  withApp(runCardsList),
	}
	cardsAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Add a card by hand or from the catalog with --tcg-id",
		Args:  cobra.NoArgs,
		RunE:  withApp(runCardsAdd),
	}
	cardsDeleteCmd = &cobra.Command{
		Use:   "delete [card id]",
		Short: "Delete a card that is not lent out",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runCardsDelete),
	}

	filterSet       string
	filterRarity    string
	filterCondition string
	filterSearch    string
	filterAvailable bool

	newCard      models.NewCard
	newCardPrice float64
)

func init() {
	f := cardsListCmd.Flags()
	f.StringVar(&filterSet, "set", "", "only cards of this set")
	f.StringVar(&filterRarity, "rarity", "", "only cards of this rarity")
	f.StringVar(&filterCondition, "condition", "", "only cards in this condition")
	f.StringVar(&filterSearch, "search", "", "name or set prefix")
	f.BoolVar(&filterAvailable, "available", false, "only cards that are not lent out")

	f = cardsAddCmd.Flags()
	f.StringVar(&newCard.Name, "name", "", "card name")
	f.StringVar(&newCard.SetName, "set", "", "set name")
	f.StringVar(&newCard.SetNumber, "number", "", "number within the set")
	f.StringVar(&newCard.Rarity, "rarity", "", "rarity")
	f.StringVar((*string)(&newCard.Condition), "condition", string(models.ConditionNearMint), "condition")
	f.IntVar(&newCard.Quantity, "qty", 1, "quantity")
	f.Float64Var(&newCardPrice, "price", -1, "market price (unknown when omitted)")
	f.StringVar(&newCard.TCGID, "tcg-id", "", "Pokemon TCG API card id; other fields default from the catalog")

	cardsCmd.AddCommand(cardsListCmd, cardsAddCmd, cardsDeleteCmd)
}

func runCardsList(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	filter := models.CardFilter{
		SetName:    filterSet,
		Rarity:     filterRarity,
		SearchTerm: filterSearch,
	}
	if filterCondition != "" {
		c, ok := models.ParseCondition(filterCondition)
		if !ok {
			return fmt.Errorf("unknown condition %q", filterCondition)
		}
		filter.Condition = c
	}
	if filterAvailable {
		filter.IsAvailable = &filterAvailable
	}

	cards, err := a.queries.Cards(ctx, filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), cards)
	}
	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		status := "available"
		if !c.IsAvailable {
			status = "lent"
		}
		rows = append(rows, []string{id(c.ID), c.Name, c.SetName, c.SetNumber, string(c.Condition), strconv.Itoa(c.Quantity), optionalMoney(c.MarketPrice), status})
	}
	return table(cmd.OutOrStdout(), []string{"ID", "NAME", "SET", "NUMBER", "CONDITION", "QTY", "PRICE", "STATUS"}, rows)
}

func runCardsAdd(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
	in := newCard
	if in.TCGID != "" {
		found, err := a.catalog.GetCard(ctx, in.TCGID)
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("card %s not found in the catalog", in.TCGID)
		}
		fromCatalog := found.ToNewCard(in.Condition, in.Quantity)
		if in.Name != "" {
			fromCatalog.Name = in.Name
		}
		in = fromCatalog
	}
	if newCardPrice >= 0 {
		price := newCardPrice
		in.MarketPrice = &price
	}

	card, err := repository.NewCardRepository(a.store).Add(ctx, in)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), card)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added card %d: %s (%s #%s) x%d\n", card.ID, card.Name, card.SetName, card.SetNumber, card.Quantity)
	return nil
}

func runCardsDelete(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	cardID, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := repository.NewCardRepository(a.store).Delete(ctx, cardID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted card %d\n", cardID)
	return nil
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, arg := range args {
		n, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return ids, nil
}
