package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

// Show prints recent bets.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	bets, err := store.RecentBets(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(bets) == 0 {
		fmt.Fprintln(os.Stdout, "no bets found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tGame\tNetwork\tPlayer\tWager\tToken\tBets\tProfit")

	for _, bet := range bets {
		player := bet.Player
		if bet.PlayerNickname != nil {
			player = *bet.PlayerNickname
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			bet.Timestamp.UTC().Format(time.RFC3339),
			bet.GameName,
			bet.NetworkName,
			player,
			bet.Wager.String(),
			bet.TokenName,
			formatInt(bet.Bets),
			bet.Profit.String(),
		)
	}

	writer.Flush()
	return nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
