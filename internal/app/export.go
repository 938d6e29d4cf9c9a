package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/BICAS-web3/Backend/internal/model"
)

// Export renders historical bet data as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	bets, err := store.BetsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(bets) == 0 {
		a.Logger.Info().Msg("no bets found for export window")
		return nil
	}

	downsampled := downsampleBets(bets, opts.MaxPoints)
	a.Logger.Info().Int("total", len(bets)).Int("exported", len(downsampled)).Msg("exporting bets")

	if opts.CSVPath != "" {
		if err := writeBetsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeBetsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleBets(bets []model.BetDetail, max int) []model.BetDetail {
	if max <= 0 || len(bets) <= max {
		return bets
	}

	result := make([]model.BetDetail, 0, max)
	step := float64(len(bets)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(bets) {
			idx = len(bets) - 1
		}
		result = append(result, bets[idx])
	}
	return result
}

func writeBetsCSV(path string, bets []model.BetDetail) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "transaction_hash", "player", "game", "network", "token", "wager", "bets", "multiplier", "profit"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, bet := range bets {
		record := []string{
			bet.Timestamp.Format(time.RFC3339),
			bet.TransactionHash,
			bet.Player,
			bet.GameName,
			bet.NetworkName,
			bet.TokenName,
			bet.Wager.String(),
			formatInt(bet.Bets),
			strconv.FormatFloat(bet.Multiplier, 'f', -1, 64),
			bet.Profit.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeBetsPNG plots wager and profit per bet over time, in the token's
// native fixed-point units. The chart is an ops aid, not an accounting
// report; mixed tokens share one axis.
func writeBetsPNG(path string, bets []model.BetDetail) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(bets))
	wager := make([]float64, len(bets))
	profit := make([]float64, len(bets))

	for i, bet := range bets {
		x[i] = bet.Timestamp
		wager[i] = bet.Wager.InexactFloat64()
		profit[i] = bet.Profit.InexactFloat64()
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Amount (native units)",
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Wager",
				XValues: x,
				YValues: wager,
			},
			chart.TimeSeries{
				Name:    "Profit",
				XValues: x,
				YValues: profit,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
