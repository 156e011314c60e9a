// Package report summarizes a finished run for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"

	"barreplay/internal/market"
	"barreplay/internal/paper"
	"barreplay/internal/replay"
)

// Summary is the flattened view rendered at the end of a run.
type Summary struct {
	Bars         int
	MeanClose    float64
	StdDevClose  float64
	MinClose     float64
	MaxClose     float64
	Mode         string
	Published    int
	StartingCash float64
	Cash         float64
	Asset        float64
	State        string
	Equity       float64
	ReturnPct    float64
	Trades       int
}

// Summarize computes close statistics over bars and folds in the ledger and replay results.
func Summarize(bars []market.Bar, snap paper.Snapshot, rs replay.Stats) Summary {
	s := Summary{
		Bars:         len(bars),
		Mode:         rs.Mode.String(),
		Published:    rs.Published,
		StartingCash: snap.StartingCash,
		Cash:         snap.Cash,
		Asset:        snap.Asset,
		State:        snap.State.String(),
		Equity:       snap.Equity,
		Trades:       snap.Trades,
	}
	if snap.StartingCash > 0 {
		s.ReturnPct = (snap.Equity - snap.StartingCash) / snap.StartingCash * 100
	}
	if len(bars) == 0 {
		return s
	}

	closes := make(stats.Float64Data, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	// errors only arise on empty input, handled above
	s.MeanClose, _ = closes.Mean()
	s.StdDevClose, _ = closes.StandardDeviationPopulation()
	s.MinClose, _ = closes.Min()
	s.MaxClose, _ = closes.Max()
	return s
}

// Render writes the summary as a two-column table.
func Render(w io.Writer, s Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	rows := [][]string{
		{"bars", strconv.Itoa(s.Bars)},
		{"close mean", money(s.MeanClose)},
		{"close stddev", money(s.StdDevClose)},
		{"close min", money(s.MinClose)},
		{"close max", money(s.MaxClose)},
		{"replay", s.Mode},
		{"published", strconv.Itoa(s.Published)},
		{"starting cash", money(s.StartingCash)},
		{"cash", money(s.Cash)},
		{"asset", strconv.FormatFloat(s.Asset, 'f', 8, 64)},
		{"state", s.State},
		{"equity", money(s.Equity)},
		{"return", fmt.Sprintf("%.2f%%", s.ReturnPct)},
		{"trades", strconv.Itoa(s.Trades)},
	}
	table.AppendBulk(rows)
	table.Render()
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
