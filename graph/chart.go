// Package graph renders monster tables as interactive HTML charts.
package graph

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"bandersnatch/data"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Dark2 qualitative palette.
var palette = opts.Colors{"#1b9e77", "#d95f02", "#7570b3", "#e7298a", "#66a61e", "#e6ab02", "#a6761d", "#666666"}

// Chart plots y against x with one series per distinct value of target.
func Chart(table *data.Table, x, y, target string) (*charts.Scatter, error) {
	if table == nil {
		return nil, errors.New("no table to chart")
	}
	for _, column := range []string{x, y, target} {
		if !table.HasColumn(column) {
			return nil, fmt.Errorf("%w: %s", data.ErrUnknownColumn, column)
		}
	}

	series := make(map[string][]opts.ScatterData)
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		xValue, ok := data.Float(row[x])
		if !ok {
			return nil, fmt.Errorf("row %d column %s is not numeric", i, x)
		}
		yValue, ok := data.Float(row[y])
		if !ok {
			return nil, fmt.Errorf("row %d column %s is not numeric", i, y)
		}
		group := fmt.Sprint(row[target])
		series[group] = append(series[group], opts.ScatterData{
			Value:      []interface{}{xValue, yValue},
			SymbolSize: 8,
		})
	}

	groups := make([]string, 0, len(series))
	for group := range series {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:           "700px",
			Height:          "500px",
			Theme:           "dark",
			BackgroundColor: "#1e1e1e",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s by %s for %s", y, x, target),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show: opts.Bool(true),
		}),
		charts.WithLegendOpts(opts.Legend{
			Show:  opts.Bool(true),
			Right: "10",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: x,
			Type: "value",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: y,
			Type: "value",
		}),
		charts.WithColorsOpts(palette),
	)
	for _, group := range groups {
		scatter.AddSeries(group, series[group])
	}
	return scatter, nil
}

// Render writes the chart as a standalone HTML page.
func Render(w io.Writer, chart *charts.Scatter) error {
	if err := chart.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
