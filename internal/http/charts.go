package http

import (
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"cashly/internal/core"
)

const (
	chartWidth  = 720
	chartHeight = 360
)

var accent = drawing.ColorFromHex("0f766e")

// yRange leaves headroom above the tallest value and never collapses to zero.
func yRange(max float64) *chart.ContinuousRange {
	if max <= 0 {
		max = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: max * 1.1}
}

func renderCategoryChart(w io.Writer, rows []core.CategoryTotal) error {
	bars := make([]chart.Value, 0, len(rows))
	var max float64
	for _, row := range rows {
		v := row.Total.Float()
		if v > max {
			max = v
		}
		bars = append(bars, chart.Value{
			Label: row.Category.Label(),
			Value: v,
			Style: chart.Style{FillColor: accent, StrokeColor: accent},
		})
	}

	graph := chart.BarChart{
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   48,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		YAxis:      chart.YAxis{Range: yRange(max)},
		Bars:       bars,
	}
	return graph.Render(chart.PNG, w)
}

func renderTimelineChart(w io.Writer, rows []core.BucketTotal, bucket core.Bucket) error {
	series := chart.TimeSeries{
		Name:    "Spending",
		Style:   chart.Style{StrokeColor: accent, StrokeWidth: 2, DotColor: accent, DotWidth: 3},
		XValues: make([]time.Time, 0, len(rows)),
		YValues: make([]float64, 0, len(rows)),
	}
	var max float64
	for _, row := range rows {
		v := row.Total.Float()
		if v > max {
			max = v
		}
		series.XValues = append(series.XValues, row.Start)
		series.YValues = append(series.YValues, v)
	}

	graph := chart.Chart{
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 24, Bottom: 16}},
		XAxis: chart.XAxis{
			Range: xRange(rows, bucket),
			ValueFormatter: func(v any) string {
				if f, ok := v.(float64); ok {
					return bucket.Label(time.Unix(0, int64(f)).UTC())
				}
				return ""
			},
		},
		YAxis:  chart.YAxis{Range: yRange(max)},
		Series: []chart.Series{series},
	}
	return graph.Render(chart.PNG, w)
}

// xRange spans the series, padding a single point by one bucket on each side.
func xRange(rows []core.BucketTotal, bucket core.Bucket) *chart.ContinuousRange {
	if len(rows) == 0 {
		now := time.Now().UTC()
		return &chart.ContinuousRange{Min: float64(now.Add(-24 * time.Hour).UnixNano()), Max: float64(now.UnixNano())}
	}
	first, last := rows[0].Start, rows[len(rows)-1].Start
	if !last.After(first) {
		span := bucketSpan(bucket)
		first, last = first.Add(-span), last.Add(span)
	}
	return &chart.ContinuousRange{Min: float64(first.UnixNano()), Max: float64(last.UnixNano())}
}

func bucketSpan(b core.Bucket) time.Duration {
	switch b {
	case core.BucketWeek:
		return 7 * 24 * time.Hour
	case core.BucketMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
