// Package dashboard summarizes detection history for display: headline
// statistics, the most recent analyses and the most frequently detected
// parts, optionally as a bar chart.
package dashboard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ironsheep/carvision-mcp/internal/detection"
	"github.com/ironsheep/carvision-mcp/internal/history"
)

const (
	// RecentCount is the number of recent analyses on the dashboard.
	RecentCount = 5
	// TopParts is the number of parts in the distribution.
	TopParts = 5

	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

// ErrNoData is returned when a chart is requested for an empty distribution.
var ErrNoData = errors.New("no detections to chart")

// RecentEntry is a condensed view of one result.
type RecentEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	TotalParts    int       `json:"totalParts"`
	Accuracy      float64   `json:"accuracy"`
	TotalCoverage float64   `json:"totalCoverage"`
	HasImage      bool      `json:"hasImage"`
}

// Summary is the dashboard view of a history store.
type Summary struct {
	TotalAnalyses         int                 `json:"totalAnalyses"`
	AverageAccuracy       float64             `json:"averageAccuracy"`
	AverageProcessingTime float64             `json:"averageProcessingTime"`
	Processing            bool                `json:"processing"`
	Retained              int                 `json:"retained"`
	Recent                []RecentEntry       `json:"recent"`
	Distribution          []history.PartCount `json:"distribution"`
	Chart                 *Chart              `json:"chart,omitempty"`
}

// Chart is a rendered PNG chart.
type Chart struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Summarize builds the dashboard view. Averages are rounded to one decimal
// place for accuracy and whole milliseconds for processing time.
func Summarize(store *history.Store) Summary {
	stats := store.Stats()
	recent := store.Recent(RecentCount)

	entries := make([]RecentEntry, len(recent))
	for i, r := range recent {
		entries[i] = RecentEntry{
			ID:            r.ID,
			Timestamp:     r.Timestamp,
			TotalParts:    r.TotalParts,
			Accuracy:      r.Accuracy,
			TotalCoverage: r.TotalCoverage,
			HasImage:      r.ImageData != "",
		}
	}

	return Summary{
		TotalAnalyses:         stats.TotalAnalyses,
		AverageAccuracy:       math.Round(stats.AverageAccuracy*10) / 10,
		AverageProcessingTime: math.Round(stats.AverageProcessingTime),
		Processing:            store.Processing(),
		Retained:              store.Len(),
		Recent:                entries,
		Distribution:          store.PartDistribution(TopParts),
	}
}

// RenderChart draws the distribution as a bar chart, one bar per part in
// the part's catalog color (grey for parts the catalog does not know).
func RenderChart(dist []history.PartCount, catalog *detection.Catalog) (*Chart, error) {
	if len(dist) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Part distribution"
	p.Y.Label.Text = "Detections"
	p.Y.Min = 0

	names := make([]string, len(dist))
	for i, d := range dist {
		names[i] = d.Name
		bar, err := plotter.NewBarChart(plotter.Values{float64(d.Count)}, vg.Points(30))
		if err != nil {
			return nil, fmt.Errorf("failed to build bar for %s: %w", d.Name, err)
		}
		bar.XMin = float64(i)
		bar.LineStyle.Width = vg.Length(0)
		bar.Color = barColor(catalog, d.Name)
		p.Add(bar)
	}
	p.NominalX(names...)

	w, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}

	return &Chart{
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

func barColor(catalog *detection.Catalog, name string) color.Color {
	if catalog != nil {
		if a, ok := catalog.Lookup(name); ok {
			return a.RGBA()
		}
	}
	return color.Gray{Y: 0x99}
}
