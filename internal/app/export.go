package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"onchain-intel/internal/domain"
)

// Export renders the daily flows of an entity as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Slug == "" {
		return errors.New("--entity is required")
	}

	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = a.Config.Export.MaxDataPoints
	}

	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	engine, closeEngine := a.newEngine(ctx, s)
	defer closeEngine()

	flows := engine.Flows(ctx, opts.Slug, a.Config.ResolveWindow(opts.WindowDays))
	switch flows.Source {
	case domain.SourceError:
		return fmt.Errorf("flows for %s: %s", opts.Slug, flows.Error)
	case domain.SourceNoData:
		a.Logger.Info().Str("entity", opts.Slug).Msg("no transfers found for export window")
	}

	days := downsampleBuckets(flows.Daily, maxPoints)
	a.Logger.Info().Int("total", len(flows.Daily)).Int("exported", len(days)).Msg("exporting daily flows")

	if opts.CSVPath != "" {
		if err := writeFlowsCSV(opts.CSVPath, days); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeFlowsPNG(opts.PNGPath, flows.Entity, days); err != nil {
			return err
		}
	}

	return nil
}

func downsampleBuckets(buckets []domain.FlowBucket, max int) []domain.FlowBucket {
	if max <= 0 || len(buckets) <= max {
		return buckets
	}
	if max == 1 {
		return buckets[len(buckets)-1:]
	}

	result := make([]domain.FlowBucket, 0, max)
	step := float64(len(buckets)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		result = append(result, buckets[idx])
	}
	return result
}

func writeFlowsCSV(path string, buckets []domain.FlowBucket) error {
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

	header := []string{"date", "inflow", "outflow", "net", "inflow_usd", "outflow_usd", "net_usd", "tx_count"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, b := range buckets {
		record := []string{
			b.Date.UTC().Format(time.DateOnly),
			b.Inflow.String(),
			b.Outflow.String(),
			b.Net.String(),
			b.InflowUSD.StringFixed(2),
			b.OutflowUSD.StringFixed(2),
			b.NetUSD.StringFixed(2),
			strconv.Itoa(b.TxCount),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeFlowsPNG(path, entity string, buckets []domain.FlowBucket) error {
	if len(buckets) < 2 {
		return errors.New("a chart needs at least two daily buckets")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(buckets))
	inflow := make([]float64, len(buckets))
	outflow := make([]float64, len(buckets))
	net := make([]float64, len(buckets))

	for i, b := range buckets {
		x[i] = b.Date
		inflow[i] = b.InflowUSD.InexactFloat64()
		outflow[i] = b.OutflowUSD.InexactFloat64()
		net[i] = b.NetUSD.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  entity + " daily flows",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD",
			ValueFormatter: usdFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Net USD",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Inflow",
				XValues: x,
				YValues: inflow,
			},
			chart.TimeSeries{
				Name:    "Outflow",
				XValues: x,
				YValues: outflow,
			},
			chart.TimeSeries{
				Name:    "Net",
				XValues: x,
				YValues: net,
				YAxis:   chart.YAxisSecondary,
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
