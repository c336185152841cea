package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"mtgprices/internal/prices"
	"mtgprices/internal/storage"
)

// pricePoint is one provider's observation of a single card on one day.
type pricePoint struct {
	Date     time.Time
	Provider string
	Currency string
	Sell     *decimal.Decimal
	Buy      *decimal.Decimal
}

// Export renders one card's stored price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.UUID == "" {
		return errors.New("--uuid is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Finish == "" {
		opts.Finish = "normal"
	}
	if opts.Finish != "normal" && opts.Finish != "foil" && opts.Finish != "etched" {
		return fmt.Errorf("unknown finish %q", opts.Finish)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, 0, -a.Config.Archive.RetentionMonths*30)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := store.ListSnapshotsSince(ctx, from)
	if err != nil {
		return err
	}

	points := collectPoints(rows, opts.UUID, opts.Finish, to)
	if len(points) == 0 {
		a.Logger.Info().Str("uuid", opts.UUID).Msg("no price history found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).
		Str("uuid", opts.UUID).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, opts.UUID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// collectPoints extracts the requested card's cells from every stored
// snapshot, sorted by date then provider.
func collectPoints(rows []storage.SnapshotRow, uuid, finish string, to time.Time) []pricePoint {
	var points []pricePoint
	for _, row := range rows {
		if row.PriceDate.After(to) {
			continue
		}
		record, ok := row.Records[uuid]
		if !ok || record == nil {
			continue
		}
		sell, buy := cellsForFinish(record, finish)
		if sell == nil && buy == nil {
			continue
		}
		points = append(points, pricePoint{
			Date:     row.PriceDate.UTC(),
			Provider: row.Provider,
			Currency: record.Currency,
			Sell:     sell,
			Buy:      buy,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		return points[i].Provider < points[j].Provider
	})
	return points
}

func cellsForFinish(record *prices.Record, finish string) (sell, buy *decimal.Decimal) {
	switch finish {
	case "foil":
		return record.SellFoil, record.BuyFoil
	case "etched":
		return record.SellEtched, record.BuyEtched
	default:
		return record.SellNormal, record.BuyNormal
	}
}

func downsamplePoints(points []pricePoint, max int) []pricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]pricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeHistoryCSV(path string, points []pricePoint) error {
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

	header := []string{"date", "provider", "currency", "sell", "buy"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, point := range points {
		record := []string{
			point.Date.Format("2006-01-02"),
			point.Provider,
			point.Currency,
			decimalCell(point.Sell),
			decimalCell(point.Buy),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistoryPNG(path, uuid string, points []pricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	// One sell-price series per provider.
	byProvider := make(map[string][]pricePoint)
	var order []string
	for _, point := range points {
		if point.Sell == nil {
			continue
		}
		if _, seen := byProvider[point.Provider]; !seen {
			order = append(order, point.Provider)
		}
		byProvider[point.Provider] = append(byProvider[point.Provider], point)
	}
	if len(order) == 0 {
		return errors.New("no sell prices in export window")
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	series := make([]chart.Series, 0, len(order))
	for _, provider := range order {
		pts := byProvider[provider]
		x := make([]time.Time, len(pts))
		y := make([]float64, len(pts))
		for i, point := range pts {
			x[i] = point.Date
			y[i] = point.Sell.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{
			Name:    provider,
			XValues: x,
			YValues: y,
		})
	}

	graph := chart.Chart{
		Title:  uuid,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Sell price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
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

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
