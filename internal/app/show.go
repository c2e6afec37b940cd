package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"onchain-intel/internal/domain"
)

// Show prints the persisted rankings: one bucket, one symbol, the top movers,
// or the bucket summary followed by every bucket.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	svc := a.newRankingService(s)

	var records []domain.RankingRecord
	switch {
	case opts.Symbol != "":
		rec, err := svc.Token(ctx, opts.Symbol)
		if err != nil {
			return fmt.Errorf("ranking for %s: %w", strings.ToUpper(opts.Symbol), err)
		}
		records = []domain.RankingRecord{rec}
	case opts.Movers:
		records, err = svc.TopMovers(ctx, opts.Limit)
	case opts.Bucket != "":
		records, err = svc.Bucket(ctx, domain.Bucket(strings.ToUpper(opts.Bucket)), opts.Limit)
	default:
		summary, serr := svc.Summary(ctx)
		if serr != nil {
			return serr
		}
		if !opts.JSON {
			printSummary(os.Stdout, summary)
		}
		records, err = svc.Query(ctx, domain.RankingFilter{}, domain.SortGlobalRank, opts.Limit)
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		return writeJSON(os.Stdout, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no rankings found")
		return nil
	}
	printRankings(os.Stdout, records)
	return nil
}

func printSummary(w io.Writer, summary domain.BucketSummary) {
	last := "never"
	if summary.LastComputed != nil {
		last = summary.LastComputed.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(w, "BUY %d  WATCH %d  SELL %d  (last computed %s)\n\n",
		summary.Counts.Buy, summary.Counts.Watch, summary.Counts.Sell, last)
}

func printRankings(w io.Writer, records []domain.RankingRecord) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tSymbol\tChain\tBucket\tRank\tComposite\tMcap\tVolume\tMomentum\tPrice\t24h%")

	for _, r := range records {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%d\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t%.2f\n",
			r.GlobalRank,
			sanitizeInline(r.Symbol),
			r.ChainID,
			r.Bucket,
			r.BucketRank,
			r.CompositeScore,
			r.MarketCapScore,
			r.VolumeScore,
			r.MomentumScore,
			formatPrice(r.PriceUSD),
			r.PriceChange24h,
		)
	}
	writer.Flush()
}

func formatPrice(v float64) string {
	switch {
	case v == 0:
		return "-"
	case v < 0.01:
		return fmt.Sprintf("%.6f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
