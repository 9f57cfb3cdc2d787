package cninfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cninfoarch/internal/retry"
	"cninfoarch/internal/ticker"
	"cninfoarch/internal/types"
)

// DefaultBatchSize is how many tickers share one search filter; the API
// limits the combined filter length.
const DefaultBatchSize = 30

// DedupIndex answers "was this id archived before?". Satisfied by
// *ledger.Ledger.
type DedupIndex interface {
	Contains(id string) bool
}

// FetchResult aggregates a pagination run: the accepted record stream plus
// the counters the report needs.
type FetchResult struct {
	Accepted []types.Announcement
	// SkippedDuplicates counts records filtered out by the dedup index.
	SkippedDuplicates int
	// DegradedBatches lists batches that ended on retry exhaustion rather
	// than a genuine end of data.
	DegradedBatches []string
	// Pages counts successful page fetches.
	Pages int
}

// Paginator drives the fetcher page by page and batch by batch, filtering
// against the dedup index and enforcing the global item cap. One request is
// in flight at a time, with a randomized delay between pages and batches.
type Paginator struct {
	Client    *Client
	Dedup     DedupIndex
	PageSize  int
	MaxItems  int
	BatchSize int
	DateRange string
	DelayMin  time.Duration
	DelayMax  time.Duration
	Sleep     func(time.Duration)
	Logger    *slog.Logger
}

func (p *Paginator) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

func (p *Paginator) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (p *Paginator) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run fetches up to MaxItems new records for the given tickers. An empty
// ticker list falls back to market-wide pagination with the same stop
// conditions. Per-batch failures degrade, they never abort the run.
func (p *Paginator) Run(ctx context.Context, stocks []ticker.Identity) *FetchResult {
	res := &FetchResult{}

	if len(stocks) == 0 {
		p.logger().Info("no tickers given, paginating market-wide")
		p.runBatch(ctx, nil, "all", res)
		return res
	}

	size := p.batchSize()
	total := (len(stocks) + size - 1) / size
	p.logger().Info("processing tickers in batches", "tickers", len(stocks), "batches", total, "batch_size", size)

	for i := 0; i < len(stocks); i += size {
		end := min(i+size, len(stocks))
		batch := stocks[i:end]
		label := fmt.Sprintf("%s~%s", batch[0].Normalized(), batch[len(batch)-1].Normalized())

		p.logger().Info("processing batch", "batch", i/size+1, "of", total, "range", label)
		p.runBatch(ctx, batch, label, res)

		if len(res.Accepted) >= p.MaxItems {
			p.logger().Info("global item cap reached, stopping early", "cap", p.MaxItems)
			break
		}
		if end < len(stocks) {
			p.sleep(retry.Jitter(p.DelayMin, p.DelayMax))
		}
	}
	return res
}

// runBatch pages one ticker batch from page 1 until a stop condition: short
// page, empty page, cap reached, or fetch exhaustion (degraded).
func (p *Paginator) runBatch(ctx context.Context, batch []ticker.Identity, label string, res *FetchResult) {
	for page := 1; len(res.Accepted) < p.MaxItems; page++ {
		records, err := p.Client.FetchPage(ctx, PageRequest{
			Stocks:    batch,
			PageNum:   page,
			PageSize:  p.PageSize,
			DateRange: p.DateRange,
		})
		if err != nil {
			// A degraded batch stops like end-of-data but is reported
			// separately; errors.Is keeps genuine terminal errors visible.
			if errors.Is(err, retry.ErrRetriesExhausted) {
				p.logger().Warn("batch degraded, giving up on it", "batch", label, "error", err)
			} else {
				p.logger().Warn("batch aborted", "batch", label, "error", err)
			}
			res.DegradedBatches = append(res.DegradedBatches, label)
			return
		}
		res.Pages++

		if len(records) == 0 {
			p.logger().Info("no more data", "batch", label, "page", page)
			return
		}

		accepted, skipped := p.filterPage(records, res)
		res.SkippedDuplicates += skipped
		p.logger().Info("page fetched",
			"batch", label, "page", page, "new", accepted, "skipped", skipped, "total", len(res.Accepted))

		if len(records) < p.PageSize {
			return
		}
		if len(res.Accepted) >= p.MaxItems {
			return
		}
		p.sleep(retry.Jitter(p.DelayMin, p.DelayMax))
	}
}

// filterPage drops already-archived records and accepts the remainder up to
// the global cap. Trailing excess in an over-full page is dropped, not
// deferred.
func (p *Paginator) filterPage(records []types.Announcement, res *FetchResult) (accepted, skipped int) {
	for _, rec := range records {
		if rec.ID != "" && p.Dedup != nil && p.Dedup.Contains(rec.ID) {
			skipped++
			continue
		}
		if len(res.Accepted) >= p.MaxItems {
			break
		}
		res.Accepted = append(res.Accepted, rec)
		accepted++
	}
	return accepted, skipped
}
