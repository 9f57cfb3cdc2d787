/*
Package report renders the markdown summary written at the end of a run.
Building and rendering are pure; only Write touches the filesystem, and a
failed write is the caller's to log, never fatal.
*/
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cninfoarch/internal/types"
)

const codesPerRow = 6

// Settings is the effective configuration echoed into the report.
type Settings struct {
	StockCode        string
	StockFile        string
	MaxItemsTotal    int
	PageSize         int
	TimeoutMinSecs   float64
	TimeoutMaxSecs   float64
	DelayMinSecs     float64
	DelayMaxSecs     float64
	DownloadDelayMin float64
	DownloadDelayMax float64
	NoHTML           bool
	Days             int
}

// TickerStats aggregates one ticker's counters.
type TickerStats struct {
	Fetched     int
	PDF         int
	HTML        int
	PDFSuccess  int
	HTMLSuccess int
	Failed      int
}

// RunReport is the full aggregate of one run.
type RunReport struct {
	GeneratedAt       time.Time
	SaveDir           string
	Settings          Settings
	Requested         []string // normalized requested tickers
	Missing           []string // requested tickers with zero fetched records
	DegradedBatches   []string
	SkippedDuplicates int
	LedgerBefore      int
	LedgerAfter       int

	perTicker map[string]*TickerStats
	codes     []string // sorted ticker keys

	TotalFetched int
	TotalPDF     int
	TotalHTML    int
	SuccessPDF   int
	SuccessHTML  int

	Digest string // optional AI digest, appended verbatim
}

// Build assembles the report from the run's accepted records and per-item
// status records. It never re-checks the filesystem.
func Build(fetched []types.Announcement, statuses []types.ItemStatus, requested []string) *RunReport {
	r := &RunReport{
		GeneratedAt: time.Now().UTC(),
		Requested:   requested,
		perTicker:   make(map[string]*TickerStats),
	}

	for _, a := range fetched {
		ts := r.tickerStats(a.SecCode)
		ts.Fetched++
		r.TotalFetched++
		if a.Kind() == types.KindPDF {
			ts.PDF++
			r.TotalPDF++
		} else {
			ts.HTML++
			r.TotalHTML++
		}
	}

	for _, st := range statuses {
		ts := r.tickerStats(st.SecCode)
		switch st.Outcome {
		case types.OutcomeDownloaded:
			if st.Kind == types.KindPDF {
				ts.PDFSuccess++
				r.SuccessPDF++
			} else {
				ts.HTMLSuccess++
				r.SuccessHTML++
			}
		case types.OutcomeFailed:
			ts.Failed++
		}
	}

	r.codes = make([]string, 0, len(r.perTicker))
	for code := range r.perTicker {
		r.codes = append(r.codes, code)
	}
	sort.Strings(r.codes)

	r.Missing = missingCodes(requested, r.perTicker)
	return r
}

func (r *RunReport) tickerStats(code string) *TickerStats {
	if code == "" {
		code = "unknown"
	}
	ts, ok := r.perTicker[code]
	if !ok {
		ts = &TickerStats{}
		r.perTicker[code] = ts
	}
	return ts
}

// Ticker returns the collected stats for one ticker, or nil.
func (r *RunReport) Ticker(code string) *TickerStats {
	return r.perTicker[code]
}

// missingCodes compares requested normalized tickers ("000001.SZ") against
// fetched records, which carry the bare code, matching on the digit part.
func missingCodes(requested []string, perTicker map[string]*TickerStats) []string {
	var missing []string
	for _, req := range requested {
		code, _, _ := strings.Cut(req, ".")
		if ts, ok := perTicker[code]; !ok || ts.Fetched == 0 {
			missing = append(missing, req)
		}
	}
	sort.Strings(missing)
	return missing
}

// Render produces the markdown report body.
func (r *RunReport) Render() string {
	var b strings.Builder
	when := r.GeneratedAt.Format("2006-01-02 15:04:05 UTC")
	newDownloads := r.LedgerAfter - r.LedgerBefore

	b.WriteString("# Announcement Download Report\n\n")

	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "- **Generated**: %s\n", when)
	fmt.Fprintf(&b, "- **Save directory**: %s\n", r.SaveDir)
	if len(r.Requested) > 0 {
		fmt.Fprintf(&b, "- **Requested tickers**: %d\n", len(r.Requested))
	} else {
		b.WriteString("- **Requested tickers**: all issuers\n")
	}
	fmt.Fprintf(&b, "- **Tickers with fetched announcements**: %d\n\n", len(r.codes))

	b.WriteString("## Run parameters\n")
	s := r.Settings
	fmt.Fprintf(&b, "- **Stock file**: %s\n", orUnset(s.StockFile))
	fmt.Fprintf(&b, "- **Stock codes**: %s\n", orUnset(s.StockCode))
	fmt.Fprintf(&b, "- **Max items total**: %d\n", s.MaxItemsTotal)
	fmt.Fprintf(&b, "- **Page size**: %d\n", s.PageSize)
	fmt.Fprintf(&b, "- **Request timeout**: %.1f-%.1f s\n", s.TimeoutMinSecs, s.TimeoutMaxSecs)
	fmt.Fprintf(&b, "- **Request delay**: %.1f-%.1f s\n", s.DelayMinSecs, s.DelayMaxSecs)
	fmt.Fprintf(&b, "- **Download delay**: %.1f-%.1f s\n", s.DownloadDelayMin, s.DownloadDelayMax)
	if s.Days > 0 {
		fmt.Fprintf(&b, "- **Date window**: last %d days\n", s.Days)
	}
	fmt.Fprintf(&b, "- **PDF only**: %s\n\n", yesNo(s.NoHTML))

	b.WriteString("## Download statistics\n\n")
	b.WriteString("### Totals\n")
	fmt.Fprintf(&b, "- **Announcements fetched**: %d\n", r.TotalFetched)
	fmt.Fprintf(&b, "- **Duplicates skipped**: %d\n", r.SkippedDuplicates)
	fmt.Fprintf(&b, "- **PDF announcements**: %d\n", r.TotalPDF)
	fmt.Fprintf(&b, "- **HTML announcements**: %d\n", r.TotalHTML)
	fmt.Fprintf(&b, "- **PDF downloads succeeded**: %d/%d\n", r.SuccessPDF, r.TotalPDF)
	fmt.Fprintf(&b, "- **HTML downloads succeeded**: %d/%d\n", r.SuccessHTML, r.TotalHTML)
	fmt.Fprintf(&b, "- **New downloads this run**: %d (ledger total: %d)\n\n", newDownloads, r.LedgerAfter)

	b.WriteString("### Per-ticker announcements\n")
	for _, code := range r.codes {
		ts := r.perTicker[code]
		fmt.Fprintf(&b, "- **%s**: %d total (PDF: %d, HTML: %d)\n", code, ts.Fetched, ts.PDF, ts.HTML)
	}

	b.WriteString("\n### Per-ticker downloads\n")
	for _, code := range r.codes {
		ts := r.perTicker[code]
		fmt.Fprintf(&b, "- **%s**: PDF %d/%d, HTML %d/%d\n", code, ts.PDFSuccess, ts.PDF, ts.HTMLSuccess, ts.HTML)
	}

	if len(r.DegradedBatches) > 0 {
		b.WriteString("\n### Degraded batches\n")
		b.WriteString("These batches stopped after repeated request failures; their tickers may have more announcements than fetched.\n\n")
		for _, batch := range r.DegradedBatches {
			fmt.Fprintf(&b, "- %s\n", batch)
		}
	}

	b.WriteString("\n---\n\n## Appendix\n\n### Requested tickers\n\n")
	if len(r.Requested) > 0 {
		writeCodeTable(&b, r.Requested)
	} else {
		b.WriteString("- all issuers (none specified)\n")
	}

	if len(r.Missing) > 0 {
		b.WriteString("\n### Tickers with no announcements fetched\n\n")
		writeCodeTable(&b, r.Missing)
	} else if len(r.Requested) > 0 {
		b.WriteString("\n### All requested tickers returned at least one announcement\n")
	}

	if r.Digest != "" {
		b.WriteString("\n---\n\n## Run digest\n\n")
		b.WriteString(r.Digest)
		if !strings.HasSuffix(r.Digest, "\n") {
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n---\n*Report generated at %s*\n", when)
	return b.String()
}

// Write renders the report into the save directory with a timestamped name
// and returns the path.
func (r *RunReport) Write() (string, error) {
	name := fmt.Sprintf("download_report_%s.md", r.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(r.SaveDir, name)
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}

func writeCodeTable(b *strings.Builder, codes []string) {
	headers := make([]string, codesPerRow)
	seps := make([]string, codesPerRow)
	for i := range headers {
		headers[i] = fmt.Sprintf("Col %d", i+1)
		seps[i] = " --- "
	}
	fmt.Fprintf(b, "| %s |\n", strings.Join(headers, " | "))
	fmt.Fprintf(b, "|%s|\n", strings.Join(seps, "|"))

	for i := 0; i < len(codes); i += codesPerRow {
		row := make([]string, codesPerRow)
		for j := 0; j < codesPerRow; j++ {
			if i+j < len(codes) {
				row[j] = codes[i+j]
			}
		}
		fmt.Fprintf(b, "| %s |\n", strings.Join(row, " | "))
	}
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
