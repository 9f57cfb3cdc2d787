package report

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cninfoarch/internal/types"
)

func sampleReport() *RunReport {
	fetched := []types.Announcement{
		{ID: "1", SecCode: "000001", AdjunctURL: "a.pdf"},
		{ID: "2", SecCode: "000001", AdjunctURL: "b.pdf"},
		{ID: "3", SecCode: "000001"},
		{ID: "4", SecCode: "600000", AdjunctURL: "c.pdf"},
	}
	statuses := []types.ItemStatus{
		{ID: "1", SecCode: "000001", Kind: types.KindPDF, Outcome: types.OutcomeDownloaded},
		{ID: "2", SecCode: "000001", Kind: types.KindPDF, Outcome: types.OutcomeFailed},
		{ID: "3", SecCode: "000001", Kind: types.KindHTML, Outcome: types.OutcomeDownloaded},
		{ID: "4", SecCode: "600000", Kind: types.KindPDF, Outcome: types.OutcomeDownloaded},
	}
	return Build(fetched, statuses, []string{"000001.SZ", "600000.SH", "300750.SZ"})
}

func TestBuildCounters(t *testing.T) {
	r := sampleReport()

	assert.Equal(t, 4, r.TotalFetched)
	assert.Equal(t, 3, r.TotalPDF)
	assert.Equal(t, 1, r.TotalHTML)
	assert.Equal(t, 2, r.SuccessPDF)
	assert.Equal(t, 1, r.SuccessHTML)

	ts := r.Ticker("000001")
	require.NotNil(t, ts)
	assert.Equal(t, 3, ts.Fetched)
	assert.Equal(t, 2, ts.PDF)
	assert.Equal(t, 1, ts.HTML)
	assert.Equal(t, 1, ts.PDFSuccess)
	assert.Equal(t, 1, ts.HTMLSuccess)
	assert.Equal(t, 1, ts.Failed)
}

func TestBuildMissingMatchesOnCodePart(t *testing.T) {
	r := sampleReport()
	// fetched records carry bare codes, requested tickers carry suffixes
	assert.Equal(t, []string{"300750.SZ"}, r.Missing)
}

func TestRender(t *testing.T) {
	r := sampleReport()
	r.SaveDir = "downloads"
	r.SkippedDuplicates = 7
	r.LedgerBefore = 10
	r.LedgerAfter = 13
	r.DegradedBatches = []string{"000001.SZ~000030.SZ"}
	r.Digest = "- quiet week\n"

	out := r.Render()
	assert.Contains(t, out, "# Announcement Download Report")
	assert.Contains(t, out, "**Announcements fetched**: 4")
	assert.Contains(t, out, "**Duplicates skipped**: 7")
	assert.Contains(t, out, "**PDF downloads succeeded**: 2/3")
	assert.Contains(t, out, "**New downloads this run**: 3 (ledger total: 13)")
	assert.Contains(t, out, "- **000001**: 3 total (PDF: 2, HTML: 1)")
	assert.Contains(t, out, "000001.SZ~000030.SZ")
	assert.Contains(t, out, "## Run digest")
	assert.Contains(t, out, "- quiet week")
	assert.Contains(t, out, "### Tickers with no announcements fetched")
	assert.Contains(t, out, "300750.SZ")
}

func TestRenderMarketWide(t *testing.T) {
	r := Build(nil, nil, nil)
	out := r.Render()
	assert.Contains(t, out, "all issuers")
	assert.NotContains(t, out, "## Run digest")
}

func TestWrite(t *testing.T) {
	r := sampleReport()
	r.SaveDir = t.TempDir()

	path, err := r.Write()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimPrefix(path, r.SaveDir+string(os.PathSeparator)), "download_report_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Render(), string(data))
}

func TestWriteCodeTableRows(t *testing.T) {
	var b strings.Builder
	codes := []string{"1", "2", "3", "4", "5", "6", "7"}
	writeCodeTable(&b, codes)

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	// header, separator and two data rows of six columns
	require.Len(t, lines, 4)
	assert.Equal(t, "| 1 | 2 | 3 | 4 | 5 | 6 |", lines[2])
	assert.Equal(t, "| 7 |  |  |  |  |  |", lines[3])
}
