package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cninfoarch/internal/cninfo"
	"cninfoarch/internal/ledger"
	"cninfoarch/internal/report"
	"cninfoarch/internal/retry"
	"cninfoarch/internal/ticker"
	"cninfoarch/internal/types"
)

// Two tickers, ten announcements on the API, half with PDF attachments. The
// whole fetch-filter-download-persist path runs twice against the same save
// directory; the second run must fetch everything again but download nothing.
func TestFetchDownloadPersistPipeline(t *testing.T) {
	stocks := []ticker.Identity{
		{Code: "000001", Suffix: "SZ", OrgID: "gssz0000001"},
		{Code: "600000", Suffix: "SH", OrgID: "gssh0600000"},
	}

	var all []types.Announcement
	for i := 0; i < 10; i++ {
		a := types.Announcement{
			ID:      fmt.Sprintf("ann-%d", i),
			SecCode: stocks[i%2].Code,
			OrgID:   stocks[i%2].OrgID,
			Title:   fmt.Sprintf("Disclosure %d", i),
			Time:    "1704067200000",
		}
		if i < 5 {
			a.AdjunctURL = fmt.Sprintf("finalpage/2024/ann-%d.pdf", i)
		}
		all = append(all, a)
	}

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("pageNum") != "1" {
			w.Write([]byte(`{"announcements": []}`))
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"announcements": all}))
	}))
	defer api.Close()

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".pdf") {
			w.Write([]byte("%PDF-1.7 " + r.URL.Path))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head></head><body>detail %s</body></html>", r.URL.Query().Get("announcementId"))
	}))
	defer docs.Close()

	saveDir := t.TempDir()

	run := func() (*cninfo.FetchResult, []types.ItemStatus, *ledger.Ledger) {
		led := ledger.Load(saveDir)
		p := &cninfo.Paginator{
			Client: &cninfo.Client{
				QueryURL:   api.URL,
				TimeoutMin: time.Second,
				TimeoutMax: 2 * time.Second,
				Policy:     retry.Policy{MaxRetries: 1, Sleep: func(time.Duration) {}},
			},
			Dedup:    led,
			PageSize: 30,
			MaxItems: 10,
			Sleep:    func(time.Duration) {},
		}
		res := p.Run(context.Background(), stocks)

		e := &Executor{
			SaveDir:    saveDir,
			StaticBase: docs.URL + "/",
			DetailBase: docs.URL + "/detail",
			TimeoutMin: time.Second,
			TimeoutMax: 2 * time.Second,
			Policy:     retry.Policy{MaxRetries: 1, Sleep: func(time.Duration) {}},
			Ledger:     led,
			Sleep:      func(time.Duration) {},
		}
		statuses := e.Run(context.Background(), res.Accepted)
		require.NoError(t, led.Persist())
		return res, statuses, led
	}

	res, statuses, led := run()
	require.Len(t, res.Accepted, 10)
	require.Len(t, statuses, 10)
	assert.Equal(t, 0, res.SkippedDuplicates)
	pdf, html := 0, 0
	for _, st := range statuses {
		require.Equal(t, types.OutcomeDownloaded, st.Outcome, "item %s", st.ID)
		assert.FileExists(t, st.Path)
		if st.Kind == types.KindPDF {
			pdf++
		} else {
			html++
		}
	}
	assert.Equal(t, 5, pdf)
	assert.Equal(t, 5, html)
	assert.Equal(t, 10, led.Len())

	rep := report.Build(res.Accepted, statuses, []string{"000001.SZ", "600000.SH"})
	assert.Equal(t, 10, rep.TotalFetched)
	assert.Equal(t, 5, rep.SuccessPDF)
	assert.Equal(t, 5, rep.SuccessHTML)
	assert.Empty(t, rep.Missing)

	// second run against the persisted ledger: all ten are duplicates
	res2, statuses2, led2 := run()
	assert.Empty(t, res2.Accepted)
	assert.Equal(t, 10, res2.SkippedDuplicates)
	assert.Empty(t, statuses2)
	assert.Equal(t, 10, led2.Len())
}
