package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"cninfoarch/internal/types"
)

func htmlItem(id string) types.Announcement {
	return types.Announcement{
		ID:      id,
		SecCode: "000001",
		OrgID:   "gssz0000001",
		Title:   "Notice " + id,
		Time:    "1704067200000",
	}
}

func TestDownloadHTML(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head></head><body>公告正文</body></html>"))
	}))
	defer srv.Close()

	e := testExecutor(t, srv.URL)
	st := e.downloadHTML(context.Background(), htmlItem("h1"))

	require.Equal(t, types.OutcomeDownloaded, st.Outcome)
	assert.Contains(t, query, "announcementId=h1")
	assert.Contains(t, query, "orgId=gssz0000001")
	assert.Contains(t, query, "announcementTime=1704067200000")

	data, err := os.ReadFile(st.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "公告正文")
	assert.Contains(t, string(data), `<meta charset="utf-8">`)
	assert.True(t, e.Ledger.Contains("h1"))
}

func TestDownloadHTMLKeepsExistingCharsetDeclaration(t *testing.T) {
	body := `<html><head><meta charset="utf-8"></head><body>ok</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	e := testExecutor(t, srv.URL)
	st := e.downloadHTML(context.Background(), htmlItem("h1"))

	require.Equal(t, types.OutcomeDownloaded, st.Outcome)
	data, err := os.ReadFile(st.Path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestDownloadHTMLGBKRoundTrip(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("<html><head></head><body>深圳证券交易所公告全文内容测试页面</body></html>"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		w.Write(gbk)
	}))
	defer srv.Close()

	e := testExecutor(t, srv.URL)
	st := e.downloadHTML(context.Background(), htmlItem("h1"))
	require.Equal(t, types.OutcomeDownloaded, st.Outcome)

	data, err := os.ReadFile(st.Path)
	require.NoError(t, err)

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "深圳证券交易所")
	assert.Contains(t, strings.ToLower(string(decoded)), "charset=")
}

func TestDownloadHTMLSkipsMisservedPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	e := testExecutor(t, srv.URL)
	st := e.downloadHTML(context.Background(), htmlItem("h1"))

	assert.Equal(t, types.OutcomeSkipped, st.Outcome)
	assert.Equal(t, "server returned pdf content", st.Reason)
	assert.False(t, e.Ledger.Contains("h1"))
}

func TestDownloadHTMLSingleAttempt(t *testing.T) {
	calls := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := testExecutor(t, srv.URL)
	st := e.downloadHTML(context.Background(), htmlItem("h1"))

	assert.Equal(t, types.OutcomeFailed, st.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDownloadHTMLNoSource(t *testing.T) {
	e := testExecutor(t, "http://127.0.0.1:0")
	st := e.downloadHTML(context.Background(), types.Announcement{SecCode: "000001"})

	assert.Equal(t, types.OutcomeFailed, st.Outcome)
	assert.Equal(t, ErrNoSourceURL.Error(), st.Reason)
}

func TestHTMLSourceURLPrefersAdjunct(t *testing.T) {
	e := &Executor{StaticBase: "http://static.example/", DetailBase: "http://detail.example/d"}

	src, err := e.htmlSourceURL(types.Announcement{AdjunctURL: "finalpage/x.shtml"})
	require.NoError(t, err)
	assert.Equal(t, "http://static.example/finalpage/x.shtml", src)

	src, err = e.htmlSourceURL(types.Announcement{ID: "42", SecCode: "000001"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, "http://detail.example/d?"))
}

func TestCharsetFromContentType(t *testing.T) {
	assert.Equal(t, "gbk", charsetFromContentType("text/html; charset=GBK"))
	assert.Equal(t, "utf-8", charsetFromContentType(`text/html; charset="utf-8"`))
	assert.Equal(t, "", charsetFromContentType("text/html"))
}

func TestInjectCharset(t *testing.T) {
	out := injectCharset("<html><head></head></html>", "gbk")
	assert.Contains(t, out, `<meta charset="gbk">`)

	in := `<html><head><meta charset="utf-8"></head></html>`
	assert.Equal(t, in, injectCharset(in, "gbk"))

	noHead := "<html><body>x</body></html>"
	assert.Equal(t, noHead, injectCharset(noHead, "gbk"))
}
