package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"cninfoarch/internal/retry"
	"cninfoarch/internal/types"
)

// downloadHTML archives the rendered detail page for a record without a PDF
// attachment. Single attempt, no retry: a failed page is reported
// immediately. Content that turns out to be a PDF is skipped, not failed.
func (e *Executor) downloadHTML(ctx context.Context, item types.Announcement) types.ItemStatus {
	status := types.ItemStatus{ID: item.ID, SecCode: item.SecCode, Kind: types.KindHTML}
	target := TargetPath(e.SaveDir, item)

	srcURL, err := e.htmlSourceURL(item)
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		return status
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		return status
	}

	attemptCtx, cancel := context.WithTimeout(ctx, retry.Jitter(e.TimeoutMin, e.TimeoutMax))
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, srcURL, nil)
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		return status
	}
	resp, err := e.httpClient().Do(req)
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		e.logger().Warn("html download failed", "title", item.Title, "error", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Outcome = types.OutcomeFailed
		status.Reason = (&StatusError{Code: resp.StatusCode}).Error()
		return status
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		return status
	}

	contentType := resp.Header.Get("Content-Type")
	if isPDFContent(contentType, body) {
		// Mis-served PDF content: a non-download, not an error.
		e.logger().Info("skipping pdf content served on detail page", "title", item.Title)
		status.Outcome = types.OutcomeSkipped
		status.Reason = "server returned pdf content"
		return status
	}

	encName := detectEncoding(body, contentType)
	text, canonical, err := decodeBody(body, encName)
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = fmt.Sprintf("decode as %s: %v", encName, err)
		return status
	}
	text = injectCharset(text, canonical)

	out, err := encodeBody(text, canonical)
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = fmt.Sprintf("encode as %s: %v", canonical, err)
		return status
	}
	if err := os.WriteFile(target, out, 0o644); err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		return status
	}

	e.logger().Info("html archived", "path", target, "charset", canonical)
	e.Ledger.Record(item.ID)
	status.Outcome = types.OutcomeDownloaded
	status.Path = target
	return status
}

// htmlSourceURL prefers a non-PDF adjunct reference and falls back to the
// templated disclosure-detail URL.
func (e *Executor) htmlSourceURL(item types.Announcement) (string, error) {
	if item.AdjunctURL != "" {
		return e.staticBase() + item.AdjunctURL, nil
	}
	if item.ID == "" {
		return "", ErrNoSourceURL
	}
	q := url.Values{
		"plate":            {""},
		"orgId":            {item.OrgID},
		"stock":            {item.SecCode},
		"announcementId":   {item.ID},
		"announcementTime": {item.Time.String()},
	}
	return e.detailBase() + "?" + q.Encode(), nil
}

func isPDFContent(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(body, pdfMagic)
}

// detectEncoding mirrors the archival policy: sniff the body first, and when
// the sniffer comes back empty or with a low-confidence default, trust the
// content-type charset, else assume UTF-8.
func detectEncoding(body []byte, contentType string) string {
	name := ""
	if result, err := chardet.NewHtmlDetector().DetectBest(body); err == nil {
		name = result.Charset
	}

	switch strings.ToLower(name) {
	case "", "iso-8859-1", "ascii", "windows-1252":
		if cs := charsetFromContentType(contentType); cs != "" {
			return cs
		}
		return "utf-8"
	}
	return name
}

func charsetFromContentType(contentType string) string {
	lower := strings.ToLower(contentType)
	_, after, found := strings.Cut(lower, "charset=")
	if !found {
		return ""
	}
	cs := strings.TrimSpace(after)
	if i := strings.IndexByte(cs, ';'); i >= 0 {
		cs = cs[:i]
	}
	return strings.Trim(cs, `"'`)
}

// lookupEncoding resolves a charset label, defaulting to UTF-8 for unknown
// labels rather than failing the download.
func lookupEncoding(name string) (encoding.Encoding, string) {
	if enc, canonical := charset.Lookup(name); enc != nil {
		return enc, canonical
	}
	return unicode.UTF8, "utf-8"
}

func decodeBody(body []byte, name string) (string, string, error) {
	enc, canonical := lookupEncoding(name)
	if canonical == "utf-8" {
		return string(body), canonical, nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", canonical, err
	}
	return string(decoded), canonical, nil
}

func encodeBody(text, canonical string) ([]byte, error) {
	if canonical == "utf-8" {
		return []byte(text), nil
	}
	enc, _ := lookupEncoding(canonical)
	return enc.NewEncoder().Bytes([]byte(text))
}

// injectCharset adds a document-level charset declaration when none appears
// within the first kilobyte, so the archived file re-opens with the encoding
// it was saved in.
func injectCharset(text, canonical string) string {
	probe := text
	if len(probe) > 1000 {
		probe = probe[:1000]
	}
	if strings.Contains(strings.ToLower(probe), "charset=") {
		return text
	}
	if !strings.Contains(text, "<head>") {
		return text
	}
	meta := fmt.Sprintf("<head>\n<meta charset=%q>", canonical)
	return strings.Replace(text, "<head>", meta, 1)
}
