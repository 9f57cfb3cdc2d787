package types

import (
	"strconv"
	"strings"
	"time"
)

// DocumentKind tells the download executor how to archive an announcement.
type DocumentKind string

const (
	KindPDF  DocumentKind = "pdf"
	KindHTML DocumentKind = "html"
)

// Announcement is a single disclosure record as returned by the cninfo
// search API. Records are immutable once fetched.
type Announcement struct {
	ID         string           `json:"announcementId"`
	SecCode    string           `json:"secCode"`
	OrgID      string           `json:"orgId"`
	Title      string           `json:"announcementTitle"`
	Time       AnnouncementTime `json:"announcementTime"`
	AdjunctURL string           `json:"adjunctUrl"`
}

// AnnouncementTime carries the raw announcementTime value. The API serves it
// either as a Unix timestamp (seconds or milliseconds, quoted or not) or as a
// date string, so the raw form is kept for URL templating and normalized on
// demand.
type AnnouncementTime string

func (t *AnnouncementTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*t = AnnouncementTime(s)
	return nil
}

func (t AnnouncementTime) String() string {
	return string(t)
}

// Kind resolves the document kind: a .pdf adjunct reference (case-insensitive)
// is a PDF, everything else is archived as a rendered HTML detail page.
func (a Announcement) Kind() DocumentKind {
	if strings.HasSuffix(strings.ToLower(a.AdjunctURL), ".pdf") {
		return KindPDF
	}
	return KindHTML
}

// PublishedDate normalizes announcementTime to a YYYY-MM-DD string. Numeric
// values are Unix timestamps (milliseconds when larger than 1e12), anything
// else is treated as a date string and truncated to its first 10 characters.
// Returns "" when the record has no usable time.
func (a Announcement) PublishedDate() string {
	raw := string(a.Time)
	if raw == "" {
		return ""
	}
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ts > 1_000_000_000_000 {
			ts /= 1000
		}
		return time.Unix(ts, 0).UTC().Format("2006-01-02")
	}
	if len(raw) > 10 {
		return raw[:10]
	}
	return raw
}

// Outcome is the terminal state of one download task.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// ItemStatus is the per-item result record keyed by announcement id. The run
// report consumes these instead of re-checking the filesystem.
type ItemStatus struct {
	ID      string       `json:"id"`
	SecCode string       `json:"sec_code"`
	Kind    DocumentKind `json:"kind"`
	Outcome Outcome      `json:"outcome"`
	Path    string       `json:"path,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}
