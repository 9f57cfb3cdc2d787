/*
Package cninfo talks to the cninfo disclosure search API: a retry-wrapped
page fetcher and a pagination driver that walks ticker batches under a
global item cap.
*/
package cninfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cninfoarch/internal/retry"
	"cninfoarch/internal/ticker"
	"cninfoarch/internal/types"
)

const (
	// DefaultQueryURL is the paginated announcement search endpoint.
	DefaultQueryURL = "https://www.cninfo.com.cn/new/hisAnnouncement/query"
	// StaticBaseURL hosts announcement attachments (PDFs).
	StaticBaseURL = "https://static.cninfo.com.cn/"
	// DetailBaseURL serves rendered announcement detail pages.
	DetailBaseURL = "https://www.cninfo.com.cn/new/disclosure/detail"
)

// PageRequest describes one logical page fetch. An empty Stocks slice means
// market-wide, unfiltered pagination.
type PageRequest struct {
	Stocks    []ticker.Identity
	PageNum   int
	PageSize  int
	DateRange string // "YYYY-MM-DD~YYYY-MM-DD", or "" for unbounded
}

// Client issues search requests with a jittered per-attempt timeout and a
// linear-backoff retry schedule. Transport failures, bad status codes and
// malformed envelopes all share the same retry class.
type Client struct {
	QueryURL   string
	HTTP       *http.Client
	TimeoutMin time.Duration
	TimeoutMax time.Duration
	Policy     retry.Policy
	Logger     *slog.Logger
}

func (c *Client) queryURL() string {
	if c.QueryURL != "" {
		return c.QueryURL
	}
	return DefaultQueryURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

type envelope struct {
	Announcements []types.Announcement `json:"announcements"`
}

// FetchPage performs one page request. An empty slice with a nil error means
// genuine end of data; once retries are exhausted the returned error wraps
// retry.ErrRetriesExhausted so the caller can tell the two apart.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]types.Announcement, error) {
	form := c.buildForm(req)

	var records []types.Announcement
	err := retry.Do(c.Policy, func(attempt int) error {
		timeout := retry.Jitter(c.TimeoutMin, c.TimeoutMax)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.queryURL(), strings.NewReader(form.Encode()))
		if err != nil {
			return retry.Terminal(err)
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient().Do(httpReq)
		if err != nil {
			c.logger().Warn("search request failed",
				"page", req.PageNum, "attempt", attempt+1, "timeout", timeout, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("search returned status %d", resp.StatusCode)
			c.logger().Warn("search request failed",
				"page", req.PageNum, "attempt", attempt+1, "error", err)
			return err
		}

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			err = fmt.Errorf("malformed search response: %w", err)
			c.logger().Warn("search request failed",
				"page", req.PageNum, "attempt", attempt+1, "error", err)
			return err
		}

		records = env.Announcements
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", req.PageNum, err)
	}
	return records, nil
}

// buildForm renders the fixed parameter set of the search endpoint plus the
// request-specific stock filter. The exchange column discriminator follows
// the first ticker's suffix.
func (c *Client) buildForm(req PageRequest) url.Values {
	form := url.Values{
		"stock":     {""},
		"pageNum":   {strconv.Itoa(req.PageNum)},
		"pageSize":  {strconv.Itoa(req.PageSize)},
		"tabName":   {"fulltext"},
		"plate":     {""},
		"seDate":    {req.DateRange},
		"column":    {"szse"},
		"category":  {""},
		"searchkey": {""},
		"secid":     {""},
		"sortName":  {""},
		"sortType":  {""},
		"isHLtitle": {"true"},
	}

	if len(req.Stocks) > 0 {
		pairs := make([]string, 0, len(req.Stocks))
		for _, s := range req.Stocks {
			pairs = append(pairs, s.Code+","+s.OrgID)
		}
		form.Set("stock", strings.Join(pairs, ";"))
		if req.Stocks[0].Suffix == "SH" {
			form.Set("column", "sse")
		}
	}

	return form
}

// DateRange renders the seDate window covering the last n days, or "" when
// n is not positive.
func DateRange(now time.Time, days int) string {
	if days <= 0 {
		return ""
	}
	end := now.UTC()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	return start.Format("2006-01-02") + "~" + end.Format("2006-01-02")
}
