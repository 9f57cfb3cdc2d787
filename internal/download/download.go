/*
Package download archives announcement documents. PDFs are fetched from the
static asset host with content validation and a retry schedule; rendered
HTML detail pages are fetched once, charset-normalized and written as text.
Work is partitioned by ticker so no two workers ever target the same file.
*/
package download

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cninfoarch/internal/cninfo"
	"cninfoarch/internal/ledger"
	"cninfoarch/internal/retry"
	"cninfoarch/internal/types"
)

var pdfMagic = []byte("%PDF")

// Executor downloads a run's accepted announcements and records per-item
// outcomes. Successful downloads are recorded in the ledger before the
// status is emitted.
type Executor struct {
	SaveDir    string
	StaticBase string // defaults to cninfo.StaticBaseURL
	DetailBase string // defaults to cninfo.DetailBaseURL
	HTTP       *http.Client
	TimeoutMin time.Duration
	TimeoutMax time.Duration
	Policy     retry.Policy // PDF transport retries only
	DelayMin   time.Duration
	DelayMax   time.Duration
	Workers    int // ticker groups processed concurrently; 1 means sequential
	NoHTML     bool
	Ledger     *ledger.Ledger
	Sleep      func(time.Duration)
	Logger     *slog.Logger
}

func (e *Executor) staticBase() string {
	if e.StaticBase != "" {
		return e.StaticBase
	}
	return cninfo.StaticBaseURL
}

func (e *Executor) detailBase() string {
	if e.DetailBase != "" {
		return e.DetailBase
	}
	return cninfo.DetailBaseURL
}

func (e *Executor) httpClient() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return http.DefaultClient
}

func (e *Executor) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return 1
}

func (e *Executor) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Run processes all items and returns one status per item. Items are grouped
// by ticker; each group runs sequentially on one worker so target paths,
// which are ticker-scoped, are never written concurrently. Group workers run
// under a semaphore; Workers of 1 keeps one download in flight at a time.
func (e *Executor) Run(ctx context.Context, items []types.Announcement) []types.ItemStatus {
	groups, order := groupByTicker(items)

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers())
	statusCh := make(chan types.ItemStatus, len(items))

	for _, code := range order {
		group := groups[code]
		wg.Add(1)
		sem <- struct{}{}

		go func(code string, group []types.Announcement) {
			defer wg.Done()
			defer func() { <-sem }()

			for i, item := range group {
				statusCh <- e.downloadOne(ctx, item)
				if i < len(group)-1 {
					e.sleep(retry.Jitter(e.DelayMin, e.DelayMax))
				}
			}
		}(code, group)
	}

	go func() {
		wg.Wait()
		close(statusCh)
	}()

	statuses := make([]types.ItemStatus, 0, len(items))
	for st := range statusCh {
		statuses = append(statuses, st)
	}
	return statuses
}

func (e *Executor) downloadOne(ctx context.Context, item types.Announcement) types.ItemStatus {
	if item.Kind() == types.KindPDF {
		return e.downloadPDF(ctx, item)
	}
	if e.NoHTML {
		return types.ItemStatus{
			ID: item.ID, SecCode: item.SecCode, Kind: types.KindHTML,
			Outcome: types.OutcomeSkipped, Reason: "html downloads disabled",
		}
	}
	return e.downloadHTML(ctx, item)
}

// downloadPDF performs a content-validated fetch. Wrong status, empty body
// and missing PDF magic are terminal; transport failures retry with the
// executor's policy.
func (e *Executor) downloadPDF(ctx context.Context, item types.Announcement) types.ItemStatus {
	status := types.ItemStatus{ID: item.ID, SecCode: item.SecCode, Kind: types.KindPDF}
	target := TargetPath(e.SaveDir, item)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		return status
	}

	srcURL := e.staticBase() + item.AdjunctURL
	err := retry.Do(e.Policy, func(attempt int) error {
		timeout := retry.Jitter(e.TimeoutMin, e.TimeoutMax)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, srcURL, nil)
		if err != nil {
			return retry.Terminal(err)
		}
		resp, err := e.httpClient().Do(req)
		if err != nil {
			e.logger().Warn("pdf request failed, will retry",
				"title", item.Title, "attempt", attempt+1, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return retry.Terminal(&StatusError{Code: resp.StatusCode})
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return retry.Terminal(ErrEmptyBody)
		}
		if !bytes.HasPrefix(body, pdfMagic) {
			return retry.Terminal(ErrNotPDF)
		}

		if err := os.WriteFile(target, body, 0o644); err != nil {
			return retry.Terminal(err)
		}
		info, err := os.Stat(target)
		if err != nil || info.Size() == 0 {
			return retry.Terminal(ErrVerifyFailed)
		}

		e.logger().Info("pdf archived", "path", target, "bytes", info.Size())
		return nil
	})
	if err != nil {
		status.Outcome = types.OutcomeFailed
		status.Reason = err.Error()
		e.logger().Warn("pdf download failed", "title", item.Title, "error", err)
		return status
	}

	e.Ledger.Record(item.ID)
	status.Outcome = types.OutcomeDownloaded
	status.Path = target
	return status
}

func groupByTicker(items []types.Announcement) (map[string][]types.Announcement, []string) {
	groups := make(map[string][]types.Announcement)
	var order []string
	for _, item := range items {
		code := item.SecCode
		if code == "" {
			code = "unknown"
		}
		if _, seen := groups[code]; !seen {
			order = append(order, code)
		}
		groups[code] = append(groups[code], item)
	}
	return groups, order
}
