/*
Package retry runs operations that may fail transiently, retrying with
linearly increasing backoff. It is shared by the search fetcher and the PDF
downloader, which differ only in backoff base and error classification.
*/
package retry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrRetriesExhausted wraps the last error once the attempt budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy describes one retry schedule. The wait before re-attempt i
// (zero-based) is BaseDelay * (i + 1).
type Policy struct {
	MaxRetries int           // re-attempts after the first try
	BaseDelay  time.Duration // linear backoff base
	Sleep      func(time.Duration)
}

func (p Policy) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

type terminalError struct {
	err error
}

func (t terminalError) Error() string { return t.err.Error() }
func (t terminalError) Unwrap() error { return t.err }

// Terminal marks err as not worth retrying; Do returns it unwrapped on the
// attempt that produced it.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return terminalError{err: err}
}

// Do invokes op until it succeeds, returns a terminal error, or the attempt
// budget runs out. The returned error wraps ErrRetriesExhausted in the last
// case so callers can tell "gave up" apart from "structural failure".
func Do(p Policy, op func(attempt int) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err = op(attempt)
		if err == nil {
			return nil
		}
		var term terminalError
		if errors.As(err, &term) {
			return term.err
		}
		if attempt < p.MaxRetries {
			p.sleep(p.BaseDelay * time.Duration(attempt+1))
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxRetries+1, err)
}

// Jitter draws a duration uniformly from [min, max]. Used for per-attempt
// request timeouts and for the polite delays between requests.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}
