/*
Package ledger persists the set of announcement ids that have already been
archived, so repeat runs skip previously downloaded documents. The persisted
sidecar is the single source of truth for "already archived"; a missing or
corrupt sidecar degrades to an empty ledger with a warning, never an error,
accepting occasional re-downloads over losing the run.
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileName is the hidden sidecar kept inside the save directory.
const FileName = ".downloaded_ids.json"

type state struct {
	DownloadedIDs []string `json:"downloaded_ids"`
	LastUpdate    string   `json:"last_update"`
	TotalCount    int      `json:"total_count"`
}

// Ledger is a mutex-guarded id set. Ids are only ever added during a run.
type Ledger struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	path string
}

// Load reads the sidecar from saveDir. Any read or decode failure yields an
// empty ledger and a logged warning.
func Load(saveDir string) *Ledger {
	l := &Ledger{
		ids:  make(map[string]struct{}),
		path: filepath.Join(saveDir, FileName),
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read ledger, starting empty", "path", l.path, "error", err)
		}
		return l
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("ledger is corrupt, starting empty", "path", l.path, "error", err)
		return l
	}

	for _, id := range s.DownloadedIDs {
		if id != "" {
			l.ids[id] = struct{}{}
		}
	}
	return l
}

// Contains reports whether id has already been archived.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Record marks id as archived. Empty ids are ignored.
func (l *Ledger) Record(id string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
}

// Len reports the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Path returns the sidecar location.
func (l *Ledger) Path() string {
	return l.path
}

// Persist overwrites the sidecar with the current id set. The write goes
// through a temp file and rename so a crash mid-persist leaves either the
// old state or the new one, and the loader's corruption tolerance covers a
// torn temp file on the next run.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	sort.Strings(ids)

	s := state{
		DownloadedIDs: ids,
		LastUpdate:    time.Now().UTC().Format("2006-01-02 15:04:05"),
		TotalCount:    len(ids),
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace ledger %s: %w", l.path, err)
	}
	return nil
}
