// Package ledger implements the Progress Ledger: a durable, crash-safe
// JSON checkpoint of one batch run, guarded by an exclusive file lock so
// two batch runs can never share a reference store concurrently.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/fergidotcom/reference-refinement-sub003/internal/atomicfile"
)

// ErrLocked is returned by Begin/LoadOrNew when another process already
// holds the ledger's lock file.
var ErrLocked = errors.New("ledger_locked")

const (
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusDone    = "done"
)

// ErrorEntry records one per-reference failure.
type ErrorEntry struct {
	ID    int       `json:"id"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Stats accumulates the run-wide counters spec.md §3 requires.
type Stats struct {
	QueriesGenerated int `json:"queries_generated"`
	SearchesRun      int `json:"searches_run"`
	RanksCompleted   int `json:"ranks_completed"`
	AutoFinalized    int `json:"auto_finalized"`
	Warnings         int `json:"warnings"`
}

// BatchProgress is the JSON document persisted to the ledger file.
type BatchProgress struct {
	BatchID    string       `json:"batch_id"`
	StartedAt  time.Time    `json:"started_at"`
	ConfigHash string       `json:"config_hash"`
	Completed  []int        `json:"completed"`
	Errors     []ErrorEntry `json:"errors"`
	Stats      Stats        `json:"stats"`
	Status     string       `json:"status"`
}

// Ledger is a live handle on one batch run's progress file, held for the
// duration of the run.
type Ledger struct {
	path string
	lock *flock.Flock

	mu        sync.Mutex
	progress  BatchProgress
	completed map[int]bool
}

// Begin starts a brand-new batch run at path, always resetting progress
// even if a prior (done) ledger exists there. Used with --force.
func Begin(path, configHash string) (*Ledger, error) {
	l, err := acquire(path)
	if err != nil {
		return nil, err
	}
	l.progress = BatchProgress{
		BatchID:    uuid.NewString(),
		StartedAt:  now(),
		ConfigHash: configHash,
		Status:     StatusRunning,
	}
	l.completed = map[int]bool{}
	if err := l.flush(); err != nil {
		_ = l.lock.Unlock()
		return nil, err
	}
	return l, nil
}

// LoadOrNew acquires the ledger at path. If a ledger file already exists
// there it is loaded (enabling --resume); otherwise a fresh one is
// created, identical to Begin.
func LoadOrNew(path, configHash string) (l *Ledger, resumed bool, err error) {
	l, err = acquire(path)
	if err != nil {
		return nil, false, err
	}

	existing, readErr := readProgress(path)
	if readErr != nil {
		l.progress = BatchProgress{
			BatchID:    uuid.NewString(),
			StartedAt:  now(),
			ConfigHash: configHash,
			Status:     StatusRunning,
		}
		l.completed = map[int]bool{}
		if err = l.flush(); err != nil {
			_ = l.lock.Unlock()
			return nil, false, err
		}
		return l, false, nil
	}

	l.progress = existing
	l.progress.Status = StatusRunning
	l.completed = make(map[int]bool, len(existing.Completed))
	for _, id := range existing.Completed {
		l.completed[id] = true
	}
	return l, true, nil
}

func acquire(path string) (*Ledger, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ledger: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Ledger{path: path, lock: fl}, nil
}

func readProgress(path string) (BatchProgress, error) {
	var p BatchProgress
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("ledger: decode %s: %w", path, err)
	}
	return p, nil
}

// Completed reports whether id was already recorded as done in a prior
// pass, so the orchestrator can skip it on resume.
func (l *Ledger) Completed(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed[id]
}

// BatchID returns the current run's identifier, used as the BATCH_v
// provenance tag's version source is separate (orchestrator config) but
// this is useful for logging correlation.
func (l *Ledger) BatchID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress.BatchID
}

// Record marks id as completed, merges statDelta into the running totals,
// and checkpoints the ledger to disk (write-temp, fsync, rename).
func (l *Ledger) Record(id int, statDelta Stats) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.completed[id] {
		l.completed[id] = true
		l.progress.Completed = append(l.progress.Completed, id)
	}
	addStats(&l.progress.Stats, statDelta)
	return l.flush()
}

// RecordError marks id as completed (so a resumed run does not retry it
// automatically — that requires --force) and appends a structured error
// entry.
func (l *Ledger) RecordError(id int, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.completed[id] {
		l.completed[id] = true
		l.progress.Completed = append(l.progress.Completed, id)
	}
	l.progress.Errors = append(l.progress.Errors, ErrorEntry{
		ID:    id,
		Error: cause.Error(),
		At:    now(),
	})
	return l.flush()
}

// RecentErrors returns up to n of the most recently recorded errors, for
// the end-of-run summary report (spec.md §7: "tail of the 20 most recent
// errors").
func (l *Ledger) RecentErrors(n int) []ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.progress.Errors) <= n {
		out := make([]ErrorEntry, len(l.progress.Errors))
		copy(out, l.progress.Errors)
		return out
	}
	out := make([]ErrorEntry, n)
	copy(out, l.progress.Errors[len(l.progress.Errors)-n:])
	return out
}

// Stats returns a copy of the current running counters.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress.Stats
}

// Pause marks the run paused (e.g. on search quota exhaustion) and
// checkpoints, without releasing the lock — the next invocation must
// still use --resume or --force.
func (l *Ledger) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress.Status = StatusPaused
	return l.flush()
}

// Close marks the run done (or leaves it paused, if status was already
// set that way by Pause) and releases the exclusive lock.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.progress.Status == StatusRunning {
		l.progress.Status = StatusDone
	}
	flushErr := l.flush()
	l.mu.Unlock()

	unlockErr := l.lock.Unlock()
	return errors.Join(flushErr, unlockErr)
}

func (l *Ledger) flush() error {
	data, err := json.MarshalIndent(l.progress, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	if err := atomicfile.Write(l.path, data, 0o644); err != nil {
		return fmt.Errorf("ledger: write %s: %w", l.path, err)
	}
	return nil
}

func addStats(dst *Stats, delta Stats) {
	dst.QueriesGenerated += delta.QueriesGenerated
	dst.SearchesRun += delta.SearchesRun
	dst.RanksCompleted += delta.RanksCompleted
	dst.AutoFinalized += delta.AutoFinalized
	dst.Warnings += delta.Warnings
}

// now is indirected so tests can stub the clock without a full time
// abstraction layer.
var now = time.Now
