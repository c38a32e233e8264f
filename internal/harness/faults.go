package harness

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/store"
)

// ErrInjectedFailure is returned by commits failed with fail_commits.
var ErrInjectedFailure = errors.New("injected commit failure")

// faultStore wraps the SQLite store with commit failure injection and
// per-writer commit counts.
type faultStore struct {
	*store.Store

	mu       sync.Mutex
	failNext int
	commits  map[string]int
}

func newFaultStore(st *store.Store) *faultStore {
	return &faultStore{Store: st, commits: make(map[string]int)}
}

func (f *faultStore) failCommits(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext += n
}

// Commit fails while injected failures remain, and otherwise delegates.
func (f *faultStore) Commit(ctx context.Context, b attendance.Batch) (attendance.CommitResult, error) {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return attendance.CommitResult{}, ErrInjectedFailure
	}
	f.mu.Unlock()

	res, err := f.Store.Commit(ctx, b)
	if err != nil {
		return res, err
	}
	if res.Applied {
		f.mu.Lock()
		f.commits[b.Writer]++
		f.mu.Unlock()
	}
	return res, nil
}

// commitsBy returns how many applied commits writer made.
func (f *faultStore) commitsBy(writer string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[writer]
}
