package server

import (
	"io"
	"sync"

	"github.com/loykin/ranktime/internal/export"
	"github.com/loykin/ranktime/internal/ingest"
	"github.com/loykin/ranktime/internal/report"
)

// Registry guards an ingest.Set for concurrent HTTP access. Every stream it
// holds is sorted and has current stats.
type Registry struct {
	mu  sync.RWMutex
	set *ingest.Set
}

func NewRegistry() *Registry {
	return &Registry{set: ingest.NewSet()}
}

// Ingest parses r into a scratch set and merges it only when parsing
// succeeds, so a rejected body leaves the registry unchanged. The affected
// streams are re-sorted and their stats recomputed.
func (r *Registry) Ingest(in io.Reader, opts ingest.Options) (ingest.Result, error) {
	scratch := ingest.NewSet()
	res, err := ingest.Read(in, scratch, opts)
	if err != nil {
		return res, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rank := range scratch.Ranks() {
		st, _ := scratch.Get(rank)
		for _, ev := range st.Events() {
			r.set.Add(rank, ev)
		}
	}
	if len(res.Ranks) == 0 {
		return res, nil
	}
	return res, r.set.Prepare(true, res.Ranks...)
}

func (r *Registry) Ranks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Ranks()
}

// Summary reports false for an unknown rank.
func (r *Registry) Summary(rank string) (report.Summary, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.set.Get(rank)
	if !ok {
		return report.Summary{}, false, nil
	}
	sum, err := report.Summarize(st)
	return sum, true, err
}

// Rows returns the per-event stats of rank in stream order.
func (r *Registry) Rows(rank string) ([]export.Row, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.set.Get(rank)
	if !ok {
		return nil, false, nil
	}
	rows, err := export.Rows(st)
	return rows, true, err
}
