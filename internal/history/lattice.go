package history

// #region imports
import (
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/feedback"
)

// #endregion imports

// DefaultCapacity is the record cap used when none is configured.
const DefaultCapacity = 100

// #region lattice

// Lattice is a bounded, insertion-ordered store of feedback records with a
// lightweight id -> related-ids overlay. Safe for concurrent use: writes are
// serialized, reads see a consistent copy.
type Lattice struct {
	capacity int
	now      func() time.Time

	mu      sync.RWMutex
	records []feedback.Record
	links   map[string][]string
}

// NewLattice creates a lattice holding at most capacity records.
func NewLattice(capacity int) (*Lattice, error) {
	return NewLatticeWithClock(capacity, time.Now)
}

// NewLatticeWithClock is NewLattice with an injected clock for Window.
func NewLatticeWithClock(capacity int, now func() time.Time) (*Lattice, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: lattice capacity %d", affect.ErrInvalidInput, capacity)
	}
	return &Lattice{
		capacity: capacity,
		now:      now,
		records:  make([]feedback.Record, 0, capacity),
		links:    make(map[string][]string),
	}, nil
}

// Capacity returns the configured cap.
func (l *Lattice) Capacity() int {
	return l.capacity
}

// #endregion lattice

// #region append

// Append stores rec, evicting the oldest records first when full. Links keyed
// by or pointing at an evicted id are pruned; a set left empty is dropped.
func (l *Lattice) Append(rec feedback.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(rec)
}

// AppendLinked appends rec and links it to up to depth of the newest records
// that are still stored once rec is in. commit, when non-nil, sees the related
// ids before anything changes; its error leaves the lattice untouched.
func (l *Lattice) AppendLinked(rec feedback.Record, depth int, commit func(related []string) error) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// one slot goes to rec, so at most capacity-1 predecessors survive
	n := min(depth, l.capacity-1, len(l.records))
	var related []string
	if n > 0 {
		related = make([]string, n)
		for i, r := range l.records[len(l.records)-n:] {
			related[i] = r.ID
		}
	}

	if commit != nil {
		if err := commit(related); err != nil {
			return nil, err
		}
	}
	l.appendLocked(rec)
	if len(related) > 0 {
		l.links[rec.ID] = related
	}
	return related, nil
}

func (l *Lattice) appendLocked(rec feedback.Record) {
	for len(l.records) >= l.capacity {
		evicted := l.records[0]
		l.records[0] = feedback.Record{}
		l.records = l.records[1:]
		l.prune(evicted.ID)
	}
	l.records = append(l.records, rec)
}

func (l *Lattice) prune(id string) {
	delete(l.links, id)
	for key, related := range l.links {
		kept := related[:0:0]
		for _, r := range related {
			if r != id {
				kept = append(kept, r)
			}
		}
		switch {
		case len(kept) == 0:
			delete(l.links, key)
		case len(kept) != len(related):
			l.links[key] = kept
		}
	}
}

// #endregion append

// #region link

// Link replaces the related set for id. Unknown ids are accepted.
func (l *Lattice) Link(id string, relatedIDs []string) {
	cp := make([]string, len(relatedIDs))
	copy(cp, relatedIDs)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.links[id] = cp
}

// Related returns a copy of the related set for id, nil if none.
func (l *Lattice) Related(id string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	related, ok := l.links[id]
	if !ok {
		return nil
	}
	cp := make([]string, len(related))
	copy(cp, related)
	return cp
}

// #endregion link

// #region reads

// Window returns records created less than d before now, oldest first.
func (l *Lattice) Window(d time.Duration) []feedback.Record {
	now := l.now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []feedback.Record
	for _, rec := range l.records {
		if now.Sub(rec.CreatedAt) < d {
			out = append(out, rec)
		}
	}
	return out
}

// All returns every stored record, oldest first.
func (l *Lattice) All() []feedback.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]feedback.Record, len(l.records))
	copy(out, l.records)
	return out
}

// Recent returns up to n of the newest records, oldest first.
func (l *Lattice) Recent(n int) []feedback.Record {
	if n <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := len(l.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]feedback.Record, len(l.records)-start)
	copy(out, l.records[start:])
	return out
}

// Len returns the number of stored records.
func (l *Lattice) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot is a point-in-time copy of records and links.
type Snapshot struct {
	Records []feedback.Record
	Links   map[string][]string
}

// Snapshot copies the whole lattice under one read lock.
func (l *Lattice) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]feedback.Record, len(l.records))
	copy(records, l.records)
	links := make(map[string][]string, len(l.links))
	for k, v := range l.links {
		cp := make([]string, len(v))
		copy(cp, v)
		links[k] = cp
	}
	return Snapshot{Records: records, Links: links}
}

// #endregion reads
