package ledger

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"FamilyBudget/internal/model"
)

// Archive is the write-once, insertion-ordered collection of concluded periods.
type Archive struct {
	entries []model.ArchiveEntry
	index   map[model.Period]int
}

// NewArchive builds an archive from previously persisted entries.
func NewArchive(entries []model.ArchiveEntry) (*Archive, error) {
	a := &Archive{index: make(map[model.Period]int, len(entries))}
	for _, e := range entries {
		if err := a.Add(e); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add freezes entry into the archive. Periods are never overwritten.
func (a *Archive) Add(entry model.ArchiveEntry) error {
	if _, ok := a.index[entry.Period]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateArchive, entry.Period)
	}
	a.index[entry.Period] = len(a.entries)
	a.entries = append(a.entries, cloneEntry(entry))
	return nil
}

// Has reports whether period has been archived.
func (a *Archive) Has(period model.Period) bool {
	_, ok := a.index[period]
	return ok
}

// Get returns the frozen entry for period.
func (a *Archive) Get(period model.Period) (model.ArchiveEntry, error) {
	i, ok := a.index[period]
	if !ok {
		return model.ArchiveEntry{}, fmt.Errorf("%w: %s", ErrNotFound, period)
	}
	return cloneEntry(a.entries[i]), nil
}

// All iterates entries in the order they were archived.
func (a *Archive) All() iter.Seq2[model.Period, model.ArchiveEntry] {
	return func(yield func(model.Period, model.ArchiveEntry) bool) {
		for _, e := range a.entries {
			if !yield(e.Period, cloneEntry(e)) {
				return
			}
		}
	}
}

// Entries returns a copy of every entry in insertion order.
func (a *Archive) Entries() []model.ArchiveEntry {
	out := make([]model.ArchiveEntry, 0, len(a.entries))
	for _, e := range a.All() {
		out = append(out, e)
	}
	return out
}

func (a *Archive) Len() int { return len(a.entries) }

func cloneEntry(e model.ArchiveEntry) model.ArchiveEntry {
	e.Report = cloneReport(e.Report)
	e.Expenses = cloneTxMap(e.Expenses)
	e.Income = slices.Clone(e.Income)
	return e
}

func cloneReport(r model.Report) model.Report {
	r.Expenses = maps.Clone(r.Expenses)
	return r
}
