package ledger

import (
	"time"

	"FamilyBudget/internal/model"
)

// Rollover closes the live period when now is a later month. The signed
// balance becomes the carry of the new period, the closed period is frozen
// into the archive and the store is cleared.
//
// Calling it again for the current period is a no-op, and a period earlier
// than the live one is ignored. Months in which the process never ran are
// not archived individually: everything since the last seen period is
// folded into a single carry.
func (l *Ledger) Rollover(now model.Period, at time.Time) (*model.ArchiveEntry, error) {
	if now == l.period || now.Before(l.period) {
		return nil, nil
	}

	carry := l.Balance()
	entry := model.ArchiveEntry{
		Period:   l.period,
		Report:   l.Report(),
		Carry:    carry,
		Expenses: l.store.AllExpenses(),
		Income:   l.store.Income(),
		ClosedAt: at,
	}
	if err := l.archive.Add(entry); err != nil {
		return nil, err
	}

	l.period = now
	l.carryOver = carry
	l.store.Reset()
	return &entry, nil
}
