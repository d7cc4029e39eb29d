package recorder

import (
	"time"

	"FamilyBudget/internal/model"

	"github.com/shopspring/decimal"
)

// EventType names a ledger mutation.
type EventType string

const (
	EventExpense  EventType = "EXPENSE"
	EventIncome   EventType = "INCOME"
	EventUndo     EventType = "UNDO"
	EventLimit    EventType = "LIMIT"
	EventRollover EventType = "ROLLOVER"
)

// LedgerEvent is one row of the ledger history.
type LedgerEvent struct {
	Type        EventType
	Period      model.Period
	Contributor int64
	Amount      decimal.Decimal
	Balance     decimal.Decimal // balance after the event
	Note        string
	At          time.Time
}

// Recorder persists the ledger history for later analysis. It is an
// append-only audit trail; the JSON state file stays the source of truth.
type Recorder interface {
	RecordEvent(evt *LedgerEvent) error
	RecordArchive(entry *model.ArchiveEntry) error
	RecentEvents(limit int) ([]LedgerEvent, error)
	Close() error
}
