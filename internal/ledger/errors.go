package ledger

import (
	"errors"

	"FamilyBudget/internal/money"
)

var (
	// ErrInvalidAmount is returned for non-numeric, negative or malformed amounts.
	ErrInvalidAmount = money.ErrInvalidAmount
	// ErrEmptyHistory is returned by undo when the contributor has no expenses.
	ErrEmptyHistory = errors.New("nothing to undo")
	// ErrNotFound is returned for an archive lookup miss.
	ErrNotFound = errors.New("period not archived")
	// ErrDuplicateArchive signals an attempt to archive a period twice.
	ErrDuplicateArchive = errors.New("period already archived")
	// ErrAccessDenied is returned when an unknown contributor attempts a mutation.
	ErrAccessDenied = errors.New("access denied")
	// ErrPersistence wraps a failed durable write; the mutation was rolled back.
	ErrPersistence = errors.New("persist ledger state")
)
