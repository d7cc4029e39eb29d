package ledger

import (
	"errors"
	"testing"
	"time"

	"FamilyBudget/internal/model"

	"github.com/shopspring/decimal"
)

func entryFor(p model.Period, carry string) model.ArchiveEntry {
	return model.ArchiveEntry{
		Period: p,
		Carry:  dec(carry),
		Report: model.Report{Period: p, Limit: dec("40000")},
	}
}

func TestArchive_GetAndNotFound(t *testing.T) {
	a, _ := NewArchive(nil)
	sep := model.Period{Year: 2026, Month: time.September}
	if err := a.Add(entryFor(sep, "100")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := a.Get(sep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Carry.Equal(dec("100")) {
		t.Errorf("Carry = %s, want 100", got.Carry)
	}

	if _, err := a.Get(model.Period{Year: 2026, Month: time.August}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestArchive_DuplicateIsRejected(t *testing.T) {
	a, _ := NewArchive(nil)
	sep := model.Period{Year: 2026, Month: time.September}
	if err := a.Add(entryFor(sep, "100")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Add(entryFor(sep, "-1")); !errors.Is(err, ErrDuplicateArchive) {
		t.Fatalf("second Add = %v, want ErrDuplicateArchive", err)
	}

	got, _ := a.Get(sep)
	if !got.Carry.Equal(dec("100")) {
		t.Errorf("existing entry was overwritten: carry %s", got.Carry)
	}
	if a.Len() != 1 {
		t.Errorf("Len = %d, want 1", a.Len())
	}
}

func TestArchive_AllInInsertionOrderAndRestartable(t *testing.T) {
	periods := []model.Period{
		{Year: 2026, Month: time.July},
		{Year: 2026, Month: time.May}, // out of calendar order on purpose
		{Year: 2026, Month: time.September},
	}
	var entries []model.ArchiveEntry
	for _, p := range periods {
		entries = append(entries, entryFor(p, "0"))
	}
	a, err := NewArchive(entries)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}

	for pass := 0; pass < 2; pass++ {
		var seen []model.Period
		for p := range a.All() {
			seen = append(seen, p)
		}
		if len(seen) != len(periods) {
			t.Fatalf("pass %d: saw %d entries, want %d", pass, len(seen), len(periods))
		}
		for i := range periods {
			if seen[i] != periods[i] {
				t.Errorf("pass %d: entry %d = %s, want %s", pass, i, seen[i], periods[i])
			}
		}
	}

	// Early break must not panic or disturb later iterations.
	for range a.All() {
		break
	}
	if a.Len() != len(periods) {
		t.Errorf("Len = %d, want %d", a.Len(), len(periods))
	}
}

func TestArchive_EntriesAreFrozen(t *testing.T) {
	a, _ := NewArchive(nil)
	sep := model.Period{Year: 2026, Month: time.September}
	e := entryFor(sep, "0")
	e.Report.Expenses = map[int64]decimal.Decimal{dad: dec("10")}
	if err := a.Add(e); err != nil {
		t.Fatal(err)
	}
	e.Report.Expenses[dad] = dec("999")

	got, _ := a.Get(sep)
	got.Report.Expenses[dad] = dec("500")

	again, _ := a.Get(sep)
	if !again.Report.Expenses[dad].Equal(dec("10")) {
		t.Errorf("archived entry mutated: %s", again.Report.Expenses[dad])
	}
}
