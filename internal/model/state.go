package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// State is the persisted record of the whole ledger: the live period plus
// the archive of concluded ones.
type State struct {
	Period    Period                  `json:"period"`
	Limit     decimal.Decimal         `json:"limit"`
	CarryOver decimal.Decimal         `json:"carry_over"`
	Expenses  map[int64][]Transaction `json:"expenses"`
	Income    []Transaction           `json:"income"`
	Archive   ArchiveLog              `json:"archive"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// ArchiveLog is the archive in chronological order. On disk it is an object
// keyed by period ("2026-09": {...}); decoding sorts the entries by period.
type ArchiveLog []ArchiveEntry

func (a ArchiveLog) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, e := range a {
		if e.Period.IsZero() {
			return nil, fmt.Errorf("archive entry %d has no period", i)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(e.Period.String())
		b.Write(key)
		b.WriteByte(':')
		val, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", e.Period, err)
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (a *ArchiveLog) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*a = nil
		return nil
	}
	// Files written before the archive was keyed by period hold an array.
	if len(data) > 0 && data[0] == '[' {
		var entries []ArchiveEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		*a = sortedArchive(entries)
		return nil
	}

	var byPeriod map[string]ArchiveEntry
	if err := json.Unmarshal(data, &byPeriod); err != nil {
		return err
	}
	entries := make([]ArchiveEntry, 0, len(byPeriod))
	for key, e := range byPeriod {
		p, err := ParsePeriod(key)
		if err != nil {
			return fmt.Errorf("archive key: %w", err)
		}
		switch {
		case e.Period.IsZero():
			e.Period = p
		case e.Period != p:
			return fmt.Errorf("archive entry %s stored under key %s", e.Period, key)
		}
		entries = append(entries, e)
	}
	*a = sortedArchive(entries)
	return nil
}

func sortedArchive(entries []ArchiveEntry) ArchiveLog {
	slices.SortStableFunc(entries, func(x, y ArchiveEntry) int {
		switch {
		case x.Period.Before(y.Period):
			return -1
		case y.Period.Before(x.Period):
			return 1
		}
		return 0
	})
	return entries
}
