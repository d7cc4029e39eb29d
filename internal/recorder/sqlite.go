package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"FamilyBudget/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the ledger history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL lets budgetctl read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return &SQLiteRecorder{db: db, log: log}, nil
}

func (r *SQLiteRecorder) RecordEvent(evt *LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO ledger_events
		(timestamp, period, event_type, contributor, amount, balance, note)
		VALUES (?,?,?,?,?,?,?)`,
		at.Unix(), evt.Period.String(), string(evt.Type), evt.Contributor,
		evt.Amount.String(), evt.Balance.String(), evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordArchive(entry *model.ArchiveEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rep := entry.Report
	if _, err := tx.Exec(`INSERT INTO archived_periods
		(period, closed_at, base_limit, carry_over, effective_limit,
		 total_expenses, total_income, balance, carry)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		entry.Period.String(), entry.ClosedAt.Unix(),
		rep.Limit.String(), rep.CarryOver.String(), rep.EffectiveLimit.String(),
		rep.TotalExpenses.String(), rep.TotalIncome.String(), rep.Balance.String(),
		entry.Carry.String(),
	); err != nil {
		return fmt.Errorf("insert archived period: %w", err)
	}
	for contributor, total := range rep.Expenses {
		if _, err := tx.Exec(`INSERT INTO archived_expenses (period, contributor, total) VALUES (?,?,?)`,
			entry.Period.String(), contributor, total.String(),
		); err != nil {
			return fmt.Errorf("insert archived expenses: %w", err)
		}
	}
	return tx.Commit()
}

// RecentEvents returns up to limit events, newest first.
func (r *SQLiteRecorder) RecentEvents(limit int) ([]LedgerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, period, event_type, contributor, amount, balance, note
		FROM ledger_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []LedgerEvent
	for rows.Next() {
		var (
			ts              int64
			period, typ     string
			contributor     int64
			amount, balance string
			note            string
		)
		if err := rows.Scan(&ts, &period, &typ, &contributor, &amount, &balance, &note); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt := LedgerEvent{
			Type:        EventType(typ),
			Contributor: contributor,
			Note:        note,
			At:          time.Unix(ts, 0),
		}
		if evt.Period, err = model.ParsePeriod(period); err != nil {
			return nil, err
		}
		if evt.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("event amount: %w", err)
		}
		if evt.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("event balance: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
