package ledger

import (
	"fmt"
	"sync"
	"time"

	"FamilyBudget/internal/model"
	"FamilyBudget/internal/money"
	"FamilyBudget/internal/recorder"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Mirror receives every committed state for best-effort off-host copying.
// Submit must not block.
type Mirror interface {
	Submit(st *model.State)
}

// Recorder receives the history of committed changes.
type Recorder interface {
	RecordEvent(evt *recorder.LedgerEvent) error
	RecordArchive(entry *model.ArchiveEntry) error
}

// Config holds the ledger settings that come from the application config.
type Config struct {
	// BaseLimit seeds the limit of a brand new ledger. Afterwards the limit
	// lives in the state and survives rollovers until changed.
	BaseLimit            decimal.Decimal
	IncomeAffectsBalance bool
	Contributors         []model.Contributor
	Location             *time.Location
}

// Option customises a Manager.
type Option func(*Manager)

func WithMirror(mi Mirror) Option           { return func(m *Manager) { m.mirror = mi } }
func WithRecorder(r Recorder) Option        { return func(m *Manager) { m.rec = r } }
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }
func WithLogger(l zerolog.Logger) Option    { return func(m *Manager) { m.log = l } }

// WithRolloverHook registers fn to be told about every committed rollover,
// whichever operation triggered it. fn runs with the manager lock held and
// must not block or call back into the Manager.
func WithRolloverHook(fn func(closed model.ArchiveEntry, next model.Report)) Option {
	return func(m *Manager) { m.onRollover = fn }
}

// Manager owns the ledger and serializes every operation on it with a
// single mutex. Each operation first applies any pending month rollover,
// then mutates, then persists synchronously. A failed write restores the
// in-memory ledger to its state before the operation.
type Manager struct {
	mu      sync.Mutex
	ledger  *Ledger
	store   Persister
	mirror  Mirror
	rec     Recorder
	now     func() time.Time
	loc     *time.Location
	log     zerolog.Logger
	allowed map[int64]model.Contributor
	members []model.Contributor

	onRollover func(closed model.ArchiveEntry, next model.Report)
}

// NewManager creates a Manager, loading or initializing state from store.
func NewManager(store Persister, cfg Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:   store,
		mirror:  nopMirror{},
		rec:     recorder.NewNoopRecorder(),
		now:     time.Now,
		loc:     cfg.Location,
		log:     zerolog.Nop(),
		allowed: make(map[int64]model.Contributor, len(cfg.Contributors)),
		members: append([]model.Contributor(nil), cfg.Contributors...),
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	for _, c := range cfg.Contributors {
		m.allowed[c.ID] = c
	}
	for _, opt := range opts {
		opt(m)
	}

	st, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	if st == nil {
		m.ledger = New(m.period(), cfg.BaseLimit, cfg.IncomeAffectsBalance)
		m.log.Info().Str("period", m.ledger.Period().String()).Str("limit", cfg.BaseLimit.String()).
			Msg("initialized fresh ledger")
	} else {
		if m.ledger, err = FromState(st, cfg.IncomeAffectsBalance); err != nil {
			return nil, fmt.Errorf("restore ledger state: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.apply(nil, st == nil); err != nil {
		return nil, err
	}
	return m, nil
}

type nopMirror struct{}

func (nopMirror) Submit(*model.State) {}

func (m *Manager) period() model.Period {
	return model.PeriodOf(m.now(), m.loc)
}

// Contributor looks up an allow-listed contributor.
func (m *Manager) Contributor(id int64) (model.Contributor, bool) {
	c, ok := m.allowed[id]
	return c, ok
}

// Contributors returns the allow-list in configuration order.
func (m *Manager) Contributors() []model.Contributor {
	return append([]model.Contributor(nil), m.members...)
}

func (m *Manager) authorize(id int64) error {
	if _, ok := m.allowed[id]; !ok {
		return fmt.Errorf("%w: contributor %d", ErrAccessDenied, id)
	}
	return nil
}

// RecordExpense parses raw and books it as an expense of contributorID.
func (m *Manager) RecordExpense(contributorID int64, raw string) (model.Transaction, model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tx model.Transaction
	_, err := m.apply(func() (*recorder.LedgerEvent, error) {
		if err := m.authorize(contributorID); err != nil {
			return nil, err
		}
		amount, err := money.ParseAmount(raw)
		if err != nil {
			return nil, err
		}
		if tx, err = m.ledger.RecordExpense(contributorID, amount, m.now()); err != nil {
			return nil, err
		}
		return m.event(recorder.EventExpense, contributorID, tx.Amount, ""), nil
	}, false)
	if err != nil {
		return model.Transaction{}, model.Report{}, err
	}
	return tx, m.ledger.Report(), nil
}

// RecordIncome parses raw and books it as income reported by contributorID.
func (m *Manager) RecordIncome(contributorID int64, raw string) (model.Transaction, model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tx model.Transaction
	_, err := m.apply(func() (*recorder.LedgerEvent, error) {
		if err := m.authorize(contributorID); err != nil {
			return nil, err
		}
		amount, err := money.ParseAmount(raw)
		if err != nil {
			return nil, err
		}
		if tx, err = m.ledger.RecordIncome(contributorID, amount, m.now()); err != nil {
			return nil, err
		}
		return m.event(recorder.EventIncome, contributorID, tx.Amount, ""), nil
	}, false)
	if err != nil {
		return model.Transaction{}, model.Report{}, err
	}
	return tx, m.ledger.Report(), nil
}

// UndoLastExpense removes the most recent expense of contributorID.
func (m *Manager) UndoLastExpense(contributorID int64) (model.Transaction, model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tx model.Transaction
	_, err := m.apply(func() (*recorder.LedgerEvent, error) {
		if err := m.authorize(contributorID); err != nil {
			return nil, err
		}
		var err error
		if tx, err = m.ledger.UndoLastExpense(contributorID); err != nil {
			return nil, err
		}
		return m.event(recorder.EventUndo, contributorID, tx.Amount, tx.ID), nil
	}, false)
	if err != nil {
		return model.Transaction{}, model.Report{}, err
	}
	return tx, m.ledger.Report(), nil
}

// SetLimit replaces the base limit of the live period.
func (m *Manager) SetLimit(contributorID int64, raw string) (model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.apply(func() (*recorder.LedgerEvent, error) {
		if err := m.authorize(contributorID); err != nil {
			return nil, err
		}
		amount, err := money.ParseAmount(raw)
		if err != nil {
			return nil, err
		}
		if err := m.ledger.SetLimit(amount); err != nil {
			return nil, err
		}
		return m.event(recorder.EventLimit, contributorID, amount, ""), nil
	}, false)
	if err != nil {
		return model.Report{}, err
	}
	return m.ledger.Report(), nil
}

// Report returns the summary of the live period.
func (m *Manager) Report() (model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.apply(nil, false); err != nil {
		return model.Report{}, err
	}
	return m.ledger.Report(), nil
}

// Archive returns every concluded period in the order it was archived.
func (m *Manager) Archive() ([]model.ArchiveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.apply(nil, false); err != nil {
		return nil, err
	}
	return m.ledger.Archive().Entries(), nil
}

// ArchivedPeriod returns one concluded period.
func (m *Manager) ArchivedPeriod(p model.Period) (model.ArchiveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.apply(nil, false); err != nil {
		return model.ArchiveEntry{}, err
	}
	return m.ledger.Archive().Get(p)
}

// CheckRollover applies a pending month rollover and returns the archived
// entry, or nil when the live period is still current.
func (m *Manager) CheckRollover() (*model.ArchiveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(nil, false)
}

// State returns a deep copy of the persisted record.
func (m *Manager) State() *model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.State()
}

func (m *Manager) event(typ recorder.EventType, contributor int64, amount decimal.Decimal, note string) *recorder.LedgerEvent {
	return &recorder.LedgerEvent{
		Type:        typ,
		Period:      m.ledger.Period(),
		Contributor: contributor,
		Amount:      amount,
		Balance:     m.ledger.Balance(),
		Note:        note,
		At:          m.now(),
	}
}

// restore rebuilds the ledger from snapshot. If that fails the in-memory
// ledger keeps the unsaved change and diverges from disk until the next
// successful save.
func (m *Manager) restore(snapshot *model.State) {
	l, err := FromState(snapshot, m.ledger.IncomeAffectsBalance())
	if err != nil {
		m.log.Error().Err(err).Str("period", m.ledger.Period().String()).
			Msg("restore ledger snapshot failed, memory diverges from disk")
		return
	}
	m.ledger = l
}

// apply runs the rollover check followed by op, and commits when either
// changed the ledger. op returns the history event of its change, or nil
// when it changed nothing. Must be called with mu held.
func (m *Manager) apply(op func() (*recorder.LedgerEvent, error), forceSave bool) (*model.ArchiveEntry, error) {
	snapshot := m.ledger.State()

	now := m.period()
	if now.Before(m.ledger.Period()) {
		m.log.Warn().Str("live", m.ledger.Period().String()).Str("clock", now.String()).
			Msg("clock is behind the live period, rollover skipped")
	}
	archived, err := m.ledger.Rollover(now, m.now())
	if err != nil {
		m.log.Error().Err(err).Str("period", m.ledger.Period().String()).Msg("rollover failed")
		return nil, err
	}
	var opened model.Report
	if archived != nil {
		opened = m.ledger.Report()
	}

	var (
		evt   *recorder.LedgerEvent
		opErr error
	)
	if op != nil {
		evt, opErr = op()
	}
	if archived == nil && evt == nil && !forceSave {
		return nil, opErr
	}

	if err := m.commit(); err != nil {
		m.restore(snapshot)
		m.log.Error().Err(err).Msg("failed to save ledger state, change rolled back")
		return nil, err
	}

	if archived != nil {
		m.log.Info().Str("closed", archived.Period.String()).Str("carry", archived.Carry.String()).
			Str("period", m.ledger.Period().String()).Msg("period rolled over")
		if err := m.rec.RecordArchive(archived); err != nil {
			m.log.Error().Err(err).Msg("record archive")
		}
		if err := m.rec.RecordEvent(&recorder.LedgerEvent{
			Type:    recorder.EventRollover,
			Period:  archived.Period,
			Amount:  archived.Carry,
			Balance: archived.Report.Balance,
			Note:    "carried into " + m.ledger.Period().String(),
			At:      archived.ClosedAt,
		}); err != nil {
			m.log.Error().Err(err).Msg("record rollover event")
		}
		if m.onRollover != nil {
			m.onRollover(*archived, opened)
		}
	}
	if evt != nil {
		if err := m.rec.RecordEvent(evt); err != nil {
			m.log.Error().Err(err).Str("event", string(evt.Type)).Msg("record ledger event")
		}
	}
	return archived, opErr
}

func (m *Manager) commit() error {
	st := m.ledger.State()
	st.UpdatedAt = m.now()
	if err := m.store.Save(st); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.mirror.Submit(st)
	return nil
}
