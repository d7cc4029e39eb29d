package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FamilyBudget/internal/model"
	"FamilyBudget/internal/recorder"

	"github.com/rs/zerolog"
)

// memStore is an in-memory Persister that can be told to fail.
type memStore struct {
	mu    sync.Mutex
	saved *model.State
	saves int
	fail  error
}

func (s *memStore) Load() (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, nil
}

func (s *memStore) Save(st *model.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saves++
	s.saved = st
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeMirror struct {
	mu     sync.Mutex
	states []*model.State
}

func (f *fakeMirror) Submit(st *model.State) {
	f.mu.Lock()
	f.states = append(f.states, st)
	f.mu.Unlock()
}

type fakeRecorder struct {
	mu       sync.Mutex
	events   []recorder.LedgerEvent
	archives []model.ArchiveEntry
}

func (f *fakeRecorder) RecordEvent(evt *recorder.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *evt)
	return nil
}

func (f *fakeRecorder) RecordArchive(entry *model.ArchiveEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives = append(f.archives, *entry)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var testContributors = []model.Contributor{{ID: dad, Role: "dad"}, {ID: mom, Role: "mom"}}

func newTestManager(t *testing.T, store Persister, opts ...Option) (*Manager, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	m, err := NewManager(store, Config{
		BaseLimit:    dec("40000"),
		Contributors: testContributors,
		Location:     time.UTC,
	}, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, clk
}

func TestManager_FreshStateIsPersisted(t *testing.T) {
	store := &memStore{}
	m, _ := newTestManager(t, store)

	if store.count() != 1 {
		t.Errorf("saves = %d, want 1", store.count())
	}
	r, err := m.Report()
	if err != nil {
		t.Fatal(err)
	}
	if r.Period != october || !r.Limit.Equal(dec("40000")) {
		t.Errorf("fresh report = %s / %s", r.Period, r.Limit)
	}
}

func TestManager_BalanceArithmetic(t *testing.T) {
	m, _ := newTestManager(t, &memStore{})
	for _, raw := range []string{"1000", "2000"} {
		if _, _, err := m.RecordExpense(dad, raw); err != nil {
			t.Fatalf("RecordExpense(%s): %v", raw, err)
		}
	}
	r, _ := m.Report()
	if !r.Balance.Equal(dec("37000")) {
		t.Errorf("Balance = %s, want 37000", r.Balance)
	}
	if !r.ExpensesOf(dad).Equal(dec("3000")) || !r.ExpensesOf(mom).IsZero() {
		t.Errorf("per-contributor = %v", r.Expenses)
	}
}

func TestManager_AccessDenied(t *testing.T) {
	store := &memStore{}
	m, _ := newTestManager(t, store)
	before := store.count()

	if _, _, err := m.RecordExpense(42, "100"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("RecordExpense(stranger) = %v, want ErrAccessDenied", err)
	}
	if _, _, err := m.RecordIncome(42, "100"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("RecordIncome(stranger) = %v, want ErrAccessDenied", err)
	}
	if _, _, err := m.UndoLastExpense(42); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("UndoLastExpense(stranger) = %v, want ErrAccessDenied", err)
	}
	if _, err := m.SetLimit(42, "1"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("SetLimit(stranger) = %v, want ErrAccessDenied", err)
	}

	r, _ := m.Report()
	if !r.TotalExpenses.IsZero() || !r.TotalIncome.IsZero() || !r.Limit.Equal(dec("40000")) {
		t.Errorf("state changed: %+v", r)
	}
	if store.count() != before {
		t.Errorf("denied operations persisted %d times", store.count()-before)
	}
}

func TestManager_InvalidAmount(t *testing.T) {
	store := &memStore{}
	mi := &fakeMirror{}
	m, _ := newTestManager(t, store, WithMirror(mi))
	before := store.count()
	mirrored := len(mi.states)

	if _, _, err := m.RecordExpense(dad, "abc"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("RecordExpense(abc) = %v, want ErrInvalidAmount", err)
	}
	if _, _, err := m.RecordExpense(dad, "-10"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("RecordExpense(-10) = %v, want ErrInvalidAmount", err)
	}
	if store.count() != before {
		t.Error("invalid input triggered persistence")
	}
	if len(mi.states) != mirrored {
		t.Error("invalid input triggered mirroring")
	}
	if len(m.State().Expenses[dad]) != 0 {
		t.Error("transaction appended for invalid input")
	}
}

func TestManager_UndoRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, &memStore{})
	m.RecordExpense(dad, "250")
	before, _ := m.Report()

	if _, _, err := m.RecordExpense(dad, "500"); err != nil {
		t.Fatal(err)
	}
	tx, after, err := m.UndoLastExpense(dad)
	if err != nil {
		t.Fatalf("UndoLastExpense: %v", err)
	}
	if !tx.Amount.Equal(dec("500")) {
		t.Errorf("undone amount = %s, want 500", tx.Amount)
	}
	if !after.ExpensesOf(dad).Equal(before.ExpensesOf(dad)) || !after.Balance.Equal(before.Balance) {
		t.Errorf("totals after undo = %s, want %s", after.ExpensesOf(dad), before.ExpensesOf(dad))
	}

	m.UndoLastExpense(dad)
	if _, _, err := m.UndoLastExpense(dad); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("undo on empty = %v, want ErrEmptyHistory", err)
	}
}

func TestManager_PersistenceFailureRollsBack(t *testing.T) {
	store := &memStore{}
	mi := &fakeMirror{}
	m, _ := newTestManager(t, store, WithMirror(mi))
	m.RecordExpense(dad, "100")
	mirrored := len(mi.states)

	store.fail = errors.New("disk full")
	if _, _, err := m.RecordExpense(dad, "900"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("RecordExpense = %v, want ErrPersistence", err)
	}
	if _, err := m.SetLimit(mom, "1"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("SetLimit = %v, want ErrPersistence", err)
	}
	if len(mi.states) != mirrored {
		t.Error("failed write was mirrored")
	}

	store.fail = nil
	r, _ := m.Report()
	if !r.ExpensesOf(dad).Equal(dec("100")) || !r.Limit.Equal(dec("40000")) {
		t.Errorf("in-memory state diverged: expenses %s, limit %s", r.ExpensesOf(dad), r.Limit)
	}
	if !store.saved.Limit.Equal(dec("40000")) || len(store.saved.Expenses[dad]) != 1 {
		t.Error("durable state diverged")
	}
}

func TestManager_RolloverOnRequest(t *testing.T) {
	store := &memStore{}
	rec := &fakeRecorder{}
	m, clk := newTestManager(t, store, WithRecorder(rec))
	m.RecordExpense(dad, "30000")
	m.RecordExpense(mom, "15000")

	clk.Set(time.Date(2026, time.November, 1, 8, 0, 0, 0, time.UTC))
	r, err := m.Report()
	if err != nil {
		t.Fatal(err)
	}
	if r.Period != november {
		t.Fatalf("period = %s, want %s", r.Period, november)
	}
	if !r.EffectiveLimit.Equal(dec("35000")) || !r.CarryOver.Equal(dec("-5000")) {
		t.Errorf("effective limit / carry = %s / %s, want 35000 / -5000", r.EffectiveLimit, r.CarryOver)
	}
	if store.saved.Period != november {
		t.Error("rollover not persisted")
	}
	if len(rec.archives) != 1 || rec.archives[0].Period != october {
		t.Errorf("recorded archives = %v", rec.archives)
	}
}

func TestManager_RolloverCheckIdempotent(t *testing.T) {
	store := &memStore{}
	m, clk := newTestManager(t, store)
	m.RecordExpense(dad, "100")
	clk.Set(time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC))

	first, err := m.CheckRollover()
	if err != nil || first == nil {
		t.Fatalf("first CheckRollover = %v, %v", first, err)
	}
	saves := store.count()
	second, err := m.CheckRollover()
	if err != nil || second != nil {
		t.Fatalf("second CheckRollover = %v, %v; want nil", second, err)
	}
	if store.count() != saves {
		t.Error("no-op rollover check persisted")
	}
	entries, _ := m.Archive()
	if len(entries) != 1 || entries[0].Period != october {
		t.Errorf("archive = %v", entries)
	}
	if _, err := m.ArchivedPeriod(november); !errors.Is(err, ErrNotFound) {
		t.Errorf("ArchivedPeriod(live) = %v, want ErrNotFound", err)
	}
}

func TestManager_InvalidInputStillAppliesRollover(t *testing.T) {
	store := &memStore{}
	m, clk := newTestManager(t, store)
	clk.Set(time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC))

	if _, _, err := m.RecordExpense(dad, "abc"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("RecordExpense = %v", err)
	}
	if store.saved.Period != november {
		t.Error("pending rollover was not committed")
	}
	if len(store.saved.Expenses[dad]) != 0 {
		t.Error("invalid amount was stored")
	}
}

func TestManager_EventsRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	m, _ := newTestManager(t, &memStore{}, WithRecorder(rec))
	m.RecordExpense(dad, "10")
	m.RecordIncome(mom, "20")
	m.UndoLastExpense(dad)
	m.SetLimit(mom, "50000")
	m.RecordExpense(dad, "oops")

	want := []recorder.EventType{recorder.EventExpense, recorder.EventIncome, recorder.EventUndo, recorder.EventLimit}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %d, want %d", len(rec.events), len(want))
	}
	for i, typ := range want {
		if rec.events[i].Type != typ {
			t.Errorf("event %d = %s, want %s", i, rec.events[i].Type, typ)
		}
	}
	if !rec.events[3].Balance.Equal(dec("50000")) {
		t.Errorf("balance after limit change = %s, want 50000", rec.events[3].Balance)
	}
}

func TestManager_ConcurrentExpensesNoLostUpdates(t *testing.T) {
	store := &memStore{}
	m, _ := newTestManager(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); m.RecordExpense(dad, "10.10") }()
		go func() { defer wg.Done(); m.RecordExpense(mom, "0.90") }()
	}
	wg.Wait()

	r, _ := m.Report()
	if !r.TotalExpenses.Equal(dec("550")) {
		t.Errorf("TotalExpenses = %s, want 550", r.TotalExpenses)
	}
	if n := len(store.saved.Expenses[dad]) + len(store.saved.Expenses[mom]); n != 100 {
		t.Errorf("persisted %d transactions, want 100", n)
	}
}

func TestManager_PersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "budget.json")
	m, clk := newTestManager(t, NewFileStore(path))
	m.RecordExpense(dad, "1200.50")
	m.RecordIncome(mom, "15000")
	clk.Set(time.Date(2026, time.November, 3, 9, 0, 0, 0, time.UTC))
	m.RecordExpense(mom, "99,90")

	original := m.State()
	if len(original.Archive) != 1 || len(original.Expenses[mom]) != 1 {
		t.Fatalf("unexpected setup state: %+v", original)
	}

	reloaded, _ := newTestManager(t, NewFileStore(path))
	got := reloaded.State()

	a, _ := json.Marshal(original)
	b, _ := json.Marshal(got)
	if string(a) != string(b) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", b, a)
	}
	ra, _ := m.Report()
	rb, _ := reloaded.Report()
	if !ra.Balance.Equal(rb.Balance) || !ra.CarryOver.Equal(rb.CarryOver) {
		t.Errorf("reloaded report differs: %s/%s vs %s/%s", rb.Balance, rb.CarryOver, ra.Balance, ra.CarryOver)
	}
}

func TestManager_Contributors(t *testing.T) {
	m, _ := newTestManager(t, &memStore{})
	if c, ok := m.Contributor(mom); !ok || c.Role != "mom" {
		t.Errorf("Contributor(mom) = %v, %v", c, ok)
	}
	if _, ok := m.Contributor(1); ok {
		t.Error("unknown contributor found")
	}
	if got := m.Contributors(); len(got) != 2 || got[0].ID != dad {
		t.Errorf("Contributors = %v", got)
	}
}

func TestManager_RolloverHookFiresForLazyRollover(t *testing.T) {
	var (
		closed []model.ArchiveEntry
		next   []model.Report
	)
	m, clk := newTestManager(t, &memStore{}, WithRolloverHook(func(c model.ArchiveEntry, n model.Report) {
		closed = append(closed, c)
		next = append(next, n)
	}))
	m.RecordExpense(dad, "45000")

	clk.Set(time.Date(2026, time.November, 1, 0, 0, 5, 0, time.UTC))
	if _, _, err := m.RecordExpense(mom, "10"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CheckRollover(); err != nil {
		t.Fatal(err)
	}

	if len(closed) != 1 {
		t.Fatalf("hook calls = %d, want 1", len(closed))
	}
	if closed[0].Period != october || !closed[0].Carry.Equal(dec("-5000")) {
		t.Errorf("closed = %s carry %s", closed[0].Period, closed[0].Carry)
	}
	if next[0].Period != november || !next[0].EffectiveLimit.Equal(dec("35000")) || !next[0].TotalExpenses.IsZero() {
		t.Errorf("next = %s effective %s expenses %s", next[0].Period, next[0].EffectiveLimit, next[0].TotalExpenses)
	}
}

func TestManager_Restore(t *testing.T) {
	tests := []struct {
		name      string
		snapshot  func(good *model.State) *model.State
		wantSpent bool
		wantLog   bool
	}{
		{
			name:      "snapshot restored",
			snapshot:  func(good *model.State) *model.State { return good },
			wantSpent: false,
		},
		{
			name:      "broken snapshot logged",
			snapshot:  func(*model.State) *model.State { return &model.State{} },
			wantSpent: true,
			wantLog:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			m, _ := newTestManager(t, &memStore{}, WithLogger(zerolog.New(&buf)))

			m.mu.Lock()
			good := m.ledger.State()
			m.mu.Unlock()
			if _, _, err := m.RecordExpense(dad, "250"); err != nil {
				t.Fatalf("RecordExpense: %v", err)
			}
			buf.Reset()

			m.mu.Lock()
			m.restore(tt.snapshot(good))
			spent := m.ledger.Report().ExpensesOf(dad)
			m.mu.Unlock()

			if got := spent.Equal(dec("250")); got != tt.wantSpent {
				t.Errorf("expense kept = %v, want %v", got, tt.wantSpent)
			}
			logged := strings.Contains(buf.String(), `"level":"error"`) &&
				strings.Contains(buf.String(), "restore ledger snapshot failed")
			if logged != tt.wantLog {
				t.Errorf("error logged = %v, want %v: %s", logged, tt.wantLog, buf.String())
			}
		})
	}
}
