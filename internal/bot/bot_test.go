package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FamilyBudget/internal/ledger"
	"FamilyBudget/internal/model"
	"FamilyBudget/internal/notifier"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	dad      int64 = 84807467
	mom      int64 = 163952863
	stranger int64 = 42
	chat     int64 = -1001
)

var members = []model.Contributor{{ID: dad, Role: "dad"}, {ID: mom, Role: "mom"}}

// flakyStore wraps a FileStore and can be told to fail writes.
type flakyStore struct {
	*ledger.FileStore
	fail bool
}

func (s *flakyStore) Save(st *model.State) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.FileStore.Save(st)
}

func newTestHandler(t *testing.T) (*Handler, *ledger.Manager, *flakyStore) {
	t.Helper()
	store := &flakyStore{FileStore: ledger.NewFileStore(filepath.Join(t.TempDir(), "state.json"))}
	m, err := ledger.NewManager(store, ledger.Config{
		BaseLimit:    decimal.NewFromInt(40000),
		Contributors: members,
		Location:     time.UTC,
	}, ledger.WithClock(func() time.Time { return time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := New(m, notifier.Formatter{Currency: "UAH", Members: members}, nil, zerolog.Nop())
	return h, m, store
}

func msg(from int64, text string) notifier.Update {
	return notifier.Update{Message: &notifier.IncomingMessage{
		From: &notifier.User{ID: from},
		Chat: notifier.Chat{ID: chat},
		Text: text,
	}}
}

func TestHandle_ExpenseFlow(t *testing.T) {
	h, m, _ := newTestHandler(t)

	reply := h.Handle(msg(dad, BtnExpense))
	if reply.Text != MsgAskExpense || reply.ChatID != chat {
		t.Fatalf("prompt reply = %+v", reply)
	}
	reply = h.Handle(msg(dad, "1000"))
	if !strings.HasPrefix(reply.Text, "Додано витрати") {
		t.Fatalf("amount reply = %q", reply.Text)
	}

	r, _ := m.Report()
	if !r.Balance.Equal(decimal.NewFromInt(39000)) {
		t.Errorf("balance = %s, want 39000", r.Balance)
	}

	// The prompt was consumed; a bare number now gets the menu hint.
	reply = h.Handle(msg(dad, "500"))
	if reply.Text != MsgChooseAction || reply.Keyboard == nil {
		t.Errorf("unprompted number reply = %+v", reply)
	}
}

func TestHandle_PromptsArePerUser(t *testing.T) {
	h, m, _ := newTestHandler(t)
	h.Handle(msg(dad, BtnExpense))

	if reply := h.Handle(msg(mom, "700")); reply.Text != MsgChooseAction {
		t.Errorf("mom's message consumed dad's prompt: %q", reply.Text)
	}
	h.Handle(msg(dad, "300"))
	r, _ := m.Report()
	if !r.ExpensesOf(dad).Equal(decimal.NewFromInt(300)) || !r.ExpensesOf(mom).IsZero() {
		t.Errorf("expenses = %v", r.Expenses)
	}
}

func TestHandle_FixedReplies(t *testing.T) {
	tests := []struct {
		name  string
		steps []notifier.Update
		want  string
	}{
		{"invalid amount", []notifier.Update{msg(dad, BtnExpense), msg(dad, "сто")}, MsgInvalidAmount},
		{"negative amount", []notifier.Update{msg(dad, BtnIncome), msg(dad, "-5")}, MsgInvalidAmount},
		{"stranger expense", []notifier.Update{msg(stranger, BtnExpense), msg(stranger, "100")}, MsgAccessDenied},
		{"stranger income", []notifier.Update{msg(stranger, BtnIncome), msg(stranger, "100")}, MsgAccessDenied},
		{"stranger limit", []notifier.Update{msg(stranger, BtnLimit), msg(stranger, "1")}, MsgAccessDenied},
		{"empty undo", []notifier.Update{msg(dad, BtnUndo)}, MsgEmptyHistory},
		{"undo command", []notifier.Update{msg(mom, "/undo")}, MsgEmptyHistory},
		{"start", []notifier.Update{msg(stranger, "/start")}, MsgStarted},
		{"free text", []notifier.Update{msg(dad, "привіт")}, MsgChooseAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			var reply *notifier.Message
			for _, u := range tt.steps {
				reply = h.Handle(u)
			}
			if reply.Text != tt.want {
				t.Errorf("reply = %q, want %q", reply.Text, tt.want)
			}
		})
	}
}

func TestHandle_InvalidAmountReprompts(t *testing.T) {
	h, m, _ := newTestHandler(t)
	h.Handle(msg(dad, BtnExpense))
	if reply := h.Handle(msg(dad, "abc")); reply.Text != MsgInvalidAmount {
		t.Fatalf("reply = %q", reply.Text)
	}
	if reply := h.Handle(msg(dad, "100")); !strings.HasPrefix(reply.Text, "Додано витрати") {
		t.Errorf("retry after invalid amount = %q", reply.Text)
	}
	if r, _ := m.Report(); !r.ExpensesOf(dad).Equal(decimal.NewFromInt(100)) {
		t.Errorf("expenses = %s, want 100", r.ExpensesOf(dad))
	}
}

func TestHandle_ButtonCancelsPrompt(t *testing.T) {
	h, m, _ := newTestHandler(t)
	h.Handle(msg(dad, BtnExpense))
	h.Handle(msg(dad, BtnBalance))
	h.Handle(msg(dad, "100"))
	if r, _ := m.Report(); !r.TotalExpenses.IsZero() {
		t.Error("expense booked after the prompt was cancelled")
	}
}

func TestHandle_LimitAndBalance(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.Handle(msg(mom, BtnLimit))
	if reply := h.Handle(msg(mom, "50000")); !strings.HasPrefix(reply.Text, "Новий ліміт") {
		t.Fatalf("limit reply = %q", reply.Text)
	}
	reply := h.Handle(msg(dad, "/balance@FamilyBudgetBot"))
	if !strings.Contains(reply.Text, "Залишок") || !strings.Contains(reply.Text, "Витрати mom") {
		t.Errorf("balance reply = %q", reply.Text)
	}
	r, err := h.OnBalanceRequested()
	if err != nil || !r.Limit.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("OnBalanceRequested = %s, %v", r.Limit, err)
	}
}

func TestHandle_UndoReportsAmount(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if got := h.OnExpenseReported(dad, "250,50"); !strings.HasPrefix(got, "Додано витрати") {
		t.Fatalf("OnExpenseReported = %q", got)
	}
	got := h.OnUndoRequested(dad)
	if !strings.HasPrefix(got, "Скасовано витрату") {
		t.Errorf("OnUndoRequested = %q", got)
	}
	if got := h.OnUndoRequested(dad); got != MsgEmptyHistory {
		t.Errorf("second undo = %q", got)
	}
}

func TestHandle_PersistenceFailure(t *testing.T) {
	h, m, store := newTestHandler(t)
	store.fail = true
	if got := h.OnExpenseReported(dad, "100"); got != MsgSaveFailed {
		t.Errorf("reply = %q, want %q", got, MsgSaveFailed)
	}
	store.fail = false
	if r, _ := m.Report(); !r.TotalExpenses.IsZero() {
		t.Error("failed write left an expense behind")
	}
}

func TestHandle_Archive(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if reply := h.Handle(msg(dad, BtnArchive)); reply.Text != "Архів порожній." {
		t.Errorf("archive reply = %q", reply.Text)
	}
	entries, err := h.OnArchiveRequested()
	if err != nil || len(entries) != 0 {
		t.Errorf("OnArchiveRequested = %v, %v", entries, err)
	}
}

func TestHandle_ArchivedPeriod(t *testing.T) {
	now := time.Date(2026, time.September, 20, 12, 0, 0, 0, time.UTC)
	store := ledger.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	m, err := ledger.NewManager(store, ledger.Config{
		BaseLimit:    decimal.NewFromInt(40000),
		Contributors: members,
		Location:     time.UTC,
	}, ledger.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := New(m, notifier.Formatter{Currency: "UAH", Members: members}, nil, zerolog.Nop())

	if _, _, err := m.RecordExpense(dad, "1500"); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	now = time.Date(2026, time.October, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"archived month", "/archive 2026-09", "Архів за 2026-09"},
		{"group suffix", "/archive@family_budget_bot 2026-09", "Архів за 2026-09"},
		{"unknown month", "/archive 2025-01", MsgPeriodMissing},
		{"live month", "/archive 2026-10", MsgPeriodMissing},
		{"malformed month", "/archive вересень", MsgBadPeriod},
		{"no argument", "/archive", "2026-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := h.Handle(msg(mom, tt.text))
			if !strings.Contains(reply.Text, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", reply.Text, tt.want)
			}
		})
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		in, name, arg string
	}{
		{"/archive", "/archive", ""},
		{"/archive 2026-09", "/archive", "2026-09"},
		{"/archive@bot  2026-09 ", "/archive", "2026-09"},
		{"/undo@bot", "/undo", ""},
		{"1 500", "1 500", ""},
		{BtnArchive, BtnArchive, ""},
	}
	for _, tt := range tests {
		name, arg := command(tt.in)
		if name != tt.name || arg != tt.arg {
			t.Errorf("command(%q) = %q, %q; want %q, %q", tt.in, name, arg, tt.name, tt.arg)
		}
	}
}

func TestHandle_IgnoresEmptyUpdates(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if h.Handle(notifier.Update{}) != nil || h.Handle(msg(dad, "   ")) != nil {
		t.Error("expected no reply")
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notifier.Message
}

func (s *recordingSender) SendWithRetry(_ context.Context, m notifier.Message, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func TestDispatch_SendsReply(t *testing.T) {
	_, m, _ := newTestHandler(t)
	sender := &recordingSender{}
	h := New(m, notifier.Formatter{Currency: "UAH", Members: members}, sender, zerolog.Nop())

	h.Dispatch(context.Background(), msg(dad, "/start"))
	if len(sender.sent) != 1 || sender.sent[0].Text != MsgStarted || sender.sent[0].Keyboard != Keyboard {
		t.Errorf("sent = %+v", sender.sent)
	}
}
