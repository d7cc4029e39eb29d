// Package bot turns chat messages into ledger operations. It keeps a small
// per-user state machine: after a prompt button the user's next message is
// read as the amount for that prompt.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"FamilyBudget/internal/ledger"
	"FamilyBudget/internal/model"
	"FamilyBudget/internal/money"
	"FamilyBudget/internal/notifier"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Menu buttons.
const (
	BtnExpense = "Витрати"
	BtnIncome  = "Дохід"
	BtnLimit   = "Ліміт"
	BtnBalance = "Залишок"
	BtnUndo    = "Скасувати"
	BtnArchive = "Архів"
)

// Fixed replies.
const (
	MsgInvalidAmount = "Введи число!"
	MsgAccessDenied  = "Ти не маєш доступу для внесення витрат."
	MsgEmptyHistory  = "Немає витрат для скасування."
	MsgSaveFailed    = "Не вдалося зберегти зміни, спробуй ще раз."
	MsgReadFailed    = "Не вдалося отримати дані, спробуй пізніше."
	MsgStarted       = "Бот для обліку витрат запущений!"
	MsgChooseAction  = "Вибери дію з кнопок."
	MsgAskExpense    = "Введи суму витрат (числом):"
	MsgAskIncome     = "Введи суму доходу (числом):"
	MsgAskLimit      = "Введи новий ліміт (числом):"
	MsgBadPeriod     = "Вкажи місяць у форматі РРРР-ММ, наприклад /archive 2026-09."
	MsgPeriodMissing = "Такого місяця в архіві немає."
	MsgHelp          = "Кнопки:\n" +
		"• Витрати, Дохід, Ліміт: після натискання надішли суму\n" +
		"• Залишок: звіт за поточний місяць\n" +
		"• Скасувати: прибрати твою останню витрату\n" +
		"• Архів: попередні місяці\n\n" +
		"Команди: /balance /archive /archive РРРР-ММ /undo /help"
)

// Keyboard is the reply keyboard shown with /start and the menu hint.
var Keyboard = notifier.NewReplyKeyboard(
	[]string{BtnExpense, BtnIncome, BtnLimit},
	[]string{BtnBalance, BtnUndo, BtnArchive},
)

// Ledger is the part of ledger.Manager the bot drives.
type Ledger interface {
	RecordExpense(contributorID int64, raw string) (model.Transaction, model.Report, error)
	RecordIncome(contributorID int64, raw string) (model.Transaction, model.Report, error)
	UndoLastExpense(contributorID int64) (model.Transaction, model.Report, error)
	SetLimit(contributorID int64, raw string) (model.Report, error)
	Report() (model.Report, error)
	Archive() ([]model.ArchiveEntry, error)
	ArchivedPeriod(p model.Period) (model.ArchiveEntry, error)
}

// Sender delivers replies.
type Sender interface {
	SendWithRetry(ctx context.Context, msg notifier.Message, maxRetries int) error
}

type prompt int

const (
	promptNone prompt = iota
	promptExpense
	promptIncome
	promptLimit
)

// Handler answers chat updates.
type Handler struct {
	ledger Ledger
	format notifier.Formatter
	sender Sender
	log    zerolog.Logger

	mu       sync.Mutex
	awaiting map[int64]prompt
}

// New creates a Handler. sender may be nil when replies are only read from
// Handle.
func New(l Ledger, format notifier.Formatter, sender Sender, log zerolog.Logger) *Handler {
	return &Handler{
		ledger:   l,
		format:   format,
		sender:   sender,
		log:      log,
		awaiting: make(map[int64]prompt),
	}
}

// Dispatch handles u and sends the reply, if any.
func (h *Handler) Dispatch(ctx context.Context, u notifier.Update) {
	reply := h.Handle(u)
	if reply == nil || h.sender == nil {
		return
	}
	if err := h.sender.SendWithRetry(ctx, *reply, 3); err != nil {
		h.log.Error().Err(err).Int64("chat", reply.ChatID).Msg("send reply")
	}
}

// Handle computes the reply to u. It returns nil for updates without text.
func (h *Handler) Handle(u notifier.Update) *notifier.Message {
	text := u.Text()
	if text == "" {
		return nil
	}
	user := u.SenderID()
	reply := &notifier.Message{ChatID: u.Message.Chat.ID}

	cmd, arg := command(text)
	switch cmd {
	case "/start":
		h.setPrompt(user, promptNone)
		reply.Text, reply.Keyboard = MsgStarted, Keyboard
	case "/help":
		h.setPrompt(user, promptNone)
		reply.Text, reply.Keyboard = MsgHelp, Keyboard
	case BtnExpense:
		h.setPrompt(user, promptExpense)
		reply.Text = MsgAskExpense
	case BtnIncome:
		h.setPrompt(user, promptIncome)
		reply.Text = MsgAskIncome
	case BtnLimit:
		h.setPrompt(user, promptLimit)
		reply.Text = MsgAskLimit
	case BtnBalance, "/balance":
		h.setPrompt(user, promptNone)
		reply.Text = h.balanceText()
	case BtnUndo, "/undo":
		h.setPrompt(user, promptNone)
		reply.Text = h.OnUndoRequested(user)
	case BtnArchive, "/archive":
		h.setPrompt(user, promptNone)
		if arg != "" {
			reply.Text = h.archivedPeriodText(arg)
		} else {
			reply.Text = h.archiveText()
		}
	default:
		p := h.takePrompt(user)
		switch p {
		case promptExpense:
			reply.Text = h.OnExpenseReported(user, text)
		case promptIncome:
			reply.Text = h.OnIncomeReported(user, text)
		case promptLimit:
			reply.Text = h.OnLimitReported(user, text)
		default:
			reply.Text, reply.Keyboard = MsgChooseAction, Keyboard
		}
		// A malformed amount re-prompts: the next message is tried again.
		if reply.Text == MsgInvalidAmount {
			h.setPrompt(user, p)
		}
	}
	return reply
}

// command splits a slash command into its name, without the "@botname"
// suffix used in groups, and its argument. Other text is returned as is.
func command(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return text, ""
	}
	name, arg, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return name, strings.TrimSpace(arg)
}

func (h *Handler) setPrompt(user int64, p prompt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p == promptNone {
		delete(h.awaiting, user)
		return
	}
	h.awaiting[user] = p
}

// takePrompt returns and clears the pending prompt of user.
func (h *Handler) takePrompt(user int64) prompt {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.awaiting[user]
	delete(h.awaiting, user)
	return p
}

// OnExpenseReported books raw as an expense of contributorID.
func (h *Handler) OnExpenseReported(contributorID int64, raw string) string {
	tx, r, err := h.ledger.RecordExpense(contributorID, raw)
	if err != nil {
		return h.errorText(err, "expense")
	}
	return "Додано витрати: " + h.amount(tx.Amount) + "\nЗалишок: " + h.amount(r.Balance)
}

// OnIncomeReported books raw as income reported by contributorID.
func (h *Handler) OnIncomeReported(contributorID int64, raw string) string {
	tx, r, err := h.ledger.RecordIncome(contributorID, raw)
	if err != nil {
		return h.errorText(err, "income")
	}
	return "Додано дохід: " + h.amount(tx.Amount) + "\nЗалишок: " + h.amount(r.Balance)
}

// OnUndoRequested removes the latest expense of contributorID.
func (h *Handler) OnUndoRequested(contributorID int64) string {
	tx, r, err := h.ledger.UndoLastExpense(contributorID)
	if err != nil {
		return h.errorText(err, "undo")
	}
	return "Скасовано витрату: " + h.amount(tx.Amount) + "\nЗалишок: " + h.amount(r.Balance)
}

// OnLimitReported replaces the monthly limit.
func (h *Handler) OnLimitReported(contributorID int64, raw string) string {
	r, err := h.ledger.SetLimit(contributorID, raw)
	if err != nil {
		return h.errorText(err, "limit")
	}
	return "Новий ліміт: " + h.amount(r.Limit) + "\nЗалишок: " + h.amount(r.Balance)
}

// OnBalanceRequested returns the live period report.
func (h *Handler) OnBalanceRequested() (model.Report, error) {
	return h.ledger.Report()
}

// OnArchiveRequested returns all concluded periods, oldest first.
func (h *Handler) OnArchiveRequested() ([]model.ArchiveEntry, error) {
	return h.ledger.Archive()
}

// OnArchivedPeriodRequested returns the concluded period p.
func (h *Handler) OnArchivedPeriodRequested(p model.Period) (model.ArchiveEntry, error) {
	return h.ledger.ArchivedPeriod(p)
}

func (h *Handler) balanceText() string {
	r, err := h.OnBalanceRequested()
	if err != nil {
		h.log.Error().Err(err).Msg("balance request failed")
		return MsgReadFailed
	}
	return h.format.FormatReport(r)
}

func (h *Handler) archiveText() string {
	entries, err := h.OnArchiveRequested()
	if err != nil {
		h.log.Error().Err(err).Msg("archive request failed")
		return MsgReadFailed
	}
	return h.format.FormatArchive(entries)
}

func (h *Handler) archivedPeriodText(arg string) string {
	p, err := model.ParsePeriod(arg)
	if err != nil {
		return MsgBadPeriod
	}
	entry, err := h.OnArchivedPeriodRequested(p)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return MsgPeriodMissing
	case err != nil:
		h.log.Error().Err(err).Str("period", arg).Msg("archive lookup failed")
		return MsgReadFailed
	}
	return h.format.FormatArchiveEntry(entry)
}

func (h *Handler) errorText(err error, op string) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return MsgInvalidAmount
	case errors.Is(err, ledger.ErrAccessDenied):
		h.log.Warn().Err(err).Str("op", op).Msg("rejected contributor")
		return MsgAccessDenied
	case errors.Is(err, ledger.ErrEmptyHistory):
		return MsgEmptyHistory
	default:
		h.log.Error().Err(err).Str("op", op).Msg("ledger operation failed")
		return MsgSaveFailed
	}
}

func (h *Handler) amount(v decimal.Decimal) string {
	return money.Format(v, h.format.Currency)
}
