// Package ledger implements the monthly family budget: the transaction store
// of the live period, balance computation, month rollover with archival, and
// the locked Manager that persists every change.
package ledger

import (
	"fmt"
	"time"

	"FamilyBudget/internal/model"

	"github.com/shopspring/decimal"
)

// Ledger is the state of the live period plus the archive of past ones.
// It is not safe for concurrent use; Manager serializes access.
//
// The carry of the previous period is folded into the effective limit:
// EffectiveLimit = limit + carryOver, and the balance is derived from the
// effective limit only, so the carry is never counted twice.
type Ledger struct {
	period    model.Period
	limit     decimal.Decimal
	carryOver decimal.Decimal
	store     *Store
	archive   *Archive

	incomeAffectsBalance bool
}

// New starts an empty ledger for period with the given base limit.
func New(period model.Period, limit decimal.Decimal, incomeAffectsBalance bool) *Ledger {
	archive, _ := NewArchive(nil)
	return &Ledger{
		period:               period,
		limit:                limit,
		carryOver:            decimal.Zero,
		store:                NewStore(),
		archive:              archive,
		incomeAffectsBalance: incomeAffectsBalance,
	}
}

// FromState rebuilds a ledger from its persisted record.
func FromState(st *model.State, incomeAffectsBalance bool) (*Ledger, error) {
	if st.Period.IsZero() {
		return nil, fmt.Errorf("state has no period")
	}
	archive, err := NewArchive(st.Archive)
	if err != nil {
		return nil, err
	}
	if archive.Has(st.Period) {
		return nil, fmt.Errorf("%w: live period %s is also archived", ErrDuplicateArchive, st.Period)
	}
	store := NewStore()
	store.expenses = cloneTxMap(st.Expenses)
	for id, txs := range store.expenses {
		if len(txs) == 0 {
			delete(store.expenses, id)
		}
	}
	store.income = append(store.income, st.Income...)
	return &Ledger{
		period:               st.Period,
		limit:                st.Limit,
		carryOver:            st.CarryOver,
		store:                store,
		archive:              archive,
		incomeAffectsBalance: incomeAffectsBalance,
	}, nil
}

// State returns a deep copy of the ledger as its persisted record.
func (l *Ledger) State() *model.State {
	return &model.State{
		Period:    l.period,
		Limit:     l.limit,
		CarryOver: l.carryOver,
		Expenses:  l.store.AllExpenses(),
		Income:    l.store.Income(),
		Archive:   l.archive.Entries(),
	}
}

func (l *Ledger) Period() model.Period       { return l.period }
func (l *Ledger) Limit() decimal.Decimal     { return l.limit }
func (l *Ledger) CarryOver() decimal.Decimal { return l.carryOver }
func (l *Ledger) Archive() *Archive          { return l.archive }
func (l *Ledger) Store() *Store              { return l.store }
func (l *Ledger) IncomeAffectsBalance() bool { return l.incomeAffectsBalance }
func (l *Ledger) EffectiveLimit() decimal.Decimal {
	return l.limit.Add(l.carryOver)
}

// SetLimit replaces the base limit of the period. The folded carry and the
// recorded transactions are left untouched.
func (l *Ledger) SetLimit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.limit = amount
	return nil
}

// RecordExpense appends an expense for contributor.
func (l *Ledger) RecordExpense(contributor int64, amount decimal.Decimal, at time.Time) (model.Transaction, error) {
	if amount.IsNegative() {
		return model.Transaction{}, ErrInvalidAmount
	}
	return l.store.AppendExpense(contributor, amount, at), nil
}

// RecordIncome appends an income entry.
func (l *Ledger) RecordIncome(contributor int64, amount decimal.Decimal, at time.Time) (model.Transaction, error) {
	if amount.IsNegative() {
		return model.Transaction{}, ErrInvalidAmount
	}
	return l.store.AppendIncome(contributor, amount, at), nil
}

// UndoLastExpense removes the contributor's most recent expense.
func (l *Ledger) UndoLastExpense(contributor int64) (model.Transaction, error) {
	return l.store.PopExpense(contributor)
}

// Balance is EffectiveLimit - TotalExpenses, plus TotalIncome when income
// is configured to count towards the budget.
func (l *Ledger) Balance() decimal.Decimal {
	balance := l.EffectiveLimit().Sub(l.store.TotalExpenses())
	if l.incomeAffectsBalance {
		balance = balance.Add(l.store.TotalIncome())
	}
	return balance
}

// Report recomputes the period summary from the stored transactions.
func (l *Ledger) Report() model.Report {
	return model.Report{
		Period:               l.period,
		Limit:                l.limit,
		CarryOver:            l.carryOver,
		EffectiveLimit:       l.EffectiveLimit(),
		Expenses:             l.store.ExpenseTotals(),
		TotalExpenses:        l.store.TotalExpenses(),
		TotalIncome:          l.store.TotalIncome(),
		Balance:              l.Balance(),
		IncomeAffectsBalance: l.incomeAffectsBalance,
	}
}
