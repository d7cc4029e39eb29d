package ledger

import (
	"slices"
	"time"

	"FamilyBudget/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store holds the transactions of the live period: one LIFO sequence of
// expenses per contributor and a single income sequence.
type Store struct {
	expenses map[int64][]model.Transaction
	income   []model.Transaction
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{expenses: make(map[int64][]model.Transaction)}
}

func newTransaction(contributor int64, amount decimal.Decimal, at time.Time) model.Transaction {
	return model.Transaction{
		ID:          uuid.NewString(),
		Contributor: contributor,
		Amount:      amount,
		At:          at,
	}
}

// AppendExpense records an expense for contributor.
func (s *Store) AppendExpense(contributor int64, amount decimal.Decimal, at time.Time) model.Transaction {
	tx := newTransaction(contributor, amount, at)
	s.expenses[contributor] = append(s.expenses[contributor], tx)
	return tx
}

// AppendIncome records an income entry reported by contributor.
func (s *Store) AppendIncome(contributor int64, amount decimal.Decimal, at time.Time) model.Transaction {
	tx := newTransaction(contributor, amount, at)
	s.income = append(s.income, tx)
	return tx
}

// PopExpense removes and returns the contributor's most recent expense.
func (s *Store) PopExpense(contributor int64) (model.Transaction, error) {
	txs := s.expenses[contributor]
	if len(txs) == 0 {
		return model.Transaction{}, ErrEmptyHistory
	}
	last := txs[len(txs)-1]
	if len(txs) == 1 {
		delete(s.expenses, contributor)
	} else {
		s.expenses[contributor] = txs[:len(txs)-1]
	}
	return last, nil
}

// Expenses returns a copy of the contributor's expense sequence.
func (s *Store) Expenses(contributor int64) []model.Transaction {
	return slices.Clone(s.expenses[contributor])
}

// AllExpenses returns a copy of every contributor's sequence.
func (s *Store) AllExpenses() map[int64][]model.Transaction {
	return cloneTxMap(s.expenses)
}

// Income returns a copy of the income sequence.
func (s *Store) Income() []model.Transaction {
	return slices.Clone(s.income)
}

// ExpenseTotals sums expenses per contributor.
func (s *Store) ExpenseTotals() map[int64]decimal.Decimal {
	totals := make(map[int64]decimal.Decimal, len(s.expenses))
	for id, txs := range s.expenses {
		totals[id] = model.Sum(txs)
	}
	return totals
}

func (s *Store) TotalExpenses() decimal.Decimal {
	total := decimal.Zero
	for _, txs := range s.expenses {
		total = total.Add(model.Sum(txs))
	}
	return total
}

func (s *Store) TotalIncome() decimal.Decimal {
	return model.Sum(s.income)
}

// Reset drops every transaction.
func (s *Store) Reset() {
	s.expenses = make(map[int64][]model.Transaction)
	s.income = nil
}

func cloneTxMap(m map[int64][]model.Transaction) map[int64][]model.Transaction {
	out := make(map[int64][]model.Transaction, len(m))
	for id, txs := range m {
		out[id] = slices.Clone(txs)
	}
	return out
}
