package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is the derived summary of one period.
type Report struct {
	Period               Period                    `json:"period"`
	Limit                decimal.Decimal           `json:"limit"`
	CarryOver            decimal.Decimal           `json:"carry_over"`
	EffectiveLimit       decimal.Decimal           `json:"effective_limit"`
	Expenses             map[int64]decimal.Decimal `json:"expenses_by_contributor"`
	TotalExpenses        decimal.Decimal           `json:"total_expenses"`
	TotalIncome          decimal.Decimal           `json:"income"`
	Balance              decimal.Decimal           `json:"balance"`
	IncomeAffectsBalance bool                      `json:"income_affects_balance"`
}

// ExpensesOf returns the total spent by one contributor, zero if none.
func (r Report) ExpensesOf(contributor int64) decimal.Decimal {
	if v, ok := r.Expenses[contributor]; ok {
		return v
	}
	return decimal.Zero
}

// ArchiveEntry is the frozen snapshot of a concluded period.
type ArchiveEntry struct {
	Period   Period                  `json:"period"`
	Report   Report                  `json:"report"`
	Carry    decimal.Decimal         `json:"carry"`
	Expenses map[int64][]Transaction `json:"expenses"`
	Income   []Transaction           `json:"income"`
	ClosedAt time.Time               `json:"closed_at"`
}
