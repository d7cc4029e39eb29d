package notifier

import (
	"fmt"
	"html"
	"slices"
	"strings"

	"FamilyBudget/internal/model"
	"FamilyBudget/internal/money"
)

// Formatter renders ledger values as chat messages.
type Formatter struct {
	Currency string
	Members  []model.Contributor
}

// FormatReport formats the live period summary.
func (f Formatter) FormatReport(r model.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Бюджет за %s</b>\n\n", r.Period))
	f.writeTotals(&b, r)
	return b.String()
}

// FormatArchive lists concluded periods, oldest first.
func (f Formatter) FormatArchive(entries []model.ArchiveEntry) string {
	if len(entries) == 0 {
		return "Архів порожній."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Архів</b>\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("\n<b>%s</b>: витрати %s, залишок %s",
			e.Period,
			money.Format(e.Report.TotalExpenses, f.Currency),
			money.FormatSigned(e.Report.Balance, f.Currency)))
	}
	return b.String()
}

// FormatArchiveEntry formats one concluded period in full.
func (f Formatter) FormatArchiveEntry(e model.ArchiveEntry) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>Архів за %s</b>\n\n", e.Period))
	f.writeTotals(&b, e.Report)
	b.WriteString(fmt.Sprintf("Перенесено далі: %s\n", money.FormatSigned(e.Carry, f.Currency)))
	b.WriteString(fmt.Sprintf("Закрито: %s\n", e.ClosedAt.Format("2006-01-02 15:04")))
	return b.String()
}

// FormatMonthlySummary is pushed to the family chat after a rollover.
func (f Formatter) FormatMonthlySummary(closed model.ArchiveEntry, next model.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Підсумок місяця</b> | %s\n\n", closed.Period))
	f.writeTotals(&b, closed.Report)
	b.WriteString(fmt.Sprintf("\nПеренесено в %s: %s\n", next.Period, money.FormatSigned(closed.Carry, f.Currency)))
	b.WriteString(fmt.Sprintf("Доступно на новий місяць: %s\n", money.Format(next.EffectiveLimit, f.Currency)))
	return b.String()
}

func (f Formatter) writeTotals(b *strings.Builder, r model.Report) {
	b.WriteString(fmt.Sprintf("Ліміт: %s\n", money.Format(r.Limit, f.Currency)))
	if !r.CarryOver.IsZero() {
		b.WriteString(fmt.Sprintf("Перенесено: %s\n", money.FormatSigned(r.CarryOver, f.Currency)))
		b.WriteString(fmt.Sprintf("Доступно: %s\n", money.Format(r.EffectiveLimit, f.Currency)))
	}
	for _, id := range f.contributorOrder(r) {
		b.WriteString(fmt.Sprintf("Витрати %s: %s\n", f.roleOf(id), money.Format(r.ExpensesOf(id), f.Currency)))
	}
	if !r.TotalIncome.IsZero() {
		b.WriteString(fmt.Sprintf("Дохід: %s\n", money.Format(r.TotalIncome, f.Currency)))
	}
	b.WriteString(fmt.Sprintf("Залишок: %s\n", money.Format(r.Balance, f.Currency)))
}

// contributorOrder lists configured members first, then any other id that
// has expenses in r.
func (f Formatter) contributorOrder(r model.Report) []int64 {
	ids := make([]int64, 0, len(f.Members)+len(r.Expenses))
	for _, m := range f.Members {
		ids = append(ids, m.ID)
	}
	var extra []int64
	for id := range r.Expenses {
		if !slices.Contains(ids, id) {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	return append(ids, extra...)
}

func (f Formatter) roleOf(id int64) string {
	for _, m := range f.Members {
		if m.ID == id && m.Role != "" {
			return html.EscapeString(m.Role)
		}
	}
	return fmt.Sprint(id)
}
