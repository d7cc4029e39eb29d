package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single recorded expense or income event. It is never
// mutated after creation; expenses can only be removed.
type Transaction struct {
	ID          string          `json:"id"`
	Contributor int64           `json:"contributor"`
	Amount      decimal.Decimal `json:"amount"`
	At          time.Time       `json:"at"`
}

// Sum adds up the amounts of txs.
func Sum(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}
