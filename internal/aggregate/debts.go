package aggregate

import "koin/internal/core"

const (
	cardsSliceName  = "Cards"
	cardsSliceColor = "#F43F5E"
	debtSliceColor  = "#EF4444"
)

// DebtBreakdown returns the liabilities donut: one slice for the combined
// credit card balance, when positive, and one per debt keyed by institution.
func DebtBreakdown(debts []core.Debt, cardsBalance core.Money) []Slice {
	out := make([]Slice, 0, len(debts)+1)
	if cardsBalance.IsPositive() {
		out = append(out, Slice{Name: cardsSliceName, Value: cardsBalance, Color: cardsSliceColor})
	}
	for _, d := range debts {
		name := d.Institution
		if name == "" {
			name = d.Name
		}
		out = append(out, Slice{ID: d.ID, Name: name, Value: d.CurrentBalance, Color: debtSliceColor})
	}
	sortSlices(out)
	withShares(out)
	return out
}
