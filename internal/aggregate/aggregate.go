// Package aggregate turns raw ledger records into the derived monthly view:
// totals per kind, net worth, per-category spend and chart-ready
// distributions.
//
// Aggregate is a pure function. It never returns an error for data quality
// problems: stale category references are treated as uncategorized, unknown
// kinds are skipped and counted, non-numeric amounts were already decoded
// as zero by the store.
package aggregate

import (
	"sort"

	"koin/internal/core"
)

// Snapshot is a consistent copy of one user's collections.
type Snapshot struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Debts        []core.Debt
	Receivables  []core.Receivable
}

// Slice is one chart segment.
type Slice struct {
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name"`
	Value core.Money `json:"value"`
	Color string     `json:"color"`
	Share float64    `json:"share"` // percent of the reference total
}

// CategoryStat is the period activity of one category.
type CategoryStat struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Color          string              `json:"color"`
	Icon           string              `json:"icon"`
	Classification core.Classification `json:"classification"`
	Spent          core.Money          `json:"spent"`
	Budget         core.Money          `json:"budget"`
	BudgetUsed     float64             `json:"budget_used"` // percent of budget, 0 without budget
	OverBudget     bool                `json:"over_budget"`
}

// Goal is the progress of a savings category towards its target.
type Goal struct {
	CategoryID string     `json:"category_id"`
	Name       string     `json:"name"`
	Color      string     `json:"color"`
	Saved      core.Money `json:"saved"`
	Target     core.Money `json:"target"`
	Progress   float64    `json:"progress"` // percent, capped at 100
	Reached    bool       `json:"reached"`
}

// View is the derived view model for one period.
type View struct {
	Period core.Period `json:"period"`

	TotalIncome      core.Money `json:"total_income"`
	TotalExpense     core.Money `json:"total_expense"`
	MonthlyBalance   core.Money `json:"monthly_balance"`
	TotalSavings     core.Money `json:"total_savings"`
	TotalInvestment  core.Money `json:"total_investment"`
	TotalReceivables core.Money `json:"total_receivables"`
	TotalDebt        core.Money `json:"total_debt"`
	TotalAssets      core.Money `json:"total_assets"`
	NetWorth         core.Money `json:"net_worth"`

	// Uncategorized is the expense amount that could not be attributed to
	// an existing category.
	Uncategorized core.Money `json:"uncategorized"`

	PerCategorySpend map[string]core.Money `json:"per_category_spend"`
	Distribution     []Slice               `json:"distribution"`
	Groups           []Slice               `json:"groups"`
	Categories       []CategoryStat        `json:"categories"`
	Goals            []Goal                `json:"goals"`

	// Skipped counts in-period transactions ignored because of an unknown kind.
	Skipped int `json:"skipped"`
}

// Group slice labels and colors.
const (
	GroupNeeds             = "Needs"
	GroupWants             = "Wants"
	GroupSavingsInvestment = "Savings & Investments"

	colorNeeds             = "#6366F1"
	colorWants             = "#EC4899"
	colorSavingsInvestment = "#10B981"
)

// Aggregate computes the view of s for period p.
func Aggregate(s Snapshot, p core.Period) View {
	v := View{
		Period:           p,
		PerCategorySpend: make(map[string]core.Money, len(s.Categories)),
	}

	cats := indexCategories(s.Categories)
	for _, c := range s.Categories {
		v.PerCategorySpend[c.ID] = core.Zero
	}

	txs := inPeriod(s.Transactions, p)

	spent := make(map[string]core.Money, len(s.Categories))
	saved := make(map[string]core.Money)

	for _, t := range txs {
		if !t.Kind.Valid() {
			v.Skipped++
			continue
		}

		cat, resolved := cats[t.CategoryID]
		if t.CategoryID == "" {
			resolved = false
		}

		switch t.Kind {
		case core.KindIncome:
			v.TotalIncome = v.TotalIncome.Add(t.Amount)
		case core.KindExpense:
			v.TotalExpense = v.TotalExpense.Add(t.Amount)
			if resolved {
				v.PerCategorySpend[cat.ID] = v.PerCategorySpend[cat.ID].Add(t.Amount)
			} else {
				v.Uncategorized = v.Uncategorized.Add(t.Amount)
			}
		}

		if t.Kind == core.KindSaving || (resolved && cat.Classification == core.Saving) {
			v.TotalSavings = v.TotalSavings.Add(t.Amount)
		}
		if t.Kind == core.KindInvestment || (resolved && cat.Classification == core.Investment) {
			v.TotalInvestment = v.TotalInvestment.Add(t.Amount)
		}

		if resolved {
			switch t.Kind {
			case core.KindExpense, core.KindSaving, core.KindInvestment:
				spent[cat.ID] = spent[cat.ID].Add(t.Amount)
			}
			if t.Kind == core.KindSaving {
				saved[cat.ID] = saved[cat.ID].Add(t.Amount)
			}
		}
	}

	v.MonthlyBalance = v.TotalIncome.Sub(v.TotalExpense)
	v.TotalReceivables = TotalReceivables(s.Receivables)
	v.TotalDebt = TotalDebt(s.Debts)
	v.TotalAssets = v.TotalSavings.Add(v.TotalInvestment).Add(v.TotalReceivables)
	v.NetWorth = v.TotalAssets.Sub(v.TotalDebt)

	v.Distribution = distribution(s.Categories, v.PerCategorySpend, v.TotalExpense)
	v.Categories = categoryStats(s.Categories, spent)
	v.Groups = groups(v.Categories)
	v.Goals = goals(s.Categories, saved)

	return v
}

// inPeriod drops internal transfer logs, then keeps transactions dated in p.
func inPeriod(txs []core.Transaction, p core.Period) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Kind == core.KindInternalTransferLog {
			continue
		}
		if !p.Contains(t.Date) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// indexCategories maps id to category. With duplicate ids the first wins.
func indexCategories(cats []core.Category) map[string]core.Category {
	m := make(map[string]core.Category, len(cats))
	for _, c := range cats {
		if _, ok := m[c.ID]; ok {
			continue
		}
		m[c.ID] = c
	}
	return m
}

// TotalReceivables sums every receivable that is not paid.
func TotalReceivables(rs []core.Receivable) core.Money {
	total := core.Zero
	for _, r := range rs {
		if r.Outstanding() {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// TotalDebt sums the current balance of every debt.
func TotalDebt(ds []core.Debt) core.Money {
	total := core.Zero
	for _, d := range ds {
		total = total.Add(d.CurrentBalance)
	}
	return total
}

// distribution shares are relative to the period's total expense, which
// includes uncategorized spend.
func distribution(cats []core.Category, spend map[string]core.Money, totalExpense core.Money) []Slice {
	seen := make(map[string]bool, len(cats))
	out := make([]Slice, 0, len(cats))
	for _, c := range cats {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Classification == core.Saving || c.Classification == core.Investment {
			continue
		}
		value := spend[c.ID]
		if !value.IsPositive() {
			continue
		}
		out = append(out, Slice{ID: c.ID, Name: c.Name, Value: value, Color: c.Color})
	}
	sortSlices(out)
	for i := range out {
		out[i].Share = core.Percent(out[i].Value, totalExpense)
	}
	return out
}

func categoryStats(cats []core.Category, spent map[string]core.Money) []CategoryStat {
	seen := make(map[string]bool, len(cats))
	out := make([]CategoryStat, 0, len(cats))
	for _, c := range cats {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		s := spent[c.ID]
		out = append(out, CategoryStat{
			ID:             c.ID,
			Name:           c.Name,
			Color:          c.Color,
			Icon:           c.Icon,
			Classification: c.Classification,
			Spent:          s,
			Budget:         c.Budget,
			BudgetUsed:     core.Percent(s, c.Budget),
			OverBudget:     c.Budget.IsPositive() && s.Cmp(c.Budget) > 0,
		})
	}
	return out
}

// groups folds category stats into the needs / wants / savings donut.
func groups(stats []CategoryStat) []Slice {
	needs, wants, savings := core.Zero, core.Zero, core.Zero
	for _, s := range stats {
		switch s.Classification {
		case core.Necessity:
			needs = needs.Add(s.Spent)
		case core.Want:
			wants = wants.Add(s.Spent)
		case core.Saving, core.Investment:
			savings = savings.Add(s.Spent)
		}
	}
	out := []Slice{
		{Name: GroupNeeds, Value: needs, Color: colorNeeds},
		{Name: GroupWants, Value: wants, Color: colorWants},
		{Name: GroupSavingsInvestment, Value: savings, Color: colorSavingsInvestment},
	}
	withShares(out)
	return out
}

func goals(cats []core.Category, saved map[string]core.Money) []Goal {
	var out []Goal
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Classification != core.Saving || !c.TargetAmount.IsPositive() {
			continue
		}
		s := saved[c.ID]
		progress := core.Percent(s, c.TargetAmount)
		if progress > 100 {
			progress = 100
		}
		out = append(out, Goal{
			CategoryID: c.ID,
			Name:       c.Name,
			Color:      c.Color,
			Saved:      s,
			Target:     c.TargetAmount,
			Progress:   progress,
			Reached:    s.Cmp(c.TargetAmount) >= 0,
		})
	}
	return out
}

// sortSlices orders by value descending. Ties are broken by name and id so
// the output does not depend on input order.
func sortSlices(s []Slice) {
	sort.SliceStable(s, func(i, j int) bool {
		if c := s[i].Value.Cmp(s[j].Value); c != 0 {
			return c > 0
		}
		if s[i].Name != s[j].Name {
			return s[i].Name < s[j].Name
		}
		return s[i].ID < s[j].ID
	})
}

// withShares fills Share as the percent of the set total.
func withShares(s []Slice) {
	total := core.Zero
	for _, x := range s {
		total = total.Add(x.Value)
	}
	for i := range s {
		s[i].Share = core.Percent(s[i].Value, total)
	}
}
