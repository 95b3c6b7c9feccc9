// Package creditcard keeps the credit card sub-ledger: buckets of card
// spending, repayments, and the derived usage of the credit line.
package creditcard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"koin/internal/core"
)

// Bucket is the balance of one card category.
type Bucket struct {
	ID         string                `json:"id"`
	Label      string                `json:"label"`
	Type       core.CardCategoryType `json:"type"`
	Color      string                `json:"color"`
	Icon       string                `json:"icon"`
	Shared     bool                  `json:"shared"`
	Balance    core.Money            `json:"balance"`
	Budget     core.Money            `json:"budget"`
	BudgetUsed float64               `json:"budget_used"`
	OverBudget bool                  `json:"over_budget"`
}

// Summary is the derived state of a credit line.
type Summary struct {
	Limit     core.Money `json:"limit"`
	Used      core.Money `json:"used"`
	Available core.Money `json:"available"`
	UsagePct  float64    `json:"usage_pct"` // 0 when there is no limit

	Personal core.Money `json:"personal"`
	External core.Money `json:"external"` // owed back by other people

	Buckets []Bucket `json:"buckets"`

	// Orphans counts charges whose bucket no longer exists. They are
	// left out of every total.
	Orphans int `json:"orphans"`

	NextPayment       core.Date  `json:"next_payment"`
	DaysToPayment     int        `json:"days_to_payment"`
	EstimatedInterest core.Money `json:"estimated_interest"`
}

var hundred = decimal.NewFromInt(100)

// Summarize derives the state of line from its charges as of now.
func Summarize(line core.CreditLine, charges []core.CardCharge, now time.Time) Summary {
	balances := make(map[string]core.Money, len(line.Categories))
	for _, c := range line.Categories {
		balances[c.ID] = core.Zero
	}

	s := Summary{Limit: line.Limit}
	for _, ch := range charges {
		bal, ok := balances[ch.CategoryID]
		if !ok {
			s.Orphans++
			continue
		}
		balances[ch.CategoryID] = bal.Add(ch.Signed())
		s.Used = s.Used.Add(ch.Signed())
	}

	for _, c := range line.Categories {
		b := Bucket{
			ID:      c.ID,
			Label:   c.Label,
			Type:    c.Type,
			Color:   c.Color,
			Icon:    c.Icon,
			Shared:  c.Shared,
			Balance: balances[c.ID],
		}
		if c.Type == core.CardExternal {
			s.External = s.External.Add(b.Balance)
		} else {
			s.Personal = s.Personal.Add(b.Balance)
			b.Budget = c.Budget
			b.BudgetUsed = core.Percent(b.Balance, c.Budget)
			b.OverBudget = c.Budget.IsPositive() && b.Balance.Cmp(c.Budget) > 0
		}
		s.Buckets = append(s.Buckets, b)
	}
	sort.SliceStable(s.Buckets, func(i, j int) bool {
		if s.Buckets[i].Type != s.Buckets[j].Type {
			return s.Buckets[i].Type == core.CardPersonal
		}
		return s.Buckets[i].Label < s.Buckets[j].Label
	})

	s.Available = line.Limit.Sub(s.Used)
	s.UsagePct = core.Percent(s.Used, line.Limit)

	if line.PayDay > 0 {
		s.NextPayment = NextPayment(line.PayDay, now)
		s.DaysToPayment = int(s.NextPayment.Sub(core.DateOf(now).Time).Hours() / 24)
	}
	if s.Used.IsPositive() && line.InterestRate.IsPositive() {
		s.EstimatedInterest = core.Money{Amount: s.Used.Amount.Mul(line.InterestRate).Div(hundred).Round(2)}
	}
	return s
}

// NextPayment returns the first pay day on or after now. A pay day past the
// end of a short month falls on that month's last day.
func NextPayment(payDay int, now time.Time) core.Date {
	today := core.DateOf(now)
	due := payDate(today.Year(), today.Month(), payDay)
	if due.Before(today.Time) {
		y, m := today.Year(), today.Month()+1
		if m > time.December {
			y, m = y+1, time.January
		}
		due = payDate(y, m, payDay)
	}
	return due
}

func payDate(year int, month time.Month, day int) core.Date {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return core.NewDate(year, int(month), day)
}
