package creditcard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"koin/internal/core"
	"koin/internal/store/memory"
)

func sampleLine() core.CreditLine {
	return core.CreditLine{
		Limit:        core.NewMoney(1000),
		PayDay:       15,
		InterestRate: decimal.RequireFromString("2.5"),
		Setup:        true,
		Categories: []core.CardCategory{
			{ID: "p1", Label: "Groceries", Type: core.CardPersonal, Budget: core.NewMoney(200)},
			{ID: "p2", Label: "Travel", Type: core.CardPersonal},
			{ID: "e1", Label: "Ana", Type: core.CardExternal, Shared: true},
		},
	}
}

func charge(id, cat string, kind core.ChargeKind, amount int64) core.CardCharge {
	return core.CardCharge{ID: id, CategoryID: cat, Kind: kind, Amount: core.NewMoney(amount)}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	charges := []core.CardCharge{
		charge("1", "p1", core.ChargePurchase, 250),
		charge("2", "p2", core.ChargePurchase, 100),
		charge("3", "e1", core.ChargePurchase, 300),
		charge("4", "e1", core.ChargeRepayment, 50),
		charge("5", "deleted", core.ChargePurchase, 999),
	}
	s := Summarize(sampleLine(), charges, now)

	checks := []struct {
		name string
		got  core.Money
		want int64
	}{
		{"used", s.Used, 600},
		{"available", s.Available, 400},
		{"personal", s.Personal, 350},
		{"external", s.External, 250},
	}
	for _, c := range checks {
		if !c.got.Equal(core.NewMoney(c.want)) {
			t.Errorf("%s = %s, want %d", c.name, c.got, c.want)
		}
	}
	if s.UsagePct != 60 {
		t.Errorf("usage = %v, want 60", s.UsagePct)
	}
	if s.Orphans != 1 {
		t.Errorf("orphans = %d, want 1", s.Orphans)
	}
	if !s.EstimatedInterest.Equal(core.NewMoney(15)) {
		t.Errorf("interest = %s, want 15", s.EstimatedInterest)
	}
	if s.NextPayment.String() != "2024-03-15" || s.DaysToPayment != 5 {
		t.Errorf("next payment = %s in %d days", s.NextPayment, s.DaysToPayment)
	}

	if len(s.Buckets) != 3 || s.Buckets[0].ID != "p1" || s.Buckets[2].ID != "e1" {
		t.Fatalf("unexpected buckets: %+v", s.Buckets)
	}
	if g := s.Buckets[0]; !g.OverBudget || g.BudgetUsed != 125 {
		t.Errorf("groceries budget = %+v", g)
	}
	if tr := s.Buckets[1]; tr.OverBudget || tr.BudgetUsed != 0 {
		t.Errorf("travel has no budget: %+v", tr)
	}
}

func TestSummarizeWithoutLimit(t *testing.T) {
	line := sampleLine()
	line.Limit = core.Zero
	s := Summarize(line, []core.CardCharge{charge("1", "p1", core.ChargePurchase, 10)}, time.Now())
	if s.UsagePct != 0 {
		t.Fatalf("usage without limit = %v, want 0", s.UsagePct)
	}
	if !s.Available.Equal(core.NewMoney(-10)) {
		t.Fatalf("available = %s, want -10", s.Available)
	}
}

func TestNextPayment(t *testing.T) {
	tests := []struct {
		now    time.Time
		payDay int
		want   string
	}{
		{time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), 15, "2024-03-15"},
		{time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC), 15, "2024-04-15"},
		{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 31, "2024-02-29"},
		{time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC), 5, "2025-01-05"},
	}
	for _, tt := range tests {
		if got := NextPayment(tt.payDay, tt.now).String(); got != tt.want {
			t.Errorf("NextPayment(%d, %s) = %s, want %s", tt.payDay, tt.now.Format(time.DateOnly), got, tt.want)
		}
	}
}

func TestServiceSetupAndPost(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	svc := NewService(mem, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	line := sampleLine()
	line.Categories[2].InitialDebt = core.NewMoney(80)
	if err := svc.Setup(ctx, "u1", line); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := svc.Post(ctx, "u1", charge("", "p1", core.ChargePurchase, 20)); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := svc.Post(ctx, "u1", charge("", "nope", core.ChargePurchase, 20)); !errors.Is(err, core.ErrUnknownBucket) {
		t.Fatalf("expected ErrUnknownBucket, got %v", err)
	}
	if _, err := svc.Post(ctx, "u1", charge("", "p1", core.ChargeRepayment, -5)); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	added, err := svc.AddBucket(ctx, "u1", core.CardCategory{Label: "Luis", Type: core.CardExternal, InitialDebt: core.NewMoney(40)})
	if err != nil || added.ID == "" {
		t.Fatalf("add bucket: %+v %v", added, err)
	}

	s, err := svc.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.Used.Equal(core.NewMoney(140)) || !s.External.Equal(core.NewMoney(120)) {
		t.Fatalf("used = %s external = %s", s.Used, s.External)
	}
}

func TestSetupRejectsInvalidLine(t *testing.T) {
	line := sampleLine()
	line.PayDay = 0
	err := NewService(memory.New(), nil).Setup(context.Background(), "u1", line)
	if !errors.Is(err, core.ErrInvalidPayDay) {
		t.Fatalf("expected ErrInvalidPayDay, got %v", err)
	}
}
