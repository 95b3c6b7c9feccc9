package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"expense", KindExpense, true},
		{"gasto", KindExpense, true},
		{" Ingreso ", KindIncome, true},
		{"ahorro", KindSaving, true},
		{"inversion", KindInvestment, true},
		{"system_credit_debt_log", KindInternalTransferLog, true},
		{"refund", Kind("refund"), false},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
		if tc.ok != (err == nil) {
			t.Fatalf("%q: unexpected err %v", tc.in, err)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Amount:      NewMoney(100),
		Description: "ok",
		Date:        NewDate(2024, 3, 1),
		Kind:        KindExpense,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		tx   Transaction
		want error
	}{
		{Transaction{Amount: Zero, Description: "a", Date: NewDate(2024, 1, 1), Kind: KindExpense}, ErrInvalidAmount},
		{Transaction{Amount: NewMoney(1), Description: "a", Kind: KindExpense}, ErrInvalidDate},
		{Transaction{Amount: NewMoney(1), Description: "a", Date: NewDate(2024, 1, 1), Kind: "refund"}, ErrInvalidKind},
		{Transaction{Amount: NewMoney(1), Description: " ", Date: NewDate(2024, 1, 1), Kind: KindIncome}, ErrEmptyDescription},
	}
	for i, tc := range bads {
		if err := tc.tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-31T23:30:00-05:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2024-03-31" {
		t.Fatalf("expected calendar day to be kept, got %s", d)
	}
	if _, err := ParseDate("31/03/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestPeriodContains(t *testing.T) {
	p := Period{Year: 2024, Month: 3}
	if !p.Contains(NewDate(2024, 3, 1)) || !p.Contains(NewDate(2024, 3, 31)) {
		t.Fatalf("expected march days to be contained")
	}
	if p.Contains(NewDate(2024, 4, 1)) || p.Contains(NewDate(2023, 3, 15)) || p.Contains(Date{}) {
		t.Fatalf("unexpected containment")
	}
	if got := (Period{Year: 2024, Month: 1}).Prev(); got != (Period{Year: 2023, Month: 12}) {
		t.Fatalf("unexpected prev %v", got)
	}
	if got := (Period{Year: 2024, Month: 12}).Next(); got != (Period{Year: 2025, Month: 1}) {
		t.Fatalf("unexpected next %v", got)
	}
	if err := (Period{Year: 2024, Month: 13}).Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestDateOfKeepsLocalDay(t *testing.T) {
	loc := time.FixedZone("COT", -5*3600)
	d := DateOf(time.Date(2024, 3, 31, 22, 0, 0, 0, loc))
	if d.String() != "2024-03-31" {
		t.Fatalf("expected local calendar day, got %s", d)
	}
}

func TestNormalizeName(t *testing.T) {
	if NormalizeName("  Comida ") != NormalizeName("comida") {
		t.Fatalf("expected names to normalize equally")
	}
}
