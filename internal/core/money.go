// Package core provides the domain model shared by every koin component.
//
// This file contains the Money type and the helpers used to parse amounts
// coming from forms, JSON documents and database rows.
package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount in the user's currency.
// The zero value is a valid zero amount.
type Money struct {
	Amount decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney creates Money from an integer amount of whole units.
func NewMoney(units int64) Money {
	return Money{Amount: decimal.NewFromInt(units)}
}

// MoneyFromFloat creates Money from a float. Intended for tests and literals.
func MoneyFromFloat(f float64) Money {
	return Money{Amount: decimal.NewFromFloat(f)}
}

// ParseMoney parses a user supplied amount strictly.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators as well as
// thousands separators in the "1.234,56" form. Signs are rejected: amounts
// typed by users are always positive, direction is carried by the kind.
//
// Examples:
//
//	ParseMoney("12.34")    -> 12.34, nil
//	ParseMoney("12,34")    -> 12.34, nil
//	ParseMoney("1.234,50") -> 1234.50, nil
//	ParseMoney("-1")       -> 0, ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return Zero, ErrInvalidAmount
	}
	return Money{Amount: d}, nil
}

// LenientMoney parses a stored amount. Anything that is not a valid number
// becomes zero and ok is false, so one bad document cannot poison a sum.
// Unlike ParseMoney, signed values are kept.
func LenientMoney(s string) (m Money, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, false
	}
	return Money{Amount: d}, true
}

func normalizeSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case commas == 0:
		return s
	case dots == 0 && commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case dots > 0 && commas == 1 && strings.LastIndex(s, ",") > strings.LastIndex(s, "."):
		// 1.234,56
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	default:
		// 1,234.56 or 1,234,567
		return strings.ReplaceAll(s, ",", "")
	}
}

func (m Money) Add(o Money) Money { return Money{Amount: m.Amount.Add(o.Amount)} }
func (m Money) Sub(o Money) Money { return Money{Amount: m.Amount.Sub(o.Amount)} }
func (m Money) Neg() Money        { return Money{Amount: m.Amount.Neg()} }

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Cmp compares m and o: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int { return m.Amount.Cmp(o.Amount) }

// Equal reports whether m and o are the same amount regardless of scale.
func (m Money) Equal(o Money) bool { return m.Amount.Equal(o.Amount) }

// Validate rejects zero and negative amounts.
func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Float64 returns the amount as a float for display purposes.
// Use Money for calculations.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

// String returns the canonical decimal representation.
func (m Money) String() string { return m.Amount.String() }

// Percent returns part/whole*100 rounded to two decimals.
// A zero whole yields 0.
func Percent(part, whole Money) float64 {
	if whole.IsZero() {
		return 0
	}
	p := part.Amount.Mul(decimal.NewFromInt(100)).DivRound(whole.Amount, 2)
	f, _ := p.Float64()
	return f
}

// MarshalJSON encodes Money as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Amount.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. Anything else,
// including null, decodes to zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*m = Zero
			return nil
		}
		*m, _ = LenientMoney(s)
		return nil
	}
	*m, _ = LenientMoney(string(data))
	return nil
}
