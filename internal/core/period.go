package core

import (
	"errors"
	"fmt"
	"time"
)

// Period is a calendar month of a year, the window for flow totals.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"` // 1-12
}

var ErrInvalidPeriod = errors.New("invalid period")

// PeriodOf returns the period containing t in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 1 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// Contains reports whether the calendar day d falls inside p.
func (p Period) Contains(d Date) bool {
	if d.IsZero() {
		return false
	}
	return d.Year() == p.Year && int(d.Month()) == p.Month
}

// Prev returns the previous month.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
