package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// CardPersonal buckets hold the user's own card spending.
	CardPersonal CardCategoryType = "personal"
	// CardExternal buckets hold spending made for someone else who owes it back.
	CardExternal CardCategoryType = "external"
)

const (
	ChargePurchase  ChargeKind = "charge"
	ChargeRepayment ChargeKind = "repayment"
)

type (
	CardCategoryType string
	ChargeKind       string

	CardCategory struct {
		ID          string           `json:"id"`
		Label       string           `json:"label"`
		Type        CardCategoryType `json:"type"`
		Color       string           `json:"color,omitempty"`
		Icon        string           `json:"icon,omitempty"`
		Budget      Money            `json:"budget"`       // personal buckets only; zero means none
		InitialDebt Money            `json:"initial_debt"` // external buckets only
		Shared      bool             `json:"shared"`
	}

	// CreditLine is the user's credit card configuration.
	CreditLine struct {
		Limit        Money           `json:"limit"`
		PayDay       int             `json:"pay_day"`       // day of month the statement is paid
		InterestRate decimal.Decimal `json:"interest_rate"` // monthly percent
		Categories   []CardCategory  `json:"categories"`
		Setup        bool            `json:"setup"`
	}

	// CardCharge is one posting on the card sub-ledger. Amounts are always
	// positive; repayments are told apart by Kind.
	CardCharge struct {
		ID          string     `json:"id"`
		CategoryID  string     `json:"category_id"`
		Amount      Money      `json:"amount"`
		Kind        ChargeKind `json:"kind"`
		Description string     `json:"description"`
		PostedAt    time.Time  `json:"posted_at"`
	}
)

var (
	ErrInvalidPayDay     = errors.New("pay day must be between 1 and 31")
	ErrUnknownBucket     = errors.New("unknown card category")
	ErrInvalidChargeKind = errors.New("invalid charge kind")
)

// Signed returns the effect of the charge on the card balance.
func (c CardCharge) Signed() Money {
	if c.Kind == ChargeRepayment {
		return c.Amount.Neg()
	}
	return c.Amount
}

func (c CardCharge) Validate() error {
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	switch c.Kind {
	case ChargePurchase, ChargeRepayment:
	default:
		return ErrInvalidChargeKind
	}
	if strings.TrimSpace(c.CategoryID) == "" {
		return ErrUnknownBucket
	}
	return nil
}

func (l CreditLine) Validate() error {
	if l.Limit.IsNegative() {
		return ErrInvalidAmount
	}
	if l.PayDay < 1 || l.PayDay > 31 {
		return ErrInvalidPayDay
	}
	if l.InterestRate.IsNegative() {
		return ErrInvalidAmount
	}
	for _, c := range l.Categories {
		if strings.TrimSpace(c.Label) == "" {
			return ErrEmptyName
		}
	}
	return nil
}

// Category returns the bucket with the given id.
func (l CreditLine) Category(id string) (CardCategory, bool) {
	for _, c := range l.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return CardCategory{}, false
}
