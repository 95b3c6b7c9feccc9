package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindExpense             Kind = "expense"
	KindIncome              Kind = "income"
	KindSaving              Kind = "saving"
	KindInvestment          Kind = "investment"
	KindInternalTransferLog Kind = "internal-transfer-log"
)

const (
	Necessity  Classification = "necessity"
	Want       Classification = "want"
	Saving     Classification = "saving"
	Investment Classification = "investment"
)

const (
	ReceivablePending ReceivableStatus = "pending"
	ReceivablePaid    ReceivableStatus = "paid"
)

// Well-known category ids used when income or savings are recorded
// without an explicit category.
const (
	GeneralIncomeCategoryID  = "general_income"
	GeneralSavingsCategoryID = "general_savings"
)

type (
	// Kind tags a transaction. Unknown kinds are kept as-is so that
	// aggregation can skip them explicitly.
	Kind string

	// Classification tags a category.
	Classification string

	ReceivableStatus string

	// Date is a calendar day. The time component is always midnight UTC.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string `json:"id"`
		Amount      Money  `json:"amount"`
		Description string `json:"description"`
		CategoryID  string `json:"category_id,omitempty"` // empty when uncategorized
		Date        Date   `json:"date"`
		Kind        Kind   `json:"kind"`

		PaymentMethod       string `json:"payment_method,omitempty"`
		RelatedCardID       string `json:"related_card_id,omitempty"`
		RelatedReceivableID string `json:"related_receivable_id,omitempty"`
		Shared              bool   `json:"shared"`
	}

	Category struct {
		ID             string         `json:"id"`
		Name           string         `json:"name"`
		Color          string         `json:"color,omitempty"`
		Icon           string         `json:"icon,omitempty"`
		Classification Classification `json:"classification"`
		Budget         Money          `json:"budget"`        // zero means no budget ceiling
		TargetAmount   Money          `json:"target_amount"` // zero means no savings goal
		CreatedAt      time.Time      `json:"created_at"`
	}

	Debt struct {
		ID             string `json:"id"`
		Institution    string `json:"institution"`
		Name           string `json:"name"`
		CurrentBalance Money  `json:"current_balance"`
	}

	Receivable struct {
		ID          string           `json:"id"`
		Amount      Money            `json:"amount"`
		Status      ReceivableStatus `json:"status"`
		ContactName string           `json:"contact_name"`
		Description string           `json:"description"`
		Date        Date             `json:"date"`
	}
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidKind            = errors.New("invalid transaction kind")
	ErrInvalidClassification  = errors.New("invalid category classification")
	ErrEmptyDescription       = errors.New("empty description")
	ErrEmptyName              = errors.New("empty name")
	ErrMissingCategory        = errors.New("category is required")
	ErrInvalidReceivableState = errors.New("invalid receivable status")
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindSaving, KindInvestment, KindInternalTransferLog:
		return true
	}
	return false
}

// ParseKind normalizes a stored kind. The Spanish tags written by the
// first version of the app are accepted as aliases. Unknown values are
// returned unchanged together with ErrInvalidKind.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "expense", "gasto":
		return KindExpense, nil
	case "income", "ingreso":
		return KindIncome, nil
	case "saving", "ahorro":
		return KindSaving, nil
	case "investment", "inversion":
		return KindInvestment, nil
	case "internal-transfer-log", "system_credit_debt_log":
		return KindInternalTransferLog, nil
	}
	return Kind(s), ErrInvalidKind
}

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case Necessity, Want, Saving, Investment:
		return true
	}
	return false
}

// ParseClassification normalizes a stored classification, accepting the
// Spanish aliases.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "necessity", "necesidad":
		return Necessity, nil
	case "want", "deseo":
		return Want, nil
	case "saving", "ahorro":
		return Saving, nil
	case "investment", "inversion":
		return Investment, nil
	}
	return Classification(s), ErrInvalidClassification
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. A trailing time component, as in
// "2024-03-01T10:00:00Z", is ignored.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks a transaction as entered by a user.
func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Kind == KindInternalTransferLog {
		return nil
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Classification.Valid() {
		return ErrInvalidClassification
	}
	if c.Budget.IsNegative() || c.TargetAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizedName is the key used to detect duplicate categories.
func (c Category) NormalizedName() string {
	return NormalizeName(c.Name)
}

// NormalizeName trims and case-folds a category name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Outstanding reports whether the receivable still counts as an asset.
func (r Receivable) Outstanding() bool {
	return r.Status != ReceivablePaid
}

func (r Receivable) Validate() error {
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	switch r.Status {
	case ReceivablePending, ReceivablePaid:
		return nil
	}
	return ErrInvalidReceivableState
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.Name) == "" && strings.TrimSpace(d.Institution) == "" {
		return ErrEmptyName
	}
	return nil
}

// DefaultCategories are seeded for a user that has no categories yet.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Vivienda", Color: "#6366F1", Icon: "Home", Classification: Necessity},
		{Name: "Comida", Color: "#10B981", Icon: "ShoppingBag", Classification: Necessity},
		{Name: "Ahorro", Color: "#14B8A6", Icon: "PiggyBank", Classification: Saving},
		{Name: "Inversiones", Color: "#8B5CF6", Icon: "TrendingUp", Classification: Investment},
		{Name: "Transporte", Color: "#F59E0B", Icon: "CreditCard", Classification: Necessity},
		{Name: "Ocio", Color: "#EC4899", Icon: "Target", Classification: Want},
	}
}
