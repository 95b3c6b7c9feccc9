package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"koin/internal/core"
	"koin/internal/ledger"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// DecodeJSON reads one JSON object from the request body into v. Unknown
// fields and trailing data are rejected.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadRequest)
	}
	return nil
}

// ParseMonthParams extracts year and month from query parameters, using
// the month of now for absent values. Present but malformed values are an
// error.
func ParseMonthParams(query url.Values, now time.Time) (core.Period, error) {
	p := core.PeriodOf(now)
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("%w: year %q", core.ErrInvalidPeriod, v)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("%w: month %q", core.ErrInvalidPeriod, v)
		}
		p.Month = m
	}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

// ParseBool reads a query flag. Absent or malformed values are false.
func ParseBool(query url.Values, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(query.Get(key)))
	return b
}

// transactionRequest is the body of POST /api/transactions.
type transactionRequest struct {
	Amount        core.Money `json:"amount"`
	Description   string     `json:"description"`
	CategoryID    string     `json:"category_id"`
	Date          core.Date  `json:"date"`
	Kind          string     `json:"kind"`
	PaymentMethod string     `json:"payment_method"`
	Shared        bool       `json:"shared"`
	OwedBy        string     `json:"owed_by"`
	OwedAmount    core.Money `json:"owed_amount"`
	GoalTarget    core.Money `json:"goal_target"`
}

func (req transactionRequest) Entry() (ledger.Entry, error) {
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		Amount:        req.Amount,
		Description:   sanitizeInput(req.Description),
		CategoryID:    strings.TrimSpace(req.CategoryID),
		Date:          req.Date,
		Kind:          kind,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Shared:        req.Shared,
		OwedBy:        sanitizeInput(req.OwedBy),
		OwedAmount:    req.OwedAmount,
		GoalTarget:    req.GoalTarget,
	}, nil
}

// categoryRequest is the body of POST /api/categories.
type categoryRequest struct {
	Name           string     `json:"name"`
	Color          string     `json:"color"`
	Icon           string     `json:"icon"`
	Classification string     `json:"classification"`
	Budget         core.Money `json:"budget"`
}

func (req categoryRequest) Category() (core.Category, error) {
	class, err := core.ParseClassification(req.Classification)
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{
		Name:           sanitizeInput(req.Name),
		Color:          strings.TrimSpace(req.Color),
		Icon:           strings.TrimSpace(req.Icon),
		Classification: class,
		Budget:         req.Budget,
	}, nil
}

// debtRequest is the body of POST /api/debts.
type debtRequest struct {
	Institution    string     `json:"institution"`
	Name           string     `json:"name"`
	CurrentBalance core.Money `json:"current_balance"`
}

func (req debtRequest) Debt() core.Debt {
	return core.Debt{
		Institution:    sanitizeInput(req.Institution),
		Name:           sanitizeInput(req.Name),
		CurrentBalance: req.CurrentBalance,
	}
}

type budgetRequest struct {
	Budget core.Money `json:"budget"`
}
