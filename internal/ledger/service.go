// Package ledger holds the write-side operations of the app: recording
// transactions, managing categories and budgets, and settling receivables.
// Every operation commits a single store batch and then announces the
// change, best effort.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"koin/internal/core"
	"koin/internal/log"
	"koin/internal/store"
)

// Payment methods that do not touch the card sub-ledger. Any other value is
// taken as the id of a card bucket.
const (
	PaymentCash     = "cash"
	PaymentDebit    = "debit"
	PaymentTransfer = "transfer"
	PaymentCredit   = "credit"
)

var ErrNotFound = errors.New("not found")

// Store is what the ledger needs from the document store.
type Store interface {
	store.Reader
	store.CardReader
	store.Writer
}

// Publisher announces committed changes. *amqp.Client implements it.
type Publisher interface {
	PublishChange(ctx context.Context, userID string, collections []string) error
}

// Entry is a transaction as submitted by a user.
type Entry struct {
	Amount        core.Money
	Description   string
	CategoryID    string
	Date          core.Date
	Kind          core.Kind
	PaymentMethod string

	// Shared expenses create a pending receivable for OwedAmount.
	Shared     bool
	OwedBy     string
	OwedAmount core.Money

	// GoalTarget, when positive on a saving, becomes the category's target.
	GoalTarget core.Money
}

// Receipt lists the documents written for an entry.
type Receipt struct {
	Transaction  core.Transaction  `json:"transaction"`
	Receivable   *core.Receivable  `json:"receivable,omitempty"`
	CardCharge   *core.CardCharge  `json:"card_charge,omitempty"`
	InternalLog  *core.Transaction `json:"internal_log,omitempty"`
	GoalCategory *core.Category    `json:"goal_category,omitempty"`
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// NewService wires the ledger. publisher may be nil.
func NewService(s Store, publisher Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		store:     s,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
		now:       time.Now,
	}
}

// Validate applies the entry form rules: positive amount, a category for
// every kind but income and saving, and a description.
func (e Entry) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Kind.Valid() || e.Kind == core.KindInternalTransferLog {
		return core.ErrInvalidKind
	}
	if e.Kind != core.KindIncome && e.Kind != core.KindSaving && strings.TrimSpace(e.CategoryID) == "" {
		return core.ErrMissingCategory
	}
	if strings.TrimSpace(e.Description) == "" {
		return core.ErrEmptyDescription
	}
	if e.Shared && e.OwedAmount.IsNegative() {
		return core.ErrInvalidAmount
	}
	return nil
}

// RecordTransaction validates e and writes the transaction together with
// its side documents in one batch.
func (s *Service) RecordTransaction(ctx context.Context, userID string, e Entry) (Receipt, error) {
	if err := store.CheckScope(userID); err != nil {
		return Receipt{}, err
	}
	if err := e.Validate(); err != nil {
		return Receipt{}, err
	}
	if e.Date.IsZero() {
		e.Date = core.DateOf(s.now())
	}

	tx := core.Transaction{
		ID:          store.NewID(),
		Amount:      e.Amount,
		Description: strings.TrimSpace(e.Description),
		CategoryID:  e.CategoryID,
		Date:        e.Date,
		Kind:        e.Kind,
		Shared:      e.Shared,
	}
	if tx.CategoryID == "" {
		tx.CategoryID = core.GeneralSavingsCategoryID
		if e.Kind == core.KindIncome {
			tx.CategoryID = core.GeneralIncomeCategoryID
		}
	}

	var r Receipt
	b := store.NewBatch()

	cardBucket, err := s.resolvePayment(ctx, userID, e, &tx)
	if err != nil {
		return Receipt{}, err
	}

	if e.Kind == core.KindExpense && e.Shared && e.OwedAmount.IsPositive() {
		rec := core.Receivable{
			ID:          store.NewID(),
			Amount:      e.OwedAmount,
			Status:      core.ReceivablePending,
			ContactName: e.OwedBy,
			Description: "Share of: " + tx.Description,
			Date:        tx.Date,
		}
		if rec.ContactName == "" {
			rec.ContactName = "Unknown"
		}
		tx.RelatedReceivableID = rec.ID
		b.PutReceivable(rec)
		r.Receivable = &rec
	}

	b.PutTransaction(tx)
	r.Transaction = tx

	if cardBucket != "" {
		charge := core.CardCharge{
			ID:          store.NewID(),
			CategoryID:  cardBucket,
			Amount:      tx.Amount,
			Kind:        core.ChargePurchase,
			Description: tx.Description,
			PostedAt:    s.now(),
		}
		logTx := core.Transaction{
			ID:            store.NewID(),
			Amount:        tx.Amount,
			Description:   tx.Description,
			CategoryID:    cardBucket,
			Date:          tx.Date,
			Kind:          core.KindInternalTransferLog,
			PaymentMethod: PaymentCredit,
			RelatedCardID: cardBucket,
		}
		b.PutCardCharge(charge).PutTransaction(logTx)
		r.CardCharge, r.InternalLog = &charge, &logTx
	}

	if e.Kind == core.KindSaving && e.GoalTarget.IsPositive() && e.CategoryID != "" {
		cat, err := s.category(ctx, userID, e.CategoryID)
		if err != nil {
			return Receipt{}, err
		}
		cat.TargetAmount = e.GoalTarget
		b.PutCategory(cat)
		r.GoalCategory = &cat
	}

	if err := s.commit(ctx, userID, b); err != nil {
		return Receipt{}, fmt.Errorf("record transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction recorded",
		log.FieldUserID, userID,
		log.FieldKind, string(tx.Kind),
		log.FieldAmount, tx.Amount.String(),
		log.FieldCategoryID, tx.CategoryID)
	return r, nil
}

// resolvePayment fills the payment fields of tx and returns the card bucket
// to charge, if any.
func (s *Service) resolvePayment(ctx context.Context, userID string, e Entry, tx *core.Transaction) (string, error) {
	switch pm := strings.TrimSpace(e.PaymentMethod); pm {
	case "", PaymentCash:
		tx.PaymentMethod = PaymentCash
		return "", nil
	case PaymentDebit, PaymentTransfer:
		tx.PaymentMethod = pm
		return "", nil
	default:
		tx.PaymentMethod = PaymentCredit
		tx.RelatedCardID = pm
		if e.Kind != core.KindExpense {
			return "", nil
		}
		line, err := s.store.CreditLine(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("read credit line: %w", err)
		}
		if _, ok := line.Category(pm); !ok {
			return "", core.ErrUnknownBucket
		}
		return pm, nil
	}
}

// AddCategory creates a category. Names are not checked for uniqueness;
// duplicates are merged later by the category repair.
func (s *Service) AddCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	if err := store.CheckScope(userID); err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = store.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if err := s.commit(ctx, userID, store.NewBatch().PutCategory(c)); err != nil {
		return core.Category{}, fmt.Errorf("add category: %w", err)
	}
	return c, nil
}

// SetBudget sets the monthly ceiling of a category. A zero budget removes it.
func (s *Service) SetBudget(ctx context.Context, userID, categoryID string, budget core.Money) (core.Category, error) {
	if budget.IsNegative() {
		return core.Category{}, core.ErrInvalidAmount
	}
	cat, err := s.category(ctx, userID, categoryID)
	if err != nil {
		return core.Category{}, err
	}
	cat.Budget = budget
	if err := s.commit(ctx, userID, store.NewBatch().PutCategory(cat)); err != nil {
		return core.Category{}, fmt.Errorf("set budget: %w", err)
	}
	return cat, nil
}

// EnsureDefaultCategories seeds the default categories for a user that has
// none and reports whether it did.
func (s *Service) EnsureDefaultCategories(ctx context.Context, userID string) (bool, error) {
	cats, err := s.store.Categories(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read categories: %w", err)
	}
	if len(cats) > 0 {
		return false, nil
	}
	b := store.NewBatch()
	now := s.now().UTC()
	for i, c := range core.DefaultCategories() {
		c.ID = store.NewID()
		c.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		b.PutCategory(c)
	}
	if err := s.commit(ctx, userID, b); err != nil {
		return false, fmt.Errorf("seed categories: %w", err)
	}
	return true, nil
}

// SettleReceivable marks a receivable as paid.
func (s *Service) SettleReceivable(ctx context.Context, userID, receivableID string) (core.Receivable, error) {
	recs, err := s.store.Receivables(ctx, userID)
	if err != nil {
		return core.Receivable{}, fmt.Errorf("read receivables: %w", err)
	}
	for _, r := range recs {
		if r.ID != receivableID {
			continue
		}
		if r.Status == core.ReceivablePaid {
			return r, nil
		}
		r.Status = core.ReceivablePaid
		if err := s.commit(ctx, userID, store.NewBatch().PutReceivable(r)); err != nil {
			return core.Receivable{}, fmt.Errorf("settle receivable: %w", err)
		}
		return r, nil
	}
	return core.Receivable{}, fmt.Errorf("receivable %s: %w", receivableID, ErrNotFound)
}

// DeleteTransaction removes a transaction and the receivable it created,
// if any.
func (s *Service) DeleteTransaction(ctx context.Context, userID, txID string) error {
	txs, err := s.store.Transactions(ctx, userID)
	if err != nil {
		return fmt.Errorf("read transactions: %w", err)
	}
	for _, t := range txs {
		if t.ID != txID {
			continue
		}
		b := store.NewBatch().Delete(store.Transactions, t.ID)
		if t.RelatedReceivableID != "" {
			b.Delete(store.Receivables, t.RelatedReceivableID)
		}
		if err := s.commit(ctx, userID, b); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
}

// AddDebt stores a liability. Its balance may be zero but never negative.
func (s *Service) AddDebt(ctx context.Context, userID string, d core.Debt) (core.Debt, error) {
	if err := store.CheckScope(userID); err != nil {
		return core.Debt{}, err
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Institution = strings.TrimSpace(d.Institution)
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	if d.CurrentBalance.IsNegative() {
		return core.Debt{}, core.ErrInvalidAmount
	}
	if d.ID == "" {
		d.ID = store.NewID()
	}
	if err := s.commit(ctx, userID, store.NewBatch().PutDebt(d)); err != nil {
		return core.Debt{}, fmt.Errorf("add debt: %w", err)
	}
	return d, nil
}

func (s *Service) DeleteDebt(ctx context.Context, userID, debtID string) error {
	debts, err := s.store.Debts(ctx, userID)
	if err != nil {
		return fmt.Errorf("read debts: %w", err)
	}
	for _, d := range debts {
		if d.ID != debtID {
			continue
		}
		if err := s.commit(ctx, userID, store.NewBatch().Delete(store.Debts, d.ID)); err != nil {
			return fmt.Errorf("delete debt: %w", err)
		}
		return nil
	}
	return fmt.Errorf("debt %s: %w", debtID, ErrNotFound)
}

func (s *Service) category(ctx context.Context, userID, id string) (core.Category, error) {
	cats, err := s.store.Categories(ctx, userID)
	if err != nil {
		return core.Category{}, fmt.Errorf("read categories: %w", err)
	}
	for _, c := range cats {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
}

func (s *Service) commit(ctx context.Context, userID string, b *store.Batch) error {
	if err := s.store.Apply(ctx, userID, b); err != nil {
		return err
	}
	s.announce(ctx, userID, b)
	return nil
}

// announce publishes the change after a successful commit. Failures are
// logged only: the data is already stored.
func (s *Service) announce(ctx context.Context, userID string, b *store.Batch) {
	if s.publisher == nil {
		return
	}
	cols := b.Collections()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}
	if err := s.publisher.PublishChange(ctx, userID, names); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change message",
			log.NewFields().WithUser(userID).WithOperation(log.OpPublish).WithError(err).ToSlice()...)
	}
}
